// Command dcfs mounts a chat service guild as a two-level POSIX directory
// tree (spec.md §1, §6). Flag parsing follows restic-restic/cmd/restic
// and marmos91-dittofs/cmd/dittofs's use of github.com/spf13/cobra;
// signal handling follows dittofs/cmd/dittofs/main.go's
// sigChan/select-against-serverDone shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"a4.io/dcfs/internal/config"
	"a4.io/dcfs/internal/dcfsfs"
	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/healthserver"
	"a4.io/dcfs/internal/logging"
	"a4.io/dcfs/internal/metrics"
	metricsprom "a4.io/dcfs/internal/metrics/prometheus"
)

var (
	flagConfig       string
	flagForeground   bool
	flagSinglethread bool
	flagPartSize     int64
	flagDebugAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "dcfs <mountpoint>",
	Short: "Mount a guild's channels as a two-level directory tree",
	Long: `dcfs projects a chat service guild's channels and their attachment
messages onto a POSIX directory tree: one directory per listable channel,
one file per logical attachment, split transparently across the backend's
per-message attachment limits.

Required environment variables:
  DCFS_TOKEN     bot token used to authenticate against the backend
  DCFS_GUILD_ID  snowflake ID of the guild to mount`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to an optional YAML settings file")
	rootCmd.Flags().BoolVar(&flagForeground, "foreground", false, "log in colorized terminal format instead of logfmt (dcfs never daemonizes)")
	rootCmd.Flags().BoolVar(&flagSinglethread, "singlethread", false, "serve one FUSE request at a time")
	rootCmd.Flags().Int64Var(&flagPartSize, "part-size", 0, "override the default per-part byte size (0 selects the build-time default)")
	rootCmd.Flags().StringVar(&flagDebugAddr, "debug-addr", "", "address for the optional status/metrics endpoint (empty disables it)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dcfs:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]

	settings, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	logging.SetForeground(flagForeground)
	logging.SetLevel(settings.LogLvl())
	log := logging.New("main")

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	debugAddr := flagDebugAddr
	if debugAddr == "" {
		debugAddr = settings.DebugAddr
	}

	var reg *prometheus.Registry
	var rec metrics.Recorder
	if debugAddr != "" {
		reg = prometheus.NewRegistry()
		rec = metricsprom.New(reg)
	}

	client := discord.New(creds.Token, http.DefaultClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var debugDone chan error
	ready := func(fs *dcfsfs.FS) {
		if debugAddr == "" {
			return
		}
		log.Info("debug endpoint enabled", "addr", debugAddr)
		srv := healthserver.New(debugAddr, fs, reg)
		debugDone = make(chan error, 1)
		go func() { debugDone <- srv.Serve(ctx) }()
	}

	mountDone := make(chan error, 1)
	go func() {
		mountDone <- dcfsfs.Mount(ctx, mountpoint, client, creds.GuildID, dcfsfs.MountOptions{
			Singlethread: flagSinglethread,
			PartSize:     flagPartSize,
			Metrics:      rec,
			Ready:        ready,
		})
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("mounting", "mountpoint", mountpoint, "guild_id", creds.GuildID)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		log.Info("shutdown signal received")
		cancel()
		err := <-mountDone
		if debugDone != nil {
			<-debugDone
		}
		return err
	case err := <-mountDone:
		cancel()
		if debugDone != nil {
			<-debugDone
		}
		return err
	}
}
