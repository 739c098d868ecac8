package dcfsfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/logging"
	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
)

// MountOptions controls the kernel-channel lifecycle (spec.md §6 "the
// standard kernel-userspace-filesystem flags").
type MountOptions struct {
	Singlethread bool
	PartSize     int64
	Metrics      metrics.Recorder

	// Ready, if set, is called once the namespace is primed and the FS
	// is constructed but before serving begins - e.g. so a caller can
	// hand the FS to internal/healthserver as its StatusProvider.
	Ready func(*FS)
}

// Mount validates the mountpoint, primes the namespace from the backend,
// and serves the filesystem until the kernel channel closes or ctx is
// canceled (spec.md §2 "Mount Lifecycle": reads credentials, primes the
// namespace, owns the kernel channel, installs signal handlers, tears
// down - signal handling itself lives in cmd/dcfs, the process entry
// point).
//
// Grounded on cih-y2k-blobstash/pkg/filetree/fs/ngfs/ngfs.go's main():
// fuse.Mount, fs.Serve, then checking c.Ready/c.MountError before
// returning - and on original_source/src/main.c's pre-mount validation
// (stat(mountpoint) before touching the kernel channel at all).
func Mount(ctx context.Context, mountpoint string, client *discord.Client, guildID string, opts MountOptions) error {
	log := logging.New("mount")

	info, err := os.Stat(mountpoint)
	if err != nil {
		return fmt.Errorf("dcfsfs: mountpoint %s: %w", mountpoint, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dcfsfs: mountpoint %s is not a directory", mountpoint)
	}

	ns := namespace.New(client, guildID)
	if err := ns.Prime(ctx); err != nil {
		return fmt.Errorf("dcfsfs: priming namespace: %w", err)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("dcfs"),
		fuse.Subtype("dcfs"),
		fuse.VolumeName(filepath.Base(mountpoint)),
	}
	if opts.Singlethread {
		mountOpts = append(mountOpts, fuse.Singlethread())
	}

	c, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("dcfsfs: mount: %w", err)
	}
	defer c.Close()

	dcfs := New(ns, client, opts.PartSize, opts.Metrics)
	if opts.Ready != nil {
		opts.Ready(dcfs)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- fusefs.Serve(c, dcfs)
	}()

	select {
	case <-ctx.Done():
		log.Info("unmounting", "mountpoint", mountpoint)
		if err := fuse.Unmount(mountpoint); err != nil {
			log.Warn("unmount failed", "err", err)
		}
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("dcfsfs: serve: %w", err)
		}
	}

	<-c.Ready
	if err := c.MountError; err != nil {
		return fmt.Errorf("dcfsfs: mount error: %w", err)
	}
	log.Info("unmounted cleanly", "mountpoint", mountpoint)
	return nil
}
