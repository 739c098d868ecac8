// Package healthserver is the optional local HTTP endpoint exposing
// mount status and Prometheus metrics (SPEC_FULL.md §10). It is off by
// default - cmd/dcfs only starts it when --debug-addr is set - and has
// no interaction with the namespace, upload or download components
// beyond reading the counters they publish through internal/metrics and
// the guild id and channel count its StatusProvider reports.
//
// Routing follows cih-y2k-blobstash's go.mod choice of gorilla/mux;
// security headers follow pkg/middleware.Secure's use of
// github.com/unrolled/secure, generalized from BlobStash's single
// hard-coded policy to the options this server actually needs.
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"

	log "github.com/inconshreveable/log15"

	"a4.io/dcfs/internal/logging"
)

// StatusProvider reports the mount's current state for the /status
// endpoint. internal/dcfsfs.FS implements this.
type StatusProvider interface {
	GuildID() string
	MountedChannels() int
}

// Server is the optional debug HTTP endpoint.
type Server struct {
	httpServer *http.Server
	log        log.Logger
}

// New builds a Server bound to addr. status may be nil if the caller
// wants metrics only; reg is the Prometheus registry internal/metrics's
// prometheus.New was constructed against.
func New(addr string, status StatusProvider, reg *prometheus.Registry) *Server {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", statusHandler(status)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      false,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           secureMiddleware.Handler(r),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logging.New("healthserver"),
	}
}

func statusHandler(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"guild_id":         status.GuildID(),
			"mounted_channels": status.MountedChannels(),
		})
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Serve runs the debug server until ctx is canceled, then shuts it down
// gracefully. Grounded on internal/dcfsfs.Mount's select-on-ctx.Done()
// shape.
func (s *Server) Serve(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("debug server shutdown failed", "err", err)
			return err
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}
