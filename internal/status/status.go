// Package status serves a local health and metrics endpoint for a running
// session.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/observability"
	"github.com/erilali/rayvtt/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "1.0.0"

// Source is satisfied by *session.Session.
type Source interface {
	Snapshot() session.Snapshot
}

// NewHandler builds the status router. journal reports whether events are
// being mirrored to NATS.
func NewHandler(src Source, journal bool) http.Handler {
	observability.RegisterMetrics()
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()
		journalStatus := "disabled"
		if journal {
			journalStatus = "enabled"
		}
		health := map[string]interface{}{
			"status":    "ok",
			"version":   Version,
			"session":   snap,
			"journal":   journalStatus,
			"timestamp": time.Now(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Status server shutdown: %v", err)
		}
	}()
	log.Infof("Status server started at %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
