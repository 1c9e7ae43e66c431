package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/store"
)

// NewHandler returns the read-only status API served next to the watchdog.
func NewHandler(w *Watchdog, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/jobs/{id}", func(rw http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		j, err := w.Store.GetJob(req.Context(), id)
		if errors.Is(err, store.ErrJobNotFound) {
			writeJSON(rw, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		if err != nil {
			zap.L().Error("watchdog: get job", zap.String("job_id", id), zap.Error(err))
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(rw, http.StatusOK, j)
	})

	r.Get("/watchdog/attempts", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{
			"max_restart_attempts": w.Config.MaxRestartAttempts,
			"attempts":             w.Attempts(),
		})
	})

	return r
}

// Serve runs the status API on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("watchdog: status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "watchdog: shutdown status server")
	case err := <-errCh:
		return eris.Wrap(err, "watchdog: status server")
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
