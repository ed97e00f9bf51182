// Package server exposes the pipeline over HTTP: a webhook receiving S3 /
// MinIO event notifications, a health check, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/metrics"
	"github.com/koustreak/derivr/internal/notify"
	"github.com/koustreak/derivr/internal/router"
)

const (
	DefaultWebhookPath = "/events"
	maxBodyBytes       = 1 << 20
	shutdownTimeout    = 30 * time.Second
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	WebhookPath string
}

// Server is the HTTP front of the pipeline.
type Server struct {
	mux      *chi.Mux
	dispatch notify.Dispatcher
	health   Pinger
	log      *logger.Logger
}

// New builds the routes.
func New(d notify.Dispatcher, health Pinger, log *logger.Logger, opts Options) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = DefaultWebhookPath
	}

	s := &Server{mux: chi.NewRouter(), dispatch: d, health: health, log: log}

	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(s.requestLogger)
	s.mux.Use(middleware.Recoverer)

	s.mux.Post(opts.WebhookPath, s.handleEvents)
	s.mux.Get("/healthz", s.handleHealth)
	s.mux.Method(http.MethodGet, "/metrics", metrics.Handler())

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, letting in-flight notifications finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger attaches a request-scoped logger to the context and writes
// one access line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		reqLog.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Summary is the webhook response body.
type Summary struct {
	Records  int      `json:"records"`
	Resized  int      `json:"resized"`
	Cascaded int      `json:"cascaded"`
	Ignored  int      `json:"ignored"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	notifications, err := notify.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Records are handled in order, each to completion.
	sum := Summary{Records: len(notifications)}
	for _, n := range notifications {
		action, err := s.dispatch.Dispatch(r.Context(), n)
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		switch action {
		case router.ActionResize:
			sum.Resized++
		case router.ActionCascade:
			sum.Cascaded++
		default:
			sum.Ignored++
		}
	}

	status := http.StatusOK
	if sum.Failed > 0 {
		// A non-2xx answer makes the sender redeliver.
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, sum)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
