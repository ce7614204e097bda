// Package statusapi serves the local HTTP status endpoints of the portapi agent:
// health, connection status, metrics and a manual reconnect.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Source is the connection state the API reports on.
type Source interface {
	State() supervisor.State
	Since() time.Time
	Address() string
	Client() (client.Client, bool)
	Reconnect()
}

// Status is the body of GET /status.
type Status struct {
	State        string    `json:"state"`
	Address      string    `json:"address"`
	Since        time.Time `json:"since"`
	ConnectionID string    `json:"connection_id,omitempty"`
	ActiveRoutes int       `json:"active_routes"`
}

// Server is the status HTTP server.
type Server struct {
	source   Source
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   chi.Router
}

// New builds the router. A nil gatherer uses the default Prometheus registry.
func New(source Source, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		source:   source,
		gatherer: gatherer,
		logger:   logger.With("component", "statusapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/reconnect", s.handleReconnect)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", addr)
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

func (s *Server) status() Status {
	st := Status{
		State:   s.source.State().String(),
		Address: s.source.Address(),
		Since:   s.source.Since(),
	}
	if cli, ok := s.source.Client(); ok {
		st.ConnectionID = cli.ID()
		st.ActiveRoutes = cli.Stats().ActiveRoutes
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.source.State() != supervisor.Connected {
		http.Error(w, "disconnected", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("reconnect requested", "remote", r.RemoteAddr)
	s.source.Reconnect()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
