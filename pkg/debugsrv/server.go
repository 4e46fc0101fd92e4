// Package debugsrv implements the DEBUG-gated HTTP endpoint of spec.md
// §6/§7: per-adapter status dumps and the Prometheus /metrics scrape
// target. Grounded on the teacher's controlcenter/internal/server chi
// routing and indexer/pkg/server's Config+Validate/Run(ctx) shape; the
// periodic stdout dump of the original's AdapterDebugger is replaced by
// an on-demand JSON endpoint since structured logging already covers
// the periodic case (see SPEC_FULL.md's supplemented features).
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
)

// Config wires the debug server's dependencies.
type Config struct {
	Logger          *slog.Logger
	Addr            string // e.g. ":6060"
	Manager         *netw.Manager
	Enabled         bool // mirrors the DEBUG env var, spec.md §6
	ShutdownTimeout time.Duration
}

// Validate fills in defaults and checks required fields, following
// indexer/pkg/server.Config's pattern.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Manager == nil {
		return errors.New("network manager is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":6060"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return nil
}

// Server is the debug/metrics HTTP endpoint.
type Server struct {
	log     *slog.Logger
	cfg     Config
	httpSrv *http.Server
}

// adapterSnapshot is the JSON shape of one adapter's status dump,
// mirroring AdapterDebugger._step's printed fields.
type adapterSnapshot struct {
	Interface                string  `json:"interface"`
	Present                  bool    `json:"present"`
	Linked                   bool    `json:"linked"`
	HasPing                  bool    `json:"has_ping"`
	Connected                bool    `json:"connected"`
	EstimatedBandwidthOutBps float64 `json:"estimated_bandwidth_out_bps"`
	EstimatedBandwidthInBps  float64 `json:"estimated_bandwidth_in_bps"`
	BytesSent                int64   `json:"bytes_sent"`
	BytesRecv                int64   `json:"bytes_recv"`
}

// New constructs a Server. If cfg.Enabled is false, the debug routes are
// omitted entirely (only /healthz and /metrics are served) — DEBUG is
// off by default per spec.md §6.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("debugsrv: invalid config: %w", err)
	}
	s := &Server{log: cfg.Logger, cfg: cfg}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	router.Handle("/metrics", promhttp.Handler())

	if cfg.Enabled {
		router.Get("/debug/adapters", s.handleAdapters)
		router.Get("/debug/channels", s.handleChannels)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, following indexer/pkg/server.Server.Run's shutdown
// handshake.
func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("debugsrv: listen and serve: %w", err)
		}
	}()
	s.log.Info("debugsrv: listening", "address", s.cfg.Addr, "debug_routes", s.cfg.Enabled)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("debugsrv: shutdown: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func (s *Server) handleAdapters(w http.ResponseWriter, r *http.Request) {
	adapters := s.cfg.Manager.Adapters()
	out := make([]adapterSnapshot, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, adapterSnapshot{
			Interface:                a.Name(),
			Present:                  a.Present(),
			Linked:                   a.Linked(),
			HasPing:                  a.HasPing(),
			Connected:                a.IsConnected(),
			EstimatedBandwidthOutBps: a.EstimatedBandwidthOut(),
			EstimatedBandwidthInBps:  a.EstimatedBandwidthIn(),
			BytesSent:                a.BytesSent(),
			BytesRecv:                a.BytesRecv(),
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.cfg.Manager.ChannelStatistics())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("debugsrv: failed to encode response", "error", err)
	}
}
