// Package server exposes the hook engine and operator console over HTTP, with
// a gRPC health service alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/config"
	"github.com/ppiankov/hookwarden/internal/console"
	"github.com/ppiankov/hookwarden/internal/hooks"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "hookwarden.v1.Hooks"

// Config holds server construction options.
type Config struct {
	// ConfigPath is the YAML config file. Empty uses config.DefaultPath.
	ConfigPath string
	Logger     *slog.Logger
	Clock      clock.Clock
}

// Server hosts the engine behind HTTP and reports health over gRPC.
type Server struct {
	rt      *hooks.Runtime
	console *console.Console
	logger  *slog.Logger
	cfgPath string

	mu         sync.RWMutex
	cfg        *config.Config
	configHash string

	health     *health.Server
	grpcServer *grpc.Server
	handler    http.Handler
}

// New loads configuration and builds the engine.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg, hash, err := loadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	rt, err := hooks.Build(appCfg, cfg.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	s := &Server{
		rt:         rt,
		console:    console.New(rt.Engine, logger.With("component", "console")),
		logger:     logger,
		cfgPath:    cfg.ConfigPath,
		cfg:        appCfg,
		configHash: hash,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.handler = s.routes()
	return s, nil
}

func loadConfig(path string) (*config.Config, string, error) {
	cfg, hash, err := config.LoadConfigWithHash(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, hash, nil
}

// Engine returns the hook engine.
func (s *Server) Engine() *hooks.Engine { return s.rt.Engine }

// Config returns the active configuration.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ConfigHash returns the hash of the config file last applied.
func (s *Server) ConfigHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configHash
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))
	r.Use(s.requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/hooks", func(r chi.Router) {
			r.Post("/message_received", s.handleMessageReceived)
			r.Post("/before_agent_start", s.handleBeforeAgentStart)
			r.Post("/message_sending", s.handleMessageSending)
			r.Post("/before_tool_call", s.handleBeforeToolCall)
			r.Post("/agent_end", s.handleAgentEnd)
		})
		r.Post("/console", s.handleConsole)
		r.Get("/status", s.handleStatus)
		r.Get("/audit", s.handleAudit)
		r.Get("/audit/stats", s.handleAuditStats)
		r.Get("/alerts", s.handleAlerts)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	})
}

// ReloadConfig re-reads the config file and applies level, webhooks and
// global trust. An unchanged file is a no-op.
func (s *Server) ReloadConfig() error {
	cfg, hash, err := loadConfig(s.cfgPath)
	if err != nil {
		return err
	}
	if hash == s.ConfigHash() {
		return nil
	}
	if err := s.rt.Apply(cfg); err != nil {
		return fmt.Errorf("failed to apply config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.configHash = hash
	s.mu.Unlock()
	s.logger.Info("config reloaded", "config_hash", hash, "level", cfg.Level)
	return nil
}

// Serve listens on the configured addresses and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	cfg := s.Config().Server
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddr, err)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
	}
	return s.ServeOn(ctx, httpLis, grpcLis)
}

// ServeOn serves HTTP on httpLis and gRPC health on grpcLis, which may be nil,
// until ctx is done, then shuts both down gracefully.
func (s *Server) ServeOn(ctx context.Context, httpLis, grpcLis net.Listener) error {
	s.rt.StartSweeps(s.Config())

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("http listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			s.logger.Info("grpc health listening", "addr", grpcLis.Addr().String())
			if err := s.grpcServer.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.logger.Info("shutting down")
	s.health.Shutdown()

	timeout := s.Config().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("http shutdown: %w", err))
	}
	s.grpcServer.GracefulStop()
	return serveErr
}

// Close releases the engine's resources. Call after ServeOn returns.
func (s *Server) Close() error {
	return s.rt.Close()
}
