// Package server assembles the kernel instance and the debug API around it.
package server

import (
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/kestrelos/kestrel/internal/api/http"
	"github.com/kestrelos/kestrel/internal/api/middleware"
	"github.com/kestrelos/kestrel/internal/api/ws"
	"github.com/kestrelos/kestrel/internal/infrastructure/config"
	"github.com/kestrelos/kestrel/internal/infrastructure/logging"
	"github.com/kestrelos/kestrel/internal/infrastructure/monitoring"
	"github.com/kestrelos/kestrel/internal/kernel"
)

// Server hosts one kernel instance behind the debug HTTP API.
type Server struct {
	router  *gin.Engine
	kernel  *kernel.Kernel
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New boots a kernel and wires the API around it.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	metrics := monitoring.NewMetrics()

	var sink io.Writer
	if cfg.Kernel.ConsoleStdout {
		sink = os.Stdout
	}
	k := kernel.Boot(kernel.Config{
		TraceBufferBytes: cfg.Kernel.TraceBufferBytes,
		UserMemBytes:     cfg.Kernel.UserMemBytes,
		ConsoleSink:      sink,
	}, logger.Named("kernel").Logger)
	k.Syscalls.Instrument(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger.Named("http").Logger))
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORS(cfg.Server.AllowOrigins))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst))
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(k, logger.Named("api").Logger)
	handlers.Register(router.Group("/v1"))

	wsHandler := ws.NewHandler(k.Trace, logger.Named("ws").Logger)
	router.GET("/v1/ktrace/stream", wsHandler.StreamTrace)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s := &Server{
		router:  router,
		kernel:  k,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
	s.startGauges()
	return s, nil
}

// Kernel exposes the hosted kernel, mainly for tests.
func (s *Server) Kernel() *kernel.Kernel { return s.kernel }

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting debug API",
		zap.String("addr", addr),
		zap.String("boot_id", s.kernel.BootID()))
	return s.router.Run(addr)
}

// Close flushes the logger. The kernel state dies with the process.
func (s *Server) Close() error {
	s.logger.Info("shutting down", zap.String("boot_id", s.kernel.BootID()))
	s.logger.Sync()
	return nil
}

// startGauges sources the kernel-state gauges, refreshed on scrape.
func (s *Server) startGauges() {
	s.metrics.SetGaugeSource(func() (traceUsed float64, processes float64) {
		st := s.kernel.Trace.Stats()
		return float64(st.Used), float64(len(s.kernel.Processes()))
	})
}
