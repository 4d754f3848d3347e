package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/api"
	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/internal/cron"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/repository"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/services"
	"github.com/customeros/lenderinbox/services/events"
)

const (
	shutdownTimeout     = 15 * time.Second
	listenerStopTimeout = 10 * time.Second
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
	daemonDone   chan struct{}
}

func NewServer(cfg *config.Config, log logger.Logger, db *gorm.DB) (*Server, error) {
	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(db)

	// Initialize services
	svcs, err := services.InitServices(cfg, log, repos)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cron.NewCronManager(cfg.CronConfig, log, svcs.ListenerService, cfg.ListenerConfig.RunTimeout),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Initialize(ctx context.Context) error {
	// Trigger batch runs from RabbitMQ
	runListener := events.NewRunRequestedListener(s.log, s.services.ListenerService, s.config.ListenerConfig.RunTimeout)
	if err := s.services.EventsService.ListenForRunRequests(runListener); err != nil {
		return err
	}

	// Setup API routes
	api.RegisterRoutes(ctx, s.router, s.services.ListenerService, s.config.AppConfig.APIKey, s.config.ListenerConfig.RunTimeout)

	return s.cronManager.Start()
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// Run starts the HTTP surface, the scheduled batch runs and, when enabled, the
// mailbox daemon, then blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	if s.config.ListenerConfig.DaemonEnabled {
		s.daemonDone = make(chan struct{})
		go s.wrapGoroutine("listener_daemon", func() {
			defer close(s.daemonDone)
			s.log.Info("Starting listener daemon")
			if err := s.services.ListenerService.Run(ctx); err != nil {
				s.log.Errorf("Listener daemon error: %v", err)
			}
		})
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("lenderinbox is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.cronManager.Stop()

	if s.daemonDone != nil {
		s.services.ListenerService.Stop()
		select {
		case <-s.daemonDone:
			s.log.Info("Listener daemon stopped")
		case <-time.After(listenerStopTimeout):
			s.log.Warn("Listener daemon stop timed out, forcing exit")
		}
	}

	if err := s.services.EventsService.Close(); err != nil {
		s.log.Warnf("Events shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	return nil
}
