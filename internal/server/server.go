package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"sealflow/internal/config"
	"sealflow/internal/reminder"
	"sealflow/internal/workflow"
)

// HealthChecker reports backing store health for the /health endpoint.
type HealthChecker interface {
	Health() map[string]string
}

// Server holds the wired application services behind the HTTP surface.
type Server struct {
	cfg       config.AppConfig
	signing   *workflow.Service
	scheduler *reminder.Scheduler
	health    HealthChecker
	logger    *zap.Logger
}

// New assembles a Server from its collaborators.
func New(cfg config.AppConfig, signing *workflow.Service, scheduler *reminder.Scheduler, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		signing:   signing,
		scheduler: scheduler,
		health:    health,
		logger:    logger,
	}
}

func (s *Server) GetSigning() *workflow.Service {
	return s.signing
}

func (s *Server) GetScheduler() *reminder.Scheduler {
	return s.scheduler
}

func (s *Server) GetLogger() *zap.Logger {
	return s.logger
}

// HTTPServer returns the configured http.Server ready to listen.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.HTTPAddress,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
