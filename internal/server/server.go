// Package server is the composition root: it wires config, logger, the auth subsystem, the
// Change Manager, and the HTTP router, and owns graceful shutdown — following the teacher's
// New()/setupRoutes()/Start() shape.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/crrserver/core/internal/authsvc"
	"github.com/crrserver/core/internal/changemgr"
	"github.com/crrserver/core/internal/config"
	"github.com/crrserver/core/internal/httpapi"
	"github.com/crrserver/core/internal/middleware"
)

// Server owns the HTTP router and every long-lived collaborator that must be shut down in
// step with it: the auth store's connection pool and the Change Manager's registry.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	store    *authsvc.Store
	registry *changemgr.Registry
}

// New assembles the composition root: config → auth store → token service → mailer → Change
// Manager → router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("server: creating data dir: %w", err)
	}

	store, err := authsvc.OpenStore(filepath.Join(cfg.DataDir, "auth.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("server: opening auth store: %w", err)
	}

	tokens := authsvc.NewTokenService(cfg.JWTSecret)

	var mailer authsvc.EmailSender
	if cfg.SMTP.Host != "" {
		mailer = authsvc.NewSMTPSender(authsvc.SMTPConfig{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
			User: cfg.SMTP.User, Password: cfg.SMTP.Password, From: cfg.SMTP.From,
		})
	} else {
		logger.Warn("no CRR_SMTP_HOST configured — otp emails are discarded")
		mailer = authsvc.NoopSender{}
	}

	auth := authsvc.NewService(store, tokens, mailer, cfg.DataDir, cfg.AdminToken)
	registry := changemgr.NewRegistry(cfg.DataDir, logger)

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
	}
	s.setupRoutes(auth, registry)

	return s, nil
}

func (s *Server) setupRoutes(auth *authsvc.Service, registry *changemgr.Registry) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := httpapi.NewAuthHandler(auth, s.logger)
	s.router.Post("/auth/otp", authHandler.HandleRequestOTP)
	s.router.Post("/auth/token", authHandler.HandleExchangeToken)

	dbHandler := httpapi.NewDBHandler(s.cfg.DataDir, auth, registry, s.logger)
	s.router.Route("/db/{name}", func(r chi.Router) {
		r.Use(middleware.RequireIdentity(auth))
		r.Post("/migrate", dbHandler.HandleMigrate)
		r.Post("/changes", dbHandler.HandleApplyChanges)
		r.Get("/changes", dbHandler.HandleStream)
		r.Post("/run", dbHandler.HandleRun)
	})
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts it and every owned collaborator
// down: the auth store's pool, then the registry's GC goroutine and publisher tasks.
func (s *Server) Start() error {
	defer s.registry.Close()
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived and must not be cut off by a write deadline
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.Int("port", s.cfg.Port), slog.String("data_dir", s.cfg.DataDir))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
