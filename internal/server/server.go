package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shortlyhq/shortly/internal/account"
	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/httpx"
	"github.com/shortlyhq/shortly/internal/link"
)

// Server represents the HTTP server with all dependencies.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	tokens   *auth.TokenService
	accounts *account.Handler
	links    *link.Handler
	server   *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, tokens *auth.TokenService, accounts *account.Handler, links *link.Handler) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		tokens:   tokens,
		accounts: accounts,
		links:    links,
	}
}

// Handler returns the fully routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	// Listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	// Listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		// Attempt graceful shutdown
		if err := s.server.Shutdown(ctx); err != nil {
			// Force close if graceful shutdown fails
			if closeErr := s.server.Close(); closeErr != nil {
				return fmt.Errorf("failed to close server: %w", closeErr)
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		s.logger.Info("server stopped gracefully")
		return nil
	}
}

// setupRoutes configures all HTTP routes. Protected routes sit behind the
// mandatory guard; link creation uses the optional guard so anonymous
// creation keeps working.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	requireAuth := auth.RequireAuth(s.tokens, s.logger)
	optionalAuth := auth.OptionalAuth(s.tokens)

	// Health check endpoint
	mux.HandleFunc("GET /x/health", s.healthCheckHandler)

	mux.HandleFunc("POST /api/v1/auth/register", s.accounts.Register)
	mux.HandleFunc("POST /api/v1/auth/login", s.accounts.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.accounts.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.accounts.Logout)

	mux.Handle("GET /api/v1/user/me", requireAuth(http.HandlerFunc(s.accounts.Me)))
	mux.Handle("PUT /api/v1/user/me", requireAuth(http.HandlerFunc(s.accounts.UpdateMe)))
	mux.Handle("PUT /api/v1/user/password", requireAuth(http.HandlerFunc(s.accounts.ChangePassword)))
	mux.Handle("GET /api/v1/user/links", requireAuth(http.HandlerFunc(s.links.ListUserLinks)))

	mux.Handle("POST /api/v1/shorten", optionalAuth(http.HandlerFunc(s.links.CreateLink)))
	mux.HandleFunc("GET /api/v1/info/{slug}", s.links.LinkInfo)
	mux.Handle("PUT /api/v1/shorten/{slug}", requireAuth(http.HandlerFunc(s.links.UpdateLink)))
	mux.Handle("DELETE /api/v1/{slug}", requireAuth(http.HandlerFunc(s.links.DeleteLink)))

	mux.HandleFunc("GET /{slug}", s.links.ResolveLink)

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID,          // Add request ID
		httpx.Logger(s.logger),   // Log requests
		httpx.CORS(nil),          // CORS headers (allow all in dev)
	)(handler)
}

// healthCheckHandler handles health check requests.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"env":    s.config.App.Environment,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
