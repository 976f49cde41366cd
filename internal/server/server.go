// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which store, mailer, revocation list and identity providers to build
//     from the configuration
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  repository.Store (sqlite | mongo)
//	  cache.Revocations (optional, Redis)
//	  mailer.Sender (log | ses)
//	  auth.TokenService, auth.PasswordService, identity providers
//	  → services → handlers → routes
//
// This is the "composition root": every dependency is built here and
// nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/dietcraft/internal/auth"
	"github.com/sakif/dietcraft/internal/cache"
	"github.com/sakif/dietcraft/internal/config"
	"github.com/sakif/dietcraft/internal/handler"
	"github.com/sakif/dietcraft/internal/mailer"
	"github.com/sakif/dietcraft/internal/middleware"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/questionnaire"
	"github.com/sakif/dietcraft/internal/repository"
	"github.com/sakif/dietcraft/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/dietcraft/internal/repository/sqlite"
	"github.com/sakif/dietcraft/internal/service"
)

// connectTimeout bounds each outbound connection made at startup.
const connectTimeout = 10 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store connection and, when configured, the Redis
// client. Close releases both; Start calls it on shutdown.
type Server struct {
	router      *chi.Mux
	config      *config.Config
	logger      *slog.Logger
	store       repository.Store
	revocations *cache.Revocations // nil without Redis
}

// New builds every dependency described by cfg and the routes on top.
// cfg should have passed Validate.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	mail, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if cfg.RedisEnabled() {
		s.revocations = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := s.revocations.Ping(pingCtx)
		cancel()
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
	} else {
		logger.Warn("REDIS_ADDR not set: logout clears the cookie but tokens stay valid until they expire")
	}

	s.setupRoutes(tokens, auth.NewPasswordService(), mail)
	return s, nil
}

// openStore connects the configured repository backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := mongodb.New(connCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return store, nil

	default:
		// os.MkdirAll is `mkdir -p`: creates data/ on first run.
		if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		store, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, nil
	}
}

func newMailer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mailer.Sender, error) {
	if cfg.MailDriver != config.MailSES {
		logger.Warn("MAIL_DRIVER=log: reset codes are written to the log, not emailed")
		return mailer.NewLogSender(logger), nil
	}
	ses, err := mailer.NewSESSender(ctx, cfg.AWSRegion, cfg.SESEmail)
	if err != nil {
		return nil, fmt.Errorf("creating SES mailer: %w", err)
	}
	return ses, nil
}

// identityProviders returns the providers that have credentials.
func identityProviders(cfg *config.Config) []auth.IdentityProvider {
	var providers []auth.IdentityProvider
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubProvider(
			cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.CallbackURL(model.ProviderGitHub)))
	}
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleProvider(
			cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL(model.ProviderGoogle)))
	}
	return providers
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                              → liveness
// POST   /api/auth/register                    → create local account
// POST   /api/auth/login                       → local login
// POST   /api/auth/reset-password              → mail a reset code
// POST   /api/auth/verify-otp                  → check a reset code
// POST   /api/auth/reset-password/{code}       → set password with code
// GET    /api/auth/{provider}                  → start provider login
// GET    /api/auth/{provider}/callback         → finish provider login
// GET    /api/auth/user                        → current user        [auth]
// POST   /api/auth/logout                      → end session         [auth]
// PUT    /api/auth/password                    → change password     [auth]
// POST   /api/profile/health                   → save profile        [auth]
// GET    /api/profile/health                   → read profile        [auth]
// PUT    /api/profile/health                   → partial update      [auth]
// GET    /api/profile/questionnaire            → random questions    [auth]
// POST   /api/profile/questionnaire/analyze    → recommendations     [auth]
// POST   /api/meal-plan                        → generate plan       [auth]
// GET    /api/meal-plan                        → list plans          [auth]
// GET    /api/meal-plan/targets                → daily targets       [auth]
// GET    /api/meal-plan/{id}                   → one plan            [auth]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can tag every line with it; Recoverer
// sits inside the logger so a panic is logged as the 500 it became.
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords *auth.PasswordService, mail mailer.Sender) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// A nil *cache.Revocations stored in an interface is not a nil
	// interface, so both are passed explicitly.
	var revoker service.SessionRevoker
	var checker auth.RevocationChecker
	if s.revocations != nil {
		revoker = s.revocations
		checker = s.revocations
	}

	authService := service.NewAuthService(s.store, tokens, passwords, mail, revoker, s.logger)
	profileService := service.NewProfileService(s.store, s.logger)
	mealPlanService := service.NewMealPlanService(s.store, s.store, s.logger)
	assessmentService := service.NewAssessmentService(questionnaire.New(), s.logger)

	authHandler := handler.NewAuthHandler(authService, identityProviders(s.config), handler.AuthConfig{
		FrontendURL:   s.config.FrontendURL,
		SecureCookies: strings.HasPrefix(s.config.BackendURL, "https://"),
	}, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	questionnaireHandler := handler.NewQuestionnaireHandler(assessmentService, s.logger)
	mealPlanHandler := handler.NewMealPlanHandler(mealPlanService, s.logger)

	s.router.Get("/healthz", handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// === Public routes ===
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/reset-password", authHandler.HandleResetRequest)
		r.Post("/auth/verify-otp", authHandler.HandleVerifyOTP)
		r.Post("/auth/reset-password/{code}", authHandler.HandleResetComplete)

		// One pair of routes per configured provider. An unconfigured
		// provider is a plain 404.
		for _, p := range authHandler.Providers() {
			r.Get("/auth/"+p, authHandler.HandleProviderLogin(p))
			r.Get("/auth/"+p+"/callback", authHandler.HandleProviderCallback(p))
			s.logger.Info("identity provider enabled", slog.String("provider", p))
		}

		// === Protected routes ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens, checker, s.logger))

			r.Get("/auth/user", authHandler.HandleMe)
			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Put("/auth/password", authHandler.HandleChangePassword)

			r.Route("/profile", func(r chi.Router) {
				r.Post("/health", profileHandler.HandleCreate)
				r.Get("/health", profileHandler.HandleGet)
				r.Put("/health", profileHandler.HandleUpdate)
				r.Get("/questionnaire", questionnaireHandler.HandleGenerate)
				r.Post("/questionnaire/analyze", questionnaireHandler.HandleAnalyze)
			})

			r.Route("/meal-plan", func(r chi.Router) {
				r.Post("/", mealPlanHandler.HandleCreate)
				r.Get("/", mealPlanHandler.HandleList)
				// Static segments win over {id} in chi, whatever the order.
				r.Get("/targets", mealPlanHandler.HandleTargets)
				r.Get("/{id}", mealPlanHandler.HandleGet)
			})
		})
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if err := s.revocations.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing redis: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store and Redis connections
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BackendURL),
			slog.String("store", s.config.StoreDriver),
			slog.String("mail", s.config.MailDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.Close(context.Background())
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.Close(ctx)
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := s.Close(ctx); err != nil {
			return err
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
