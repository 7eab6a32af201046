package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/roomify/apiserver/config"
	"github.com/roomify/apiserver/internal/audit"
	"github.com/roomify/apiserver/internal/authz"
	"github.com/roomify/apiserver/internal/db"
	"github.com/roomify/apiserver/internal/handlers"
	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/internal/mq"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/internal/store"
	"github.com/roomify/apiserver/internal/token"
)

// Server wraps the API listener, the metrics listener and the resources
// they share.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	router        *chi.Mux
	db            *sql.DB
	broker        mq.Broker
	logger        *slog.Logger
}

// New wires the application. A missing signing secret is an error and no
// listener is created.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := token.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	accountRepo := store.NewAccountRepository(dbConn)
	auditRepo := store.NewAuditRepository(dbConn)

	var (
		sink   audit.Sink
		broker mq.Broker
	)
	if cfg.Audit.Backend == "db" {
		sink = audit.NewStoreSink(auditRepo)
	} else {
		broker, err = mq.Open(ctx, cfg)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("open audit broker: %w", err)
		}
		sink = audit.NewBrokerSink(broker, cfg.Audit.Channel)
	}
	recorder := audit.NewRecorder(sink, audit.WithTimeout(cfg.Audit.Timeout), audit.WithLogger(logger))

	lockout := services.NewLockoutService(accountRepo, recorder, services.LockoutPolicy{
		Threshold: cfg.Auth.LockoutThreshold,
		Duration:  cfg.Auth.LockoutDuration,
	})
	status := services.NewAccountStatusCache(accountRepo, cfg.Auth.ActiveCacheTTL)

	authOpts := []services.AuthOption{services.WithAuthLogger(logger)}
	authnOpts := []handlers.AuthenticatorOption{handlers.WithAuthenticatorLogger(logger)}
	if cfg.Auth.EnforceActive {
		authOpts = append(authOpts, services.WithActiveCheck(status))
		authnOpts = append(authnOpts, handlers.WithActiveAccounts(status))
	}

	authService := services.NewAuthService(accountRepo, lockout, codec, recorder, authOpts...)
	staffService := services.NewStaffService(accountRepo, lockout, recorder, status)
	evaluator := authz.NewEvaluator(recorder)

	authenticator := handlers.NewAuthenticator(codec, authnOpts...)
	limiter := handlers.NewLoginLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginBurst)
	authHandler := handlers.NewAuthHandler(authService, logger)
	staffHandler := handlers.NewStaffHandler(staffService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		metrics.Instrument,
	)

	// Reachable without a token: health, login and refresh.
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authenticator.Middleware, limiter)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Route("/staff", func(r chi.Router) {
			handlers.StaffRouter(r, staffHandler, evaluator)
		})
		r.Route("/departments", func(r chi.Router) {
			handlers.DepartmentRouter(r, staffHandler, evaluator)
		})
	})

	// Everything else still requires a token before it can 404.
	router.With(authenticator.Middleware).NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return &Server{
		httpServer:    httpServer,
		metricsServer: metricsServer,
		router:        router,
		db:            dbConn,
		broker:        broker,
		logger:        logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down. The metrics listener
// runs alongside it.
func (s *Server) Start() error {
	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker and the
// database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
