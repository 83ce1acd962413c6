package server

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/admin"
	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/config"
	"github.com/Hata214/BackEnd/internal/http/handlers"
	"github.com/Hata214/BackEnd/internal/metrics"
	"github.com/Hata214/BackEnd/internal/middleware"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.AccountStore, log logrus.FieldLogger) *Server {
	return &Server{inner: &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewHandler(cfg, store, metrics.New(), log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

// NewHandler builds the full HTTP handler tree. It is separate from New so
// tests can drive it through httptest.
func NewHandler(cfg config.Config, store storage.AccountStore, m *metrics.Metrics, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	authn := auth.NewAuthenticator(store, auth.NewBcryptPasswords(cfg.BcryptCost), tokens,
		auth.WithLockoutPolicy(auth.LockoutPolicy{Threshold: cfg.LockoutThreshold, Window: cfg.LockoutWindow}),
		auth.WithMetrics(m),
		auth.WithLogger(log),
	)
	gate := middleware.NewGate(tokens, store, m, log)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), func(ctx context.Context) error {
		_, err := store.CountByRole(ctx, models.RoleSuperAdmin)
		return err
	}, log).Register(mux)
	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMin, cfg.LoginRateBurst, m, log)
	handlers.NewAuthHandler(authn, store, gate, limiter, log).Register(mux)
	handlers.NewAdminHandler(admin.NewService(store, m, log), gate, log).Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	return middleware.CORS(cfg.CORSOrigins, middleware.Logging(log, m, mux))
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
