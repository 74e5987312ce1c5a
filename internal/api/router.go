package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	_ "github.com/rohits-web03/todo-api/docs"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/rohits-web03/todo-api/internal/api/handlers"
	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/metrics"
	"github.com/rs/cors"
)

type RouterConfig struct {
	Handler            *handlers.Handler
	Auth               *middleware.Auth
	Logger             *zap.Logger
	Metrics            metrics.Recorder
	Gatherer           prometheus.Gatherer
	Cors               cors.Options
	LoginRatePerMinute int
	TrustedProxies     middleware.TrustedProxies
}

// todoPrefixes are the mount points of the todo routes; /todos is kept for
// older clients.
var todoPrefixes = []string{"/api/todos", "/todos"}

func SetupRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	mainMux := http.NewServeMux()
	c := cors.New(cfg.Cors)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /{$}", handlers.Index)
	mainMux.HandleFunc("GET /health", handlers.Health)
	if cfg.Gatherer != nil {
		mainMux.Handle("GET /metrics", metrics.Handler(cfg.Gatherer))
	}
	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	// ---------- TODOS ----------
	optional := func(f http.HandlerFunc) http.Handler { return cfg.Auth.Optional(f) }
	for _, prefix := range todoPrefixes {
		mainMux.Handle("POST "+prefix, optional(h.CreateTodo))
		mainMux.HandleFunc("GET "+prefix, h.ListTodos)
		mainMux.HandleFunc("GET "+prefix+"/completed", h.CompletedTodos)
		mainMux.HandleFunc("GET "+prefix+"/pending", h.PendingTodos)
		mainMux.HandleFunc("GET "+prefix+"/due-soon", h.DueSoonTodos)
		mainMux.HandleFunc("GET "+prefix+"/priority/{priority}", h.TodosByPriority)
		mainMux.HandleFunc("GET "+prefix+"/{id}", h.GetTodo)
		mainMux.HandleFunc("PATCH "+prefix+"/{id}", h.UpdateTodo)
		mainMux.HandleFunc("PATCH "+prefix+"/{id}/toggle", h.ToggleTodo)
		mainMux.HandleFunc("DELETE "+prefix+"/{id}", h.DeleteTodo)
	}

	// ---------- USERS ----------
	protected := func(f http.HandlerFunc) http.Handler { return cfg.Auth.Require(f) }
	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.TrustedProxies, cfg.Logger, cfg.Metrics)
	limited := func(f http.HandlerFunc) http.Handler { return limiter.Middleware(f) }

	mainMux.Handle("POST /api/users", limited(h.CreateUser))
	mainMux.HandleFunc("GET /api/users", h.ListUsers)
	mainMux.HandleFunc("GET /api/users/active", h.ActiveUsers)
	mainMux.HandleFunc("GET /api/users/{id}", h.GetUser)
	mainMux.Handle("PATCH /api/users/{id}", protected(h.UpdateUser))
	mainMux.Handle("PATCH /api/users/{id}/password", protected(h.ChangePassword))
	mainMux.Handle("PATCH /api/users/{id}/activate", protected(h.ActivateUser))
	mainMux.Handle("PATCH /api/users/{id}/deactivate", protected(h.DeactivateUser))
	mainMux.Handle("POST /api/users/{id}/profile-image/presign", protected(h.PresignProfileImage))
	mainMux.Handle("POST /api/users/{id}/profile-image/complete", protected(h.CompleteProfileImage))
	mainMux.Handle("DELETE /api/users/{id}", protected(h.DeleteUser))

	// ---------- AUTH ----------
	mainMux.Handle("POST /api/auth/sign-up", limited(h.RegisterUser))
	mainMux.Handle("POST /api/auth/login", limited(h.LoginUser))
	mainMux.HandleFunc("POST /api/auth/logout", h.Logout)
	mainMux.Handle("GET /api/auth/me", protected(h.Me))
	mainMux.HandleFunc("POST /api/auth/verify-email", h.VerifyEmail)
	mainMux.HandleFunc("GET /api/auth/google/login", h.HandleGoogleLogin)
	mainMux.HandleFunc("GET /api/auth/google/callback", h.HandleGoogleCallback)

	mainMux.HandleFunc("/", handlers.NotFound)

	cfg.Logger.Info("router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Logger(cfg.Logger, cfg.Metrics)(handler)
	handler = middleware.Recovery(cfg.Logger)(handler)
	return handler
}
