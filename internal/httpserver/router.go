package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "chatup/docs"
	"chatup/internal/config"
	"chatup/internal/domain"
	"chatup/internal/media"
	"chatup/internal/security"
	"chatup/internal/service"
	"chatup/internal/ws"
)

// Dependencies is everything the router needs; cmd/server builds it.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Users    domain.UserRepository
	Tokens   *security.TokenService
	Auth     *service.AuthService
	UserSvc  *service.UserService
	Messages *service.MessageService
	Media    *media.LocalHost
	Registry *ws.Registry
	// Limiter is optional; auth routes are unthrottled without it.
	Limiter *RateLimiter
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Dependencies) http.Handler {
	cfg := d.Config
	log := d.Logger

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "chatup API", "version": "1.0.0", "docs": "/docs/index.html"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Server is live"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// The socket outlives any request timeout, so it sits outside that group.
	r.Get("/ws", ws.MakeHandler(d.Registry, d.Tokens, d.Users, ws.HandlerConfig{
		AllowedOrigins: cfg.CORSOrigins,
		SendBuffer:     cfg.WSSendBuffer,
	}, log))

	auth := AuthMiddleware(d.Tokens, d.Users, log)
	throttle := func(name string, n int, window time.Duration) func(http.Handler) http.Handler {
		if d.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return d.Limiter.Limit(name, n, window)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(limitBody(cfg.MaxBodyBytes))

		r.Route("/auth", func(r chi.Router) {
			r.With(throttle("signup", 10, time.Hour)).Post("/signup", handleSignup(d.Auth, log))
			r.With(throttle("login", 20, time.Minute)).Post("/login", handleLogin(d.Auth, log))

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Get("/check", handleCheck())
				r.Put("/update-profile", handleUpdateProfile(d.UserSvc, log))
				r.Post("/logout", handleLogout(d.Registry, log))
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(auth)
			r.Get("/users", handleContacts(d.UserSvc, log))
			r.Post("/send/{id}", handleSendMessage(d.Messages, log))
			r.Put("/mark/{id}", handleMarkSeen(d.Messages, log))
			r.Get("/{id}", handleConversation(d.Messages, log))
		})

		r.Mount("/uploads", UploadRoutes(d.Media, auth, log))
	})

	return r
}
