/*
Package handler provides the read-only admin HTTP API: health, who is
online, and the current chat history.

This file defines the main Router, applying necessary middleware like
logging, CORS, and IP-based rate limiting before delegating requests to the
specific handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatwire/internal/pkg/limiter"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/resp"
)

const (
	APIRate  = 5
	APIBurst = 10
)

// Router sets up the admin HTTP routing table (chi.Router). It initializes
// IP-based rate limiting, configures CORS, and applies global middleware.
func Router(deps *AppDeps) http.Handler {
	apiLimiter := limiter.NewIPRateLimiter(rate.Limit(APIRate), APIBurst)

	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": deps.Config.ServerName,
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware)

		api.Get("/server/info", HandleServerInfo(deps))
		api.Get("/users/online", HandleOnlineUsers(deps))
		api.Get("/chat/history", HandleChatHistory(deps))
		api.Post("/chat/announce", HandleAnnounce(deps))
	})

	return r
}
