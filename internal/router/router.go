package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/ordering/internal/config"
	"github.com/kiwari-pos/ordering/internal/handler"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/kiwari-pos/ordering/internal/ws"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Orders  handler.OrderServicer
	Catalog store.Catalog
	Users   handler.AuthStore
	Hub     *ws.Hub
	Broker  ws.Subscriber
}

// New creates a Chi router with all application routes wired up.
// Authentication and role checks are applied per route group by the handlers.
func New(cfg *config.Config, deps Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.GuestTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(deps.Users, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, deps.Broker, cfg.JWTSecret, w, r)
	})

	// Menu (browse is public, writes are staff only)
	foodHandler := handler.NewFoodHandler(deps.Catalog, cfg.JWTSecret)
	r.Route("/foods", foodHandler.RegisterRoutes)

	// Orders (checkout accepts guests, the rest needs a token)
	orderHandler := handler.NewOrderHandler(deps.Orders, cfg.JWTSecret)
	r.Route("/orders", orderHandler.RegisterRoutes)

	return r
}
