package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/tableservice/internal/config"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"github.com/kiwari-pos/tableservice/internal/handler"
	mw "github.com/kiwari-pos/tableservice/internal/middleware"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
	"github.com/kiwari-pos/tableservice/internal/service"
	"github.com/kiwari-pos/tableservice/internal/ws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New creates a Chi router with all application routes wired up.
// Every route except /health and the websocket upgrade needs a bearer token;
// /admin additionally needs OWNER or MANAGER.
func New(cfg *config.Config, coord *service.Coordinator, queue *printqueue.Queue, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("tableservice",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (browsers cannot set headers on the upgrade)
	r.With(mw.AuthenticateQuery(cfg.JWTSecret)).Method(http.MethodGet, "/ws/{room}", ws.NewHandler(hub, cfg.AllowedOrigins))

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		tableHandler := handler.NewTableHandler(coord)
		r.Route("/tables", tableHandler.RegisterRoutes)

		orderHandler := handler.NewOrderHandler(coord)
		r.Route("/orders", orderHandler.RegisterRoutes)

		printJobHandler := handler.NewPrintJobHandler(queue)
		r.Route("/print-jobs", printJobHandler.RegisterRoutes)

		// Maintenance routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
			adminHandler := handler.NewAdminHandler(coord, queue, cfg.LockTTL, cfg.PrintLeaseTTL)
			r.Route("/admin", adminHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
