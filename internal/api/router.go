package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salvatore0626/PiZeroMetarMap/internal/websocket"
)

// Router assembles the HTTP routes
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
}

// NewRouter creates a new router
func NewRouter(handler *Handler, wsServer *websocket.Server) *Router {
	return &Router{
		handler:  handler,
		wsServer: wsServer,
	}
}

// Routes returns the mounted chi router
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/conditions", r.handler.GetConditions)
		api.Get("/status", r.handler.GetStatus)
		api.Get("/stations", r.handler.GetStations)
		api.Post("/refresh", r.handler.TriggerRefresh)
	})

	router.Get("/healthz", r.handler.Healthz)
	router.Get("/ws", r.wsServer.HandleConnection)
	router.Handle("/metrics", promhttp.Handler())

	return router
}
