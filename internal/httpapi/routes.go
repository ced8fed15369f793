package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/hub"
	"github.com/raidx/scorer/internal/ws"
)

type Deps struct {
	Hub      *hub.Hub
	Store    SnapshotLoader
	Gateway  *ws.Gateway
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	r.Post("/matches", CreateMatch(d.Hub, d.Store, log))
	r.Get("/matches/{matchID}", GetMatch(d.Hub, d.Store, log))

	r.Get("/ws/scorer/{matchID}", d.Gateway.ScorerHandler())
	r.Get("/ws/viewer/{matchID}", d.Gateway.ViewerHandler())
	return r
}
