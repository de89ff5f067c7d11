package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"service-dispatch/internal/http/handlers"
	ownmw "service-dispatch/internal/http/middleware"
	"service-dispatch/internal/logx"
)

// New constructs a chi-based http.Handler with base middleware and routes.
func New(logger logx.Logger, base *handlers.Handlers, delivery *handlers.DeliveryHandler, driver *handlers.DriverHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(ownmw.Observability(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(15 * time.Second))

	r.Get("/ping", base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(base.HealthcheckHead))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/deliveries", func(r chi.Router) {
		r.Post("/assign", delivery.Assign)
		r.Get("/{id}", delivery.Get)
		r.Post("/{id}/accept", delivery.Accept)
		r.Post("/{id}/reject", delivery.Reject)
		r.Post("/{id}/picked-up", delivery.PickedUp)
		r.Post("/{id}/en-route", delivery.EnRoute)
		r.Post("/{id}/arrived", delivery.Arrived)
		r.Post("/{id}/delivered", delivery.Delivered)
		r.Post("/{id}/failed", delivery.Failed)
		r.Post("/{id}/cancel", delivery.Cancel)
		r.Post("/{id}/manual-assign", delivery.ManualAssign)
	})
	r.Get("/orders/{orderID}/delivery", delivery.GetByOrder)

	r.Route("/drivers", func(r chi.Router) {
		r.Get("/{id}/availability", driver.Availability)
		r.Post("/{id}/online", driver.Online)
		r.Post("/{id}/offline", driver.Offline)
		r.Put("/{id}/location", driver.Location)
	})

	r.NotFound(http.HandlerFunc(base.NotFound))

	return r
}
