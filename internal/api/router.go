// Bitcurve - Video Bitrate Analysis and Interactive Timeline Exploration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bitcurve

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/bitcurve/internal/config"
)

// Router assembles the HTTP surface from the handler set and middleware
// factories.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for the given handler set.
func NewRouter(handler *Handler, cfg *config.Config) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.API.CORSOrigins
	mwConfig.RateLimitRequests = cfg.API.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.API.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.API.RateLimitDisabled

	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// Setup configures all HTTP routes using Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Get("/health", router.handler.Health)

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", router.handler.StartAnalysis)
			r.Get("/current", router.handler.CurrentAnalysis)
			r.Delete("/current", router.handler.CancelAnalysis)
			r.Post("/window", router.handler.SetWindow)
		})

		r.Get("/windows", router.handler.Windows)
		r.Get("/video", router.handler.VideoInfo)

		r.Route("/series", func(r chi.Router) {
			r.Get("/overview", router.handler.SeriesOverview)
			r.Get("/visible", router.handler.SeriesVisible)
			r.Get("/range", router.handler.SeriesRange)
		})

		r.Route("/viewport", func(r chi.Router) {
			r.Get("/", router.handler.GetViewport)
			r.Post("/zoom", router.handler.ViewportZoom)
			r.Post("/pan", router.handler.ViewportPan)
			r.Post("/reset", router.handler.ViewportReset)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/", router.handler.GetScheduler)
			r.Post("/background", router.handler.SchedulerBackground)
			r.Post("/eco", router.handler.SchedulerEco)
		})

		r.Get("/ws", router.handler.WebSocket)
	})

	// Prometheus scrape endpoint, outside the rate-limited API tree.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
