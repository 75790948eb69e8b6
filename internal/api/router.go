package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMetrics records request outcomes and exposes the scrape endpoint.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, status int, took time.Duration)
	Handler() http.Handler
}

type RouterOptions struct {
	Metrics        HTTPMetrics
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(svc RewardsService, opts RouterOptions) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	limited := func(next http.Handler) http.Handler { return next }
	if opts.RateLimitRPS > 0 {
		limited = newUserRateLimiter(opts.RateLimitRPS, max(opts.RateLimitBurst, 1)).Handler
	}

	r.Route("/users/{userId}", func(r chi.Router) {
		r.With(limited).Post("/", h.InitializeUserHandler)
		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/transactions", h.GetTransactionsHandler)
		r.Get("/missions", h.GetMissionsHandler)
		r.Get("/eco", h.GetEcoHandler)
		r.Get("/summary", h.GetSummaryHandler)

		r.Group(func(r chi.Router) {
			r.Use(limited)

			r.Post("/earn", h.EarnHandler)
			r.Post("/spend", h.SpendHandler)
			r.Post("/convert", h.ConvertHandler)
			r.Post("/missions/{missionId}/progress", h.ProgressMissionHandler)
			r.Post("/missions/{missionId}/complete", h.CompleteMissionHandler)
		})
	})

	return r
}

func requestLogger(m HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			took := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			if m != nil {
				m.ObserveHTTP(r.Method, route, status, took)
			}

			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"took", took,
			)
		})
	}
}
