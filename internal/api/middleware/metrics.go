// metrics.go — Prometheus-метрики HTTP-слоя.
// Бизнес-метрики (загрузки, удаления, кэш) живут в пакете service.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute — метка пути для запросов, не попавших ни в один маршрут.
const unmatchedRoute = "other"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mh_http_requests_total",
		Help: "Количество HTTP-запросов по маршрутам и статусам.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mh_http_request_duration_seconds",
		Help: "Длительность обработки HTTP-запросов.",
		// Загрузка больших видео занимает минуты
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 2, 10, 60, 300},
	}, []string{"method", "route"})

	httpResponseBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mh_http_response_bytes_total",
		Help: "Объём тел HTTP-ответов в байтах.",
	}, []string{"route"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mh_http_requests_in_flight",
		Help: "Количество обрабатываемых запросов.",
	})
)

// MetricsMiddleware считает запросы, длительность и объём ответов.
// Метка route — шаблон chi ("/uploads/{id}"), поэтому id файлов
// не попадают в кардинальность. Ставится на корневой роутер.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			httpResponseBytes.WithLabelValues(route).Add(float64(rw.written))
		})
	}
}

// routeLabel читает шаблон маршрута, заполненный chi во время роутинга.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
		return pattern
	}
	return unmatchedRoute
}
