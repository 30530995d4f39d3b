package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/boardsync/internal/server/metrics"
)

// MetricsMiddleware считает запросы и их длительность по шаблону маршрута.
// Шаблон вместо пути не дает идентификаторам досок раздувать число серий.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		route := routeTemplate(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
