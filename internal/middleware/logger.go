package middleware

import (
	"net/http"
	"time"

	"github.com/affiliatehub/backend/pkg/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Logger logs each HTTP request with method, path, status, and duration.
// It must run after chi's RequestID middleware.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		}

		if status >= http.StatusInternalServerError {
			logger.Warn(r.Context(), "request", fields...)
			return
		}
		logger.Info(r.Context(), "request", fields...)
	})
}
