package middleware

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/contextkeys"
	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/handler"
	"github.com/affiliatehub/backend/pkg/logger"
	"go.uber.org/zap"
)

// AdminOnly lets through only callers whose token carries the admin role.
// It must run after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if contextkeys.RoleFrom(ctx) != domain.RoleAdmin {
			logger.Warn(ctx, "admin route refused", zap.String("user_id", contextkeys.UserIDFrom(ctx)), zap.String("path", r.URL.Path))
			handler.Error(w, domain.ErrForbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
