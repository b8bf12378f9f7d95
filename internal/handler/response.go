package handler

import (
	"encoding/json"
	"net/http"

	"github.com/affiliatehub/backend/internal/contextkeys"
	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/logger"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. Content saves can carry base64 media.
const maxBodyBytes = 32 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Log.Warn("failed to encode JSON response", zap.Error(err))
		}
	}
}

// Error writes an error JSON response. Vendor failures carry their kind,
// code and console link so the client can tell the user what to fix.
func Error(w http.ResponseWriter, err error) {
	if vErr, ok := domain.AsVendorError(err); ok {
		JSON(w, vErr.HTTPStatus(), vErr)
		return
	}
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			logger.Log.Error("request failed", zap.Error(err))
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.Message})
		return
	}
	logger.Log.Error("unhandled error", zap.Error(err))
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// currentUser returns the authenticated user, writing a 401 when there is none.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := contextkeys.UserIDFrom(r.Context())
	if id == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}
	return id, true
}
