// Package ws serves the WebSocket endpoints. Browsers cannot set headers on
// WebSocket upgrades, so the JWT travels in the ?token= query parameter.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	readWait  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// TokenVerifier turns a JWT into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// Limiter is the per-user request budget shared with the HTTP AI routes.
type Limiter interface {
	Allow(key string) bool
}

// Message is one server to client frame.
type Message struct {
	Type         string           `json:"type"` // progress, result or error
	Poll         int              `json:"poll,omitempty"`
	Done         bool             `json:"done,omitempty"`
	VideoDataURI string           `json:"videoDataUri,omitempty"`
	Error        string           `json:"error,omitempty"`
	Kind         domain.ErrorKind `json:"kind,omitempty"`
	Code         string           `json:"code,omitempty"`
	ConsoleURL   string           `json:"consoleUrl,omitempty"`
}

// VideoHandler runs one video generation per connection and streams poll
// progress to the client.
type VideoHandler struct {
	ai    *service.AIService
	auth  TokenVerifier
	limit Limiter
	key   func(userID string) string
}

// NewVideoHandler creates a VideoHandler. Connections are counted against
// limit under key(userID) before the upgrade; limit may be nil.
func NewVideoHandler(ai *service.AIService, auth TokenVerifier, limit Limiter, key func(userID string) string) *VideoHandler {
	return &VideoHandler{ai: ai, auth: auth, limit: limit, key: key}
}

// Handle upgrades the request. URL: /ws/ai/video?token=JWT_TOKEN
// The client sends one {prompt, aspectRatio} frame and receives progress
// frames followed by a single result or error frame.
func (h *VideoHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if h.limit != nil && !h.limit.Allow(h.key(claims.Sub)) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded, try again later", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var in domain.VideoInput
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	if err := conn.ReadJSON(&in); err != nil {
		send(conn, Message{Type: "error", Error: "expected a JSON frame with a prompt"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// The client going away cancels the generation.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info(ctx, "video generation requested over websocket", zap.String("user_id", claims.Sub))

	refund, err := h.ai.Charge(ctx, claims.Sub)
	if err != nil {
		send(conn, errorMessage(err))
		return
	}

	out, err := h.ai.GenerateVideo(ctx, in, func(p domain.VideoProgress) {
		send(conn, Message{Type: "progress", Poll: p.Poll, Done: p.Done})
	})
	if err != nil {
		refund()
		send(conn, errorMessage(err))
		return
	}

	send(conn, Message{Type: "result", VideoDataURI: out.VideoDataURI})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(writeWait))
}

func send(conn *websocket.Conn, m Message) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(m); err != nil {
		logger.Log.Debug("websocket write failed", zap.Error(err))
	}
}

func errorMessage(err error) Message {
	if vErr, ok := domain.AsVendorError(err); ok {
		return Message{Type: "error", Error: vErr.Message, Kind: vErr.Kind, Code: vErr.Code, ConsoleURL: vErr.ConsoleURL}
	}
	if appErr, ok := domain.AsAppError(err); ok && appErr.Code < http.StatusInternalServerError {
		return Message{Type: "error", Error: appErr.Message}
	}
	return Message{Type: "error", Error: "internal server error"}
}
