package handler

import (
	"context"
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
)

// AIHandler exposes the generation flows over HTTP.
type AIHandler struct {
	svc *service.AIService
}

func NewAIHandler(svc *service.AIService) *AIHandler {
	return &AIHandler{svc: svc}
}

// run decodes the input, charges the caller's daily allowance and runs the
// flow. The charge is refunded when the flow fails.
func run[In any, Out any](w http.ResponseWriter, r *http.Request, svc *service.AIService, flow func(context.Context, In) (Out, error)) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var in In
	if err := DecodeJSON(r, &in); err != nil {
		Error(w, err)
		return
	}

	refund, err := svc.Charge(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	out, err := flow(r.Context(), in)
	if err != nil {
		refund()
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, out)
}

// Text handles POST /api/ai/text.
func (h *AIHandler) Text(w http.ResponseWriter, r *http.Request) {
	run(w, r, h.svc, h.svc.GenerateText)
}

// Image handles POST /api/ai/image.
func (h *AIHandler) Image(w http.ResponseWriter, r *http.Request) {
	run(w, r, h.svc, h.svc.GenerateImage)
}

// Video handles POST /api/ai/video. It blocks until the video is ready;
// /ws/ai/video streams progress instead.
func (h *AIHandler) Video(w http.ResponseWriter, r *http.Request) {
	run(w, r, h.svc, func(ctx context.Context, in domain.VideoInput) (*domain.VideoOutput, error) {
		return h.svc.GenerateVideo(ctx, in, nil)
	})
}

// Website handles POST /api/ai/website.
func (h *AIHandler) Website(w http.ResponseWriter, r *http.Request) {
	run(w, r, h.svc, h.svc.GenerateWebsiteCopy)
}
