package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/quota"
	"github.com/affiliatehub/backend/pkg/genai"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultWordCount    = 150
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 60
)

var errOperationRunning = errors.New("operation still running")

// AIGateway is the subset of the Gemini client the flows use.
type AIGateway interface {
	GenerateContent(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResponse, error)
	StartVideo(ctx context.Context, model, prompt, aspectRatio string) (*genai.Operation, error)
	GetOperation(ctx context.Context, name string) (*genai.Operation, error)
	DownloadMedia(ctx context.Context, uri string) ([]byte, string, error)
}

// Quota charges generations against a user's daily allowance.
type Quota interface {
	Allow(ctx context.Context, userID, plan string) (quota.Ticket, error)
	Refund(ctx context.Context, t quota.Ticket)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// AIService runs the content generation flows.
type AIService struct {
	gw           AIGateway
	quota        Quota
	users        userFinder
	validate     *validator.Validate
	pollInterval time.Duration
	maxPolls     int
}

// NewAIService creates the flows. q may be nil.
func NewAIService(gw AIGateway, q Quota, users userFinder, pollInterval time.Duration, maxPolls int) *AIService {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	return &AIService{
		gw:           gw,
		quota:        q,
		users:        users,
		validate:     validator.New(),
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// Charge consumes one generation from the user's allowance. The returned
// func gives it back and should be called when the flow fails.
func (s *AIService) Charge(ctx context.Context, userID string) (func(), error) {
	noop := func() {}
	if s.quota == nil {
		return noop, nil
	}
	plan := domain.FreePlanID
	if s.users != nil {
		u, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return noop, domain.ErrInternal("failed to load user", err)
		}
		if u != nil && u.Plan != "" {
			plan = u.Plan
		}
	}
	ticket, err := s.quota.Allow(ctx, userID, plan)
	if err != nil {
		return noop, err
	}
	return func() { s.quota.Refund(context.WithoutCancel(ctx), ticket) }, nil
}

func (s *AIService) validateInput(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return domain.ValidationError(formatValidationErrors(err))
	}
	return nil
}

func textPrompt(in domain.TextInput) string {
	words := in.WordCount
	if words == 0 {
		words = defaultWordCount
	}
	return fmt.Sprintf(`You are an expert affiliate marketing copywriter.
Write a %s about "%s" of roughly %d words.
The copy must be engaging, persuasive and optimized for conversions, with a clear call to action where it fits.
Answer with a JSON object of the form {"content": "<the copy>"}.`,
		strings.ReplaceAll(in.ContentType, "-", " "), in.Topic, words)
}

// GenerateText writes marketing copy for a topic.
func (s *AIService) GenerateText(ctx context.Context, in domain.TextInput) (*domain.TextOutput, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	resp, err := s.gw.GenerateContent(ctx, genai.GenerateRequest{
		Model:            genai.ModelText,
		Prompt:           textPrompt(in),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, classifyVendorFailure(err)
	}

	raw := strings.TrimSpace(resp.Text())
	out := &domain.TextOutput{}
	if js := extractJSON(raw); js != "" && json.Unmarshal([]byte(js), out) == nil {
		out.Content = strings.TrimSpace(out.Content)
	} else {
		out.Content = raw
	}

	if err := s.validate.Struct(out); err != nil {
		return nil, domain.EmptyResponseError("the AI service returned no text")
	}
	return out, nil
}

// GenerateImage renders an image and returns it as a data URI.
func (s *AIService) GenerateImage(ctx context.Context, in domain.ImageInput) (*domain.ImageOutput, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	resp, err := s.gw.GenerateContent(ctx, genai.GenerateRequest{
		Model:              genai.ModelImage,
		Prompt:             in.Prompt,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, classifyVendorFailure(err)
	}

	for _, media := range resp.Inline {
		if strings.HasPrefix(media.MIMEType, "image/") && media.Data != "" {
			return &domain.ImageOutput{ImageURL: "data:" + media.MIMEType + ";base64," + media.Data}, nil
		}
	}
	return nil, domain.EmptyResponseError("the AI service returned no image")
}

// GenerateVideo starts a video job, polls it until it finishes and returns
// the first video as a data URI. onProgress, when set, is called after every poll.
func (s *AIService) GenerateVideo(ctx context.Context, in domain.VideoInput, onProgress func(domain.VideoProgress)) (*domain.VideoOutput, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	op, err := s.gw.StartVideo(ctx, genai.ModelVideo, in.Prompt, in.AspectRatio)
	if err != nil {
		return nil, classifyVendorFailure(err)
	}
	logger.Info(ctx, "video generation started", zap.String("operation", op.Name))

	if !op.Done {
		op, err = s.awaitOperation(ctx, op, onProgress)
		if err != nil {
			return nil, err
		}
	}

	if op.Error != nil {
		return nil, classifyVendorFailure(op.Error)
	}
	if len(op.Media) == 0 {
		return nil, domain.NoMediaInResponseError()
	}

	data, contentType, err := s.gw.DownloadMedia(ctx, op.Media[0].URI)
	if err != nil {
		return nil, classifyVendorFailure(err)
	}
	if len(data) == 0 {
		return nil, domain.NoMediaInResponseError()
	}

	return &domain.VideoOutput{
		VideoDataURI: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// awaitOperation polls at a fixed interval, at most maxPolls times.
func (s *AIService) awaitOperation(ctx context.Context, op *genai.Operation, onProgress func(domain.VideoProgress)) (*genai.Operation, error) {
	timer := time.NewTimer(s.pollInterval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, domain.TransportError("video generation was cancelled", ctx.Err())
	case <-timer.C:
	}

	polls := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.pollInterval), uint64(s.maxPolls-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		polls++
		next, err := s.gw.GetOperation(ctx, op.Name)
		if err != nil {
			return backoff.Permanent(err)
		}
		op = next
		if onProgress != nil {
			onProgress(domain.VideoProgress{Poll: polls, Done: op.Done})
		}
		if !op.Done {
			return errOperationRunning
		}
		return nil
	}, b)

	switch {
	case err == nil:
		return op, nil
	case errors.Is(err, errOperationRunning):
		logger.Warn(ctx, "video generation did not finish in time", zap.String("operation", op.Name), zap.Int("polls", polls))
		return nil, &domain.VendorError{
			Kind:    domain.KindTransport,
			Code:    "OPERATION_TIMEOUT",
			Message: fmt.Sprintf("video generation did not finish after %d status checks", polls),
		}
	case ctx.Err() != nil:
		return nil, domain.TransportError("video generation was cancelled", ctx.Err())
	default:
		return nil, classifyVendorFailure(err)
	}
}

func websitePrompt(in domain.SiteInput) string {
	return fmt.Sprintf(`You are writing the landing page of an affiliate marketer called "%s" whose niche is "%s".
Return a JSON object with exactly these string fields: heroTitle, heroSubtitle, aboutTitle, aboutText, ctaTitle, ctaText,
and a "features" array of exactly 3 objects with "title" and "description".
Keep titles under 8 words and descriptions under 30 words.`, in.Username, in.Theme)
}

// GenerateWebsiteCopy writes the sections of an affiliate landing page.
func (s *AIService) GenerateWebsiteCopy(ctx context.Context, in domain.SiteInput) (*domain.SiteContent, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	resp, err := s.gw.GenerateContent(ctx, genai.GenerateRequest{
		Model:            genai.ModelText,
		Prompt:           websitePrompt(in),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, classifyVendorFailure(err)
	}

	js := extractJSON(resp.Text())
	if js == "" {
		return nil, domain.EmptyResponseError("the AI service returned no website copy")
	}

	var site domain.SiteContent
	if err := json.Unmarshal([]byte(js), &site); err != nil {
		return nil, domain.EmptyResponseError("the AI service returned unreadable website copy")
	}
	if err := s.validate.Struct(&site); err != nil {
		logger.Warn(ctx, "website copy failed validation", zap.String("reason", formatValidationErrors(err)))
		return nil, domain.EmptyResponseError("the AI service returned incomplete website copy")
	}
	return &site, nil
}
