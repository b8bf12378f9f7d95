package service

import (
	"context"
	"strings"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contentStore interface {
	Create(ctx context.Context, c *domain.Content) error
	ListByUser(ctx context.Context, userID, kind string) ([]*domain.Content, error)
	UpdateStatus(ctx context.Context, id, userID, status string) (bool, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
}

type websiteStore interface {
	Upsert(ctx context.Context, w *domain.Website) error
	FindByUserID(ctx context.Context, userID string) (*domain.Website, error)
	FindPublishedByUsername(ctx context.Context, username string) (*domain.Website, error)
	UpdateStatus(ctx context.Context, userID, status string) (bool, error)
}

// ContentService keeps saved generations and the user's landing page.
type ContentService struct {
	contents contentStore
	websites websiteStore
	users    userFinder
	validate *validator.Validate
	now      func() time.Time
}

func NewContentService(contents contentStore, websites websiteStore, users userFinder) *ContentService {
	return &ContentService{
		contents: contents,
		websites: websites,
		users:    users,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Save stores a generation as a draft.
func (s *ContentService) Save(ctx context.Context, userID string, req *domain.SaveContentRequest) (*domain.Content, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	now := s.now()
	c := &domain.Content{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      req.Kind,
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.contents.Create(ctx, c); err != nil {
		return nil, domain.ErrInternal("failed to save content", err)
	}
	return c, nil
}

// List returns the user's content, newest first. kind may be empty.
func (s *ContentService) List(ctx context.Context, userID, kind string) ([]*domain.Content, error) {
	items, err := s.contents.ListByUser(ctx, userID, kind)
	if err != nil {
		return nil, domain.ErrInternal("failed to list content", err)
	}
	if items == nil {
		items = []*domain.Content{}
	}
	return items, nil
}

func (s *ContentService) Publish(ctx context.Context, userID, id string) error {
	ok, err := s.contents.UpdateStatus(ctx, id, userID, domain.StatusPublished)
	if err != nil {
		return domain.ErrInternal("failed to publish content", err)
	}
	if !ok {
		return domain.ErrNotFound("content not found")
	}
	return nil
}

func (s *ContentService) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.contents.Delete(ctx, id, userID)
	if err != nil {
		return domain.ErrInternal("failed to delete content", err)
	}
	if !ok {
		return domain.ErrNotFound("content not found")
	}
	return nil
}

// SaveWebsite creates or replaces the user's landing page. Saving moves it back to draft.
func (s *ContentService) SaveWebsite(ctx context.Context, userID string, req *domain.SaveWebsiteRequest) (*domain.Website, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	if user.Username == "" {
		return nil, domain.ErrBadRequest("a username is required to save a website")
	}

	now := s.now()
	w := &domain.Website{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  strings.ToLower(user.Username),
		Theme:     req.Theme,
		Content:   req.Content,
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.websites.Upsert(ctx, w); err != nil {
		return nil, domain.ErrInternal("failed to save website", err)
	}

	logger.Info(ctx, "website saved", zap.String("user_id", userID), zap.String("username", w.Username))
	return w, nil
}

func (s *ContentService) GetWebsite(ctx context.Context, userID string) (*domain.Website, error) {
	w, err := s.websites.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load website", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("website not found")
	}
	return w, nil
}

func (s *ContentService) PublishWebsite(ctx context.Context, userID string) error {
	ok, err := s.websites.UpdateStatus(ctx, userID, domain.StatusPublished)
	if err != nil {
		return domain.ErrInternal("failed to publish website", err)
	}
	if !ok {
		return domain.ErrNotFound("website not found")
	}
	return nil
}

// GetPublicWebsite returns a published page by username. Drafts are not found.
func (s *ContentService) GetPublicWebsite(ctx context.Context, username string) (*domain.Website, error) {
	w, err := s.websites.FindPublishedByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, domain.ErrInternal("failed to load website", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("website not found")
	}
	return w, nil
}
