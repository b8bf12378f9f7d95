package service

import (
	"context"
	"testing"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContents struct {
	byID map[string]*domain.Content
}

func (f *fakeContents) Create(_ context.Context, c *domain.Content) error {
	f.byID[c.ID] = c
	return nil
}

func (f *fakeContents) ListByUser(_ context.Context, userID, kind string) ([]*domain.Content, error) {
	var out []*domain.Content
	for _, c := range f.byID {
		if c.UserID == userID && (kind == "" || c.Kind == kind) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContents) UpdateStatus(_ context.Context, id, userID, status string) (bool, error) {
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (f *fakeContents) Delete(_ context.Context, id, userID string) (bool, error) {
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

type fakeWebsites struct {
	byUser map[string]*domain.Website
}

func (f *fakeWebsites) Upsert(_ context.Context, w *domain.Website) error {
	f.byUser[w.UserID] = w
	return nil
}

func (f *fakeWebsites) FindByUserID(_ context.Context, userID string) (*domain.Website, error) {
	return f.byUser[userID], nil
}

func (f *fakeWebsites) FindPublishedByUsername(_ context.Context, username string) (*domain.Website, error) {
	for _, w := range f.byUser {
		if w.Username == username && w.Status == domain.StatusPublished {
			return w, nil
		}
	}
	return nil, nil
}

func (f *fakeWebsites) UpdateStatus(_ context.Context, userID, status string) (bool, error) {
	w, ok := f.byUser[userID]
	if !ok {
		return false, nil
	}
	w.Status = status
	return true, nil
}

func newTestContentService() (*ContentService, *fakeContents, *fakeWebsites) {
	contents := &fakeContents{byID: map[string]*domain.Content{}}
	websites := &fakeWebsites{byUser: map[string]*domain.Website{}}
	users := &fakeUsers{users: map[string]*domain.User{
		"u1": {ID: "u1", Username: "Ana"},
		"u2": {ID: "u2"},
	}}
	return NewContentService(contents, websites, users), contents, websites
}

func sampleSite() domain.SiteContent {
	return domain.SiteContent{
		HeroTitle: "Train smarter", HeroSubtitle: "Gear that works",
		AboutTitle: "About", AboutText: "Coach.",
		Features: []domain.SiteFeature{{Title: "Reviews", Description: "Honest."}},
		CTATitle: "Start", CTAText: "Today.",
	}
}

func TestContentLifecycle(t *testing.T) {
	svc, contents, _ := newTestContentService()
	ctx := context.Background()

	c, err := svc.Save(ctx, "u1", &domain.SaveContentRequest{Kind: "text", Title: " Intro ", Body: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Intro", c.Title)
	assert.Equal(t, domain.StatusDraft, c.Status)

	require.NoError(t, svc.Publish(ctx, "u1", c.ID))
	assert.Equal(t, domain.StatusPublished, contents.byID[c.ID].Status)

	items, err := svc.List(ctx, "u1", "image")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)

	err = svc.Delete(ctx, "u2", c.ID)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)

	require.NoError(t, svc.Delete(ctx, "u1", c.ID))
	assert.Empty(t, contents.byID)
}

func TestSaveContent_Invalid(t *testing.T) {
	svc, _, _ := newTestContentService()
	_, err := svc.Save(context.Background(), "u1", &domain.SaveContentRequest{Kind: "audio", Title: "x", Body: "y"})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 422, appErr.Code)
	assert.Contains(t, appErr.Message, "Kind")
}

func TestWebsitePublishing(t *testing.T) {
	svc, _, _ := newTestContentService()
	ctx := context.Background()

	w, err := svc.SaveWebsite(ctx, "u1", &domain.SaveWebsiteRequest{Theme: "fitness", Content: sampleSite()})
	require.NoError(t, err)
	assert.Equal(t, "ana", w.Username)

	_, err = svc.GetPublicWebsite(ctx, "ana")
	assert.Error(t, err, "drafts are not public")

	require.NoError(t, svc.PublishWebsite(ctx, "u1"))
	public, err := svc.GetPublicWebsite(ctx, "ANA")
	require.NoError(t, err)
	assert.Equal(t, "Train smarter", public.Content.HeroTitle)
}

func TestSaveWebsite_NeedsUsername(t *testing.T) {
	svc, _, _ := newTestContentService()
	_, err := svc.SaveWebsite(context.Background(), "u2", &domain.SaveWebsiteRequest{Theme: "fitness", Content: sampleSite()})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}

func TestPublishWebsite_Missing(t *testing.T) {
	svc, _, _ := newTestContentService()
	err := svc.PublishWebsite(context.Background(), "u1")
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}
