package domain

import "time"

// Content and website statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Content is a saved AI generation (blog intro, image, video).
type Content struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"` // text, or a data URI for media
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SaveContentRequest is the validated input for saving generated content.
type SaveContentRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=text image video"`
	Title string `json:"title" validate:"required,min=1,max=200"`
	Body  string `json:"body" validate:"required"`
}

// Website is a generated affiliate landing page.
type Website struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Theme     string      `json:"theme"`
	Content   SiteContent `json:"content"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SaveWebsiteRequest is the validated input for saving a website.
type SaveWebsiteRequest struct {
	Theme   string      `json:"theme" validate:"required,min=2,max=100"`
	Content SiteContent `json:"content" validate:"required"`
}
