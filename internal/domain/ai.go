package domain

// TextInput is the schema of the text generation flow.
type TextInput struct {
	Topic       string `json:"topic" validate:"required,min=2,max=500"`
	ContentType string `json:"contentType" validate:"required,oneof=blog-intro blog-post social-post email product-description headline"`
	WordCount   int    `json:"wordCount,omitempty" validate:"omitempty,min=20,max=2000"`
}

// TextOutput is the schema of the text generation result.
type TextOutput struct {
	Content string `json:"content" validate:"required"`
}

// ImageInput is the schema of the image generation flow.
type ImageInput struct {
	Prompt string `json:"prompt" validate:"required,min=3,max=2000"`
}

// ImageOutput carries the generated image as a data URI.
type ImageOutput struct {
	ImageURL string `json:"imageUrl" validate:"required,startswith=data:"`
}

// VideoInput is the schema of the video generation flow.
type VideoInput struct {
	Prompt      string `json:"prompt" validate:"required,min=3,max=2000"`
	AspectRatio string `json:"aspectRatio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
}

// VideoOutput carries the generated video as a data URI.
type VideoOutput struct {
	VideoDataURI string `json:"videoDataUri" validate:"required,startswith=data:"`
}

// SiteInput is the schema of the website copy flow.
type SiteInput struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Theme    string `json:"theme" validate:"required,min=2,max=100"`
}

// SiteFeature is one entry of the features section.
type SiteFeature struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// SiteContent is the structured copy of an affiliate landing page.
type SiteContent struct {
	HeroTitle    string        `json:"heroTitle" validate:"required"`
	HeroSubtitle string        `json:"heroSubtitle" validate:"required"`
	AboutTitle   string        `json:"aboutTitle" validate:"required"`
	AboutText    string        `json:"aboutText" validate:"required"`
	Features     []SiteFeature `json:"features" validate:"required,min=1,max=6,dive"`
	CTATitle     string        `json:"ctaTitle" validate:"required"`
	CTAText      string        `json:"ctaText" validate:"required"`
}

// VideoProgress is reported after every poll of a long-running video operation.
type VideoProgress struct {
	Poll int  `json:"poll"`
	Done bool `json:"done"`
}
