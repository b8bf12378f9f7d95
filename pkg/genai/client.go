// Package genai is a small REST client for the Gemini generative language API.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	requestTimeout = 2 * time.Minute
	maxMediaBytes  = 64 << 20
)

// Models used by the flows.
const (
	ModelText  = "gemini-2.0-flash"
	ModelImage = "gemini-2.0-flash-preview-image-generation"
	ModelVideo = "veo-2.0-generate-001"
)

// Client calls the Gemini API with an API key.
type Client struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	maxMedia int64
}

// NewClient creates a client. An empty baseURL selects the public endpoint.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: requestTimeout},
		maxMedia: maxMediaBytes,
	}
}

// APIError is a non-2xx answer from the API. Error returns the vendor's own
// wording so callers can classify it.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Reasons    []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.StatusCode, e.Status, e.Message)
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, ", ") + ")"
	}
	return msg
}

// GenerateRequest is a single-turn prompt.
type GenerateRequest struct {
	Model              string
	Prompt             string
	ResponseMIMEType   string
	ResponseModalities []string
}

// InlineData is base64-encoded media returned inline.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerateResponse holds the parts of the first candidate.
type GenerateResponse struct {
	Texts  []string
	Inline []InlineData
}

// Text joins every text part.
func (r *GenerateResponse) Text() string {
	return strings.Join(r.Texts, "")
}

// Media is a generated file reachable by URI.
type Media struct {
	URI      string
	MIMEType string
}

// OperationError is the failure of a finished long-running operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation failed (%d): %s", e.Code, e.Message)
}

// Operation is a long-running video generation job.
type Operation struct {
	Name  string
	Done  bool
	Error *OperationError
	Media []Media
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type videoRequest struct {
	Instances  []videoInstance  `json:"instances"`
	Parameters *videoParameters `json:"parameters,omitempty"`
}

type videoInstance struct {
	Prompt string `json:"prompt"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type operationResponse struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *OperationError `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI      string `json:"uri"`
					MIMEType string `json:"mimeType"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// GenerateContent sends one prompt to a model and returns the first candidate.
func (c *Client) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.ResponseMIMEType != "" || len(req.ResponseModalities) > 0 {
		body.GenerationConfig = &generationConfig{
			ResponseMIMEType:   req.ResponseMIMEType,
			ResponseModalities: req.ResponseModalities,
		}
	}

	var resp generateResponse
	if err := c.do(ctx, http.MethodPost, c.modelURL(req.Model, "generateContent"), body, &resp); err != nil {
		return nil, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &APIError{StatusCode: http.StatusOK, Status: "BLOCKED", Message: "prompt blocked: " + resp.PromptFeedback.BlockReason}
	}

	out := &GenerateResponse{}
	if len(resp.Candidates) == 0 {
		return out, nil
	}
	cand := resp.Candidates[0]
	for _, p := range cand.Content.Parts {
		if p.InlineData != nil {
			out.Inline = append(out.Inline, *p.InlineData)
		} else if p.Text != "" {
			out.Texts = append(out.Texts, p.Text)
		}
	}
	if len(out.Texts) == 0 && len(out.Inline) == 0 && cand.FinishReason == "SAFETY" {
		return nil, &APIError{StatusCode: http.StatusOK, Status: "BLOCKED", Message: "response blocked: SAFETY"}
	}
	return out, nil
}

// StartVideo starts a long-running video generation.
func (c *Client) StartVideo(ctx context.Context, model, prompt, aspectRatio string) (*Operation, error) {
	body := videoRequest{Instances: []videoInstance{{Prompt: prompt}}}
	if aspectRatio != "" {
		body.Parameters = &videoParameters{AspectRatio: aspectRatio}
	}

	var resp operationResponse
	if err := c.do(ctx, http.MethodPost, c.modelURL(model, "predictLongRunning"), body, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		return nil, domain.EmptyResponseError("video generation did not return an operation name")
	}
	return toOperation(resp), nil
}

// GetOperation refreshes the state of a long-running operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	var resp operationResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+apiVersion+"/"+strings.TrimLeft(name, "/"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = name
	}
	return toOperation(resp), nil
}

// DownloadMedia fetches a generated file. The API key travels as the key query parameter.
func (c *Client) DownloadMedia(ctx context.Context, uri string) ([]byte, string, error) {
	if err := c.checkKey(); err != nil {
		return nil, "", err
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media uri: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, "", domain.TransportError("could not download generated media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, "", parseAPIError(resp, respBody)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMedia+1))
	if err != nil {
		return nil, "", domain.TransportError("failed to read generated media", err)
	}
	if int64(len(data)) > c.maxMedia {
		return nil, "", domain.BusinessError("MEDIA_TOO_LARGE",
			fmt.Sprintf("generated media exceeds the %d MiB download limit", c.maxMedia>>20))
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}

func (c *Client) modelURL(model, method string) string {
	return fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, apiVersion, model, method)
}

func (c *Client) checkKey() error {
	if domain.IsPlaceholderCredential(c.apiKey) {
		vErr := domain.ConfigError("the Gemini API key is not configured (GEMINI_API_KEY)")
		vErr.ConsoleURL = "https://aistudio.google.com/app/apikey"
		return vErr
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.checkKey(); err != nil {
		return err
	}

	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.TransportError("could not reach the AI service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TransportError("failed to read AI service response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}

	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		if parsed.Error.Status != "" {
			apiErr.Status = parsed.Error.Status
		}
		for _, d := range parsed.Error.Details {
			if d.Reason != "" {
				apiErr.Reasons = append(apiErr.Reasons, d.Reason)
			}
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

func toOperation(resp operationResponse) *Operation {
	op := &Operation{Name: resp.Name, Done: resp.Done, Error: resp.Error}
	if resp.Response != nil {
		for _, s := range resp.Response.GenerateVideoResponse.GeneratedSamples {
			if s.Video.URI != "" {
				op.Media = append(op.Media, Media{URI: s.Video.URI, MIMEType: s.Video.MIMEType})
			}
		}
	}
	return op
}
