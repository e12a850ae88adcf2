package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"minutes/internal/services"
)

const (
	defaultHTTPTimeout  = 120 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 10 * time.Minute
	jsonMimeType        = "application/json"
)

// Config captures the runtime settings required to talk to the Gemini API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	VisionModel    string
	TimeoutSeconds int
	Temperature    float64
}

// Client wraps the Gemini generateContent and Files APIs. Each call performs a
// single attempt and classifies the outcome as a services.Failure; callers
// layer retries on top.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollInterval overrides how often uploaded files are polled for readiness.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithPollTimeout bounds how long an upload may stay in PROCESSING.
func WithPollTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.pollTimeout = timeout
		}
	}
}

// NewClient constructs a Gemini client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.VisionModel) == "" {
		cfg.VisionModel = cfg.Model
	}
	client := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// TextModel returns the model used when a request does not name one.
func (c *Client) TextModel() string { return c.cfg.Model }

// VisionModel returns the model used for multimodal requests.
func (c *Client) VisionModel() string { return c.cfg.VisionModel }

// Request describes one generateContent call.
type Request struct {
	// Model overrides the configured text model.
	Model  string
	System string
	Prompt string
	// Files are referenced before the prompt, in order.
	Files []File
	// Schema constrains a JSON response; only GenerateJSON sends it.
	Schema      map[string]any
	Temperature *float64
}

// GenerateText returns the text of the first candidate.
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, "")
}

// GenerateJSON requests a JSON response constrained by req.Schema and decodes
// it into target. Payloads that do not decode fail with
// KindResponseSchemaInvalid.
func (c *Client) GenerateJSON(ctx context.Context, req Request, target any) error {
	text, err := c.generate(ctx, req, jsonMimeType)
	if err != nil {
		return err
	}
	if err := DecodeJSON(text, target); err != nil {
		return services.Fail(services.KindResponseSchemaInvalid, "", "gemini: decode structured response", err)
	}
	return nil
}

// HealthCheck verifies the API key and text model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Fail(services.KindMissingPrerequisite, "", "gemini: api key not configured", nil)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1beta", "models", c.cfg.Model)
	if err != nil {
		return fmt.Errorf("gemini health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("gemini health: new request: %w", err)
	}
	_, err = c.do(req, "gemini health")
	return err
}

func (c *Client) generate(ctx context.Context, req Request, responseMime string) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1beta", "models", model+":generateContent")
	if err != nil {
		return "", fmt.Errorf("gemini request: build url: %w", err)
	}
	encoded, err := json.Marshal(c.buildPayload(req, responseMime))
	if err != nil {
		return "", fmt.Errorf("gemini request: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("gemini request: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", jsonMimeType)

	body, err := c.do(httpReq, "gemini generate")
	if err != nil {
		return "", err
	}
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", services.Fail(services.KindResponseSchemaInvalid, "",
			"gemini generate: decode response envelope ("+summarizePayloadSnippet(string(body))+")", err)
	}
	return extractText(resp)
}

func (c *Client) buildPayload(req Request, responseMime string) generateRequest {
	parts := make([]part, 0, len(req.Files)+1)
	for _, file := range req.Files {
		parts = append(parts, part{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}})
	}
	parts = append(parts, part{Text: req.Prompt})

	payload := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	payload.GenerationConfig = &generationConfig{Temperature: &temperature}
	if responseMime != "" {
		payload.GenerationConfig.ResponseMimeType = responseMime
		if len(req.Schema) > 0 {
			payload.GenerationConfig.ResponseSchema = req.Schema
		}
	}
	return payload
}

// blockedFinishReasons are candidate finish reasons that mean the model
// refused to answer.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

func extractText(resp generateResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", services.Fail(services.KindExternalCallBlocked, "",
			"gemini: prompt blocked ("+resp.PromptFeedback.BlockReason+")", nil)
	}
	if len(resp.Candidates) == 0 {
		return "", services.Fail(services.KindExternalCallTransient, "", "gemini: response has no candidates", nil)
	}
	candidate := resp.Candidates[0]
	if blockedFinishReasons[candidate.FinishReason] {
		return "", services.Fail(services.KindExternalCallBlocked, "",
			"gemini: response blocked ("+candidate.FinishReason+")", nil)
	}
	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		reason := candidate.FinishReason
		if reason == "" {
			reason = "unknown"
		}
		return "", services.Fail(services.KindExternalCallTransient, "",
			"gemini: empty response (finish_reason="+reason+")", nil)
	}
	return text, nil
}

// do sends req with credentials and classifies transport and status failures.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Fail(services.KindExternalCallTransient, "", op+": read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return body, classifyStatus(op, resp.StatusCode, body)
	}
	return body, nil
}

// transportFailure classifies an error from the HTTP round trip. Only an
// explicit cancellation is permanent; deadlines and network errors are
// transient.
func (c *Client) transportFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return services.Fail(services.KindCanceled, "", op+": canceled", err)
	}
	return services.Fail(services.KindExternalCallTransient, "",
		fmt.Sprintf("%s: http error (timeout=%s)", op, c.httpClient.Timeout), err)
}

func classifyStatus(op string, status int, body []byte) error {
	message := fmt.Sprintf("%s: http %d", op, status)
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		message += ": " + strings.TrimSpace(envelope.Error.Message)
	} else if snippet := summarizePayloadSnippet(string(body)); snippet != "<empty>" {
		message += ": " + snippet
	}
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Fail(services.KindExternalCallTransient, "", message, nil)
	default:
		return services.Fail(services.KindExternalCallRejected, "", message, nil)
	}
}
