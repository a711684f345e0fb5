// Package anthropic provides the HTTP/SSE model backend.
//
// client.go - Messages API client
//
// This file contains:
// - Client implementing backend.Backend over the streaming Messages API
// - Options for endpoint, credentials, API version, betas and pacing
// - Request body translation from backend.MessagesRequest
//
// Responses are consumed through FrameParser (sse.go); non-2xx responses
// become *APIError.

package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/metrics"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	messagesPath      = "/v1/messages"
	backendName       = "anthropic"
)

// Options configures a Client
type Options struct {
	BaseURL    string
	APIKey     string
	APIVersion string
	Betas      []string

	// RequestsPerSecond paces requests per model; 0 disables pacing
	RequestsPerSecond float64
	Burst             int

	// HeaderTimeout bounds the wait for response headers; 0 waits forever.
	// The streamed body is bounded only by the request context.
	HeaderTimeout time.Duration
}

// Client is the HTTP/SSE backend
type Client struct {
	http    *resty.Client
	opts    Options
	limiter *backend.RateLimiter
}

// Ensure Client implements backend.Backend
var _ backend.Backend = (*Client)(nil)

// New creates a new client
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: opts.HeaderTimeout,
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTransport(transport)

	return &Client{
		http:    httpClient,
		opts:    opts,
		limiter: backend.NewRateLimiter(opts.RequestsPerSecond, opts.Burst),
	}
}

// Name returns the backend identifier
func (c *Client) Name() string { return backendName }

// messagesBody is the JSON body of a Messages API call
type messagesBody struct {
	Model       string                 `json:"model"`
	Messages    []backend.InputMessage `json:"messages"`
	MaxTokens   int                    `json:"max_tokens"`
	Stream      bool                   `json:"stream"`
	System      string                 `json:"system,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	ToolChoice  *backend.ToolChoice    `json:"tool_choice,omitempty"`
	Tools       []backend.Tool         `json:"tools,omitempty"`
}

func (c *Client) newBody(req *backend.MessagesRequest) *messagesBody {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = backend.DefaultMaxTokens
	}
	return &messagesBody{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      req.System,
		Temperature: req.Temperature,
		ToolChoice:  req.ToolChoice,
		Tools:       req.Tools,
	}
}

// Messages issues a streaming Messages API call
func (c *Client) Messages(ctx context.Context, req *backend.MessagesRequest) (backend.EventStream, error) {
	if err := c.limiter.Wait(ctx, req.Model); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeader("anthropic-version", c.opts.APIVersion).
		SetHeader("x-api-key", c.opts.APIKey).
		SetHeader("content-type", "application/json").
		SetHeader("accept", "text/event-stream").
		SetBody(c.newBody(req)).
		SetDoNotParseResponse(true)
	if len(c.opts.Betas) > 0 {
		r.SetHeader("anthropic-beta", strings.Join(c.opts.Betas, ","))
	}

	start := time.Now()
	resp, err := r.Post(messagesPath)
	if err != nil {
		metrics.RecordBackendRequest(backendName, "transport_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("messages request: %w", err)
	}
	metrics.RecordBackendRequest(backendName, strconv.Itoa(resp.StatusCode()), time.Since(start).Seconds())

	body := resp.RawBody()
	if !resp.IsSuccess() {
		defer func() { _ = body.Close() }()
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("reading error response: %w", err)
		}
		apiErr := parseAPIError(resp.StatusCode(), data)
		logger.WarnContext(ctx, "messages request rejected", "status", resp.StatusCode(), "type", apiErr.Details.Type)
		return nil, apiErr
	}

	logger.DebugContext(ctx, "messages stream opened", "model", req.Model, "messages", len(req.Messages))
	return NewEventStream(body), nil
}
