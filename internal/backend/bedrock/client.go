// Package bedrock provides the binary event-stream model backend.
//
// client.go - ConverseStream backend
//
// This file contains:
// - Client implementing backend.Backend on the Bedrock ConverseStream API
// - Options and AWS configuration loading
// - converseStream seam over the SDK event stream for tests
//
// Request translation lives in request.go and record translation in
// stream.go.

package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/metrics"
)

const (
	DefaultRegion = "us-west-2"
	backendName   = "bedrock"
)

// Options configures a Client
type Options struct {
	Region  string
	Profile string

	// RequestsPerSecond paces requests per model; 0 disables pacing
	RequestsPerSecond float64
	Burst             int
}

// converseStream is the part of *bedrockruntime.ConverseStreamEventStream
// the adapter reads from
type converseStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// streamOpener issues a ConverseStream call
type streamOpener func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (converseStream, error)

// Client is the Bedrock backend
type Client struct {
	open    streamOpener
	limiter *backend.RateLimiter
}

// Ensure Client implements backend.Backend
var _ backend.Backend = (*Client)(nil)

// New loads AWS configuration and creates a client
func New(ctx context.Context, opts Options) (*Client, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	runtime := bedrockruntime.NewFromConfig(cfg)
	open := func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (converseStream, error) {
		out, err := runtime.ConverseStream(ctx, in)
		if err != nil {
			return nil, err
		}
		return out.GetStream(), nil
	}
	return newClient(open, opts), nil
}

func newClient(open streamOpener, opts Options) *Client {
	return &Client{
		open:    open,
		limiter: backend.NewRateLimiter(opts.RequestsPerSecond, opts.Burst),
	}
}

// Name returns the backend identifier
func (c *Client) Name() string { return backendName }

// Messages issues a ConverseStream call and translates its records
func (c *Client) Messages(ctx context.Context, req *backend.MessagesRequest) (backend.EventStream, error) {
	in, err := buildInput(req)
	if err != nil {
		return nil, fmt.Errorf("translating request: %w", err)
	}
	if err := c.limiter.Wait(ctx, req.Model); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	start := time.Now()
	stream, err := c.open(ctx, in)
	if err != nil {
		metrics.RecordBackendRequest(backendName, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("converse stream: %w", err)
	}
	metrics.RecordBackendRequest(backendName, "ok", time.Since(start).Seconds())

	logger.DebugContext(ctx, "converse stream opened", "model", aws.ToString(in.ModelId), "messages", len(in.Messages))
	return newEventStream(ctx, stream, req.Model), nil
}
