package openai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/lectern/internal/domain"
)

const (
	// DefaultEmbeddingDimensions is the expected dimension of embeddings
	// from text-embedding-ada-002 deployments
	DefaultEmbeddingDimensions = 1536
	// DefaultMaxRetries bounds retry attempts for transient provider failures
	DefaultMaxRetries = 3
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient provider failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding does not match the configured dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrContentFiltered is returned when the provider suppressed a completion
	ErrContentFiltered = errors.New("completion blocked by the provider content filter")
)

// API defines the provider calls the client depends on
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateCompletion(ctx context.Context, instructions, input string) (string, error)
}

// Client wraps the Azure OpenAI API with validation, per-call timeouts and
// bounded retries for the transient failure classes.
type Client struct {
	api        API
	dimensions int
	maxRetries int
	timeout    time.Duration
}

// Config holds the Azure OpenAI connection settings. Endpoint, APIKey and the
// two deployment names are required; the rest fall back to defaults.
type Config struct {
	Endpoint            string
	APIKey              string
	EmbeddingDeployment string
	ChatDeployment      string
	EmbeddingDimensions int
	MaxRetries          int
	RequestTimeout      time.Duration
}

// AzureAdapter adapts the go-openai SDK to the API interface. Requests carry
// the Azure deployment names directly as model identifiers.
type AzureAdapter struct {
	client              *openai.Client
	embeddingDeployment string
	chatDeployment      string
}

func NewAzureAdapter(cfg Config) *AzureAdapter {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	// Deployment names are passed through as-is; the default mapper rewrites
	// dotted model names and would corrupt them.
	clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	return &AzureAdapter{
		client:              openai.NewClientWithConfig(clientCfg),
		embeddingDeployment: cfg.EmbeddingDeployment,
		chatDeployment:      cfg.ChatDeployment,
	}
}

// CreateEmbeddings calls the embeddings deployment for a single input
func (a *AzureAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.embeddingDeployment),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateCompletion calls the chat deployment with a system instruction and
// one user message, returning the first choice
func (a *AzureAdapter) CreateCompletion(ctx context.Context, instructions, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatDeployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", ErrContentFiltered
	}

	return choice.Message.Content, nil
}

// NewClient creates a new client backed by the Azure adapter.
func NewClient(cfg Config) *Client {
	return NewClientWithAPI(NewAzureAdapter(cfg), cfg)
}

// NewClientWithAPI creates a new client with an explicit API implementation.
func NewClientWithAPI(api API, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		maxRetries: maxRetries,
		timeout:    cfg.RequestTimeout,
	}
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var embedding []float32
	err := c.withRetry(ctx, "create embeddings", func(ctx context.Context) error {
		var callErr error
		embedding, callErr = c.api.CreateEmbeddings(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.dimensions {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// Complete generates a chat completion for the given instructions and input
func (c *Client) Complete(ctx context.Context, instructions, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyText
	}

	var output string
	err := c.withRetry(ctx, "create completion", func(ctx context.Context) error {
		var callErr error
		output, callErr = c.api.CreateCompletion(ctx, instructions, input)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	return output, nil
}

// withRetry runs call with a per-attempt timeout, retrying transient provider
// failures with exponential backoff. Non-transient failures and parent context
// cancellation return immediately.
func (c *Client) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		err = call(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}

		err = mapProviderError(err)
		if !domain.IsTransient(err) || attempt == c.maxRetries {
			return err
		}

		backoff := time.Duration(1<<attempt) * RetryBaseDelay
		log.Printf("%s: %v, retrying in %v (attempt %d/%d)", op, err, backoff, attempt+1, c.maxRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// mapProviderError translates SDK and transport failures into the domain
// taxonomy. Parent-context cancellation passes through untouched.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTimeout, "model provider call timed out", err)
	}
	if errors.Is(err, ErrContentFiltered) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeContentFiltered, "model provider filtered the content", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited, "model provider rate limit exceeded", err)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return domain.NewDomainErrorWithCause(domain.ErrCodeProviderUnavail, "model provider unavailable", err)
		case isContentFilterCode(apiErr):
			return domain.NewDomainErrorWithCause(domain.ErrCodeContentFiltered, "model provider filtered the content", err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "model provider rejected the credentials", err)
		default:
			// Remaining 4xx responses are caller mistakes, never retried.
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "model provider rejected the request", err)
		}
	}

	// Transport-level failure: DNS, refused connection, reset.
	return domain.NewDomainErrorWithCause(domain.ErrCodeProviderUnavail, "model provider request failed", err)
}

// isContentFilterCode detects the Azure content-filter rejection, which
// arrives as a 400 with a dedicated error code.
func isContentFilterCode(apiErr *openai.APIError) bool {
	code, ok := apiErr.Code.(string)
	return ok && code == "content_filter"
}
