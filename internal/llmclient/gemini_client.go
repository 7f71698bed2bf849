// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/autonote/internal/config"
)

// GeminiClient implements Client for Google Gemini models.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
	// newBackOff builds the policy used while the API reports throttling.
	newBackOff func() backoff.BackOff
}

func throttleBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// isThrottled reports whether the API asked us to slow down rather than rejected the request.
func isThrottled(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("Gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		logger:     logger.Named("llm.gemini"),
		newBackOff: throttleBackOff,
	}, nil
}

// Model implements Client.
func (c *GeminiClient) Model() string { return c.model }

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Temperature)),
		PresencePenalty:   genai.Ptr(float32(req.PresencePenalty)),
		FrequencyPenalty:  genai.Ptr(float32(req.FrequencyPenalty)),
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}

	start := time.Now()
	var resp *genai.GenerateContentResponse
	operation := func() error {
		r, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), gc)
		if err != nil {
			if isThrottled(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("Gemini API throttled the request, retrying...", zap.Duration("delay", delay), zap.Error(err))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates: %w", ErrEmptyResponse)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini API returned empty content (reason: %s): %w",
			resp.Candidates[0].FinishReason, ErrEmptyResponse)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return text, nil
}
