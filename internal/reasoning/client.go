package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/autoshop-ai/orchestrator/internal/tracing"
)

// Client invokes the external text-generation capability. Implementations
// perform no retries; resilience belongs to wrappers around this interface.
type Client interface {
	Invoke(ctx context.Context, template string, vars map[string]string) (string, error)
}

// Config holds reasoning service connection settings.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxQPS caps outbound request rate; zero disables the limiter.
	MaxQPS float64 `mapstructure:"max_qps"`
}

// HTTPClient calls the reasoning service over HTTP JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPClient creates a reasoning service client.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.MaxQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxQPS), 1)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Invoke renders the template with vars and sends a single generation request.
func (c *HTTPClient) Invoke(ctx context.Context, template string, vars map[string]string) (string, error) {
	ctx, span := tracing.Start(ctx, "reasoning.generate")
	defer span.End()

	text, err := c.generate(ctx, Render(template, vars))
	if err != nil {
		span.RecordError(err)
	}
	return text, err
}

func (c *HTTPClient) generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("reasoning rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal reasoning request: %w", err)
	}

	url := c.baseURL + "/v1/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build reasoning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reasoning service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("reasoning service returned HTTP %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reasoning response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("reasoning service error: %s", out.Error)
	}

	c.logger.Debug("Reasoning call completed",
		zap.Int("prompt_len", len(prompt)),
		zap.Int("response_len", len(out.Text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out.Text, nil
}

// Render substitutes {name} placeholders in template with values from vars.
// Unknown placeholders are left intact.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
