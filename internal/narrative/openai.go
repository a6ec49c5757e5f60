package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ecg-guardrail-server/internal/domain"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	maxErrorBodySize = 512
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint
type OpenAIGenerator struct {
	baseURL        string
	apiKey         string
	model          string
	httpClient     *http.Client
	rateLimit      *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logrus.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIGenerator creates a generator from narrative configuration
func NewOpenAIGenerator(config domain.NarrativeConfig, breaker CircuitBreakerConfig, logger *logrus.Logger) *OpenAIGenerator {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if logger == nil {
		logger = logrus.New()
	}

	// Set default circuit breaker configuration
	if breaker.MaxRequests == 0 {
		breaker.MaxRequests = 1
	}
	if breaker.Interval == 0 {
		breaker.Interval = 60 * time.Second
	}
	if breaker.Timeout == 0 {
		breaker.Timeout = 30 * time.Second
	}
	if breaker.FailureThreshold == 0 {
		breaker.FailureThreshold = 5
	}

	cbSettings := gobreaker.Settings{
		Name:        "NarrativeGenerator",
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &OpenAIGenerator{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:      rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}
}

// Configured reports whether an API key is present
func (g *OpenAIGenerator) Configured() bool {
	return g.apiKey != ""
}

// Model returns the configured model name
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// BreakerState returns the current circuit breaker state
func (g *OpenAIGenerator) BreakerState() gobreaker.State {
	return g.circuitBreaker.State()
}

// Generate requests a JSON object completion for the prompt
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if !g.Configured() {
		return "", domain.ErrGeneratorUnavailable
	}

	// Rate limiting
	if err := g.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := g.circuitBreaker.Execute(func() (interface{}, error) {
		return g.complete(ctx, p)
	})
	if err != nil {
		return "", fmt.Errorf("circuit breaker execution failed: %w", err)
	}

	return result.(string), nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    p.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	g.logger.WithField("model", g.model).Debug("Calling narrative generator")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", fmt.Errorf("generator returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}

	return decoded.Choices[0].Message.Content, nil
}
