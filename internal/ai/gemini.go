package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/pkg/config"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/otel"
)

// errCallerGone marks a call abandoned by its caller. The breaker does not
// count it against Gemini.
var errCallerGone = errors.New("caller went away")

// Client calls the Gemini generateContent endpoint behind a circuit breaker.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		cb:         gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
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

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends prompt and returns the concatenated text of the first
// candidate. The model is asked for JSON output.
func (c *Client) Generate(ctx context.Context, prompt string) (text string, err error) {
	ctx, end := otel.StartClientSpan(ctx, "gemini.generateContent")
	defer func() { end(err) }()

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.generate(ctx, prompt)
	})

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, errCallerGone) {
			status = "canceled"
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "circuit_open"
			err = fmt.Errorf("%w: gemini circuit open: %v", apperr.ErrUpstream, err)
		}
	}
	metrics.RecordAICallLatency("generateContent", status, time.Since(start))

	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      0.2,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, "call gemini", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", transportError(ctx, "read gemini response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		return "", fmt.Errorf("%w: gemini returned %d %s: %s",
			apperr.ErrUpstream, resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %w", apperr.ErrUpstream, err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", apperr.ErrUpstream, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", apperr.ErrUpstream)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty candidate (finish reason %s)", apperr.ErrUpstream, out.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

// transportError blames the caller when its own context ended the call.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w: %w", op, errCallerGone, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", apperr.ErrUpstream, op, err)
}
