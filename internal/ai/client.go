package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/match"
	"bias-audit/backend/internal/scoring"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.2
	defaultMaxTokens   = 600
	defaultAttempts    = 3
	defaultBackoff     = 1500 * time.Millisecond
	requestTimeout     = 30 * time.Second

	// highScore is the model score from which a finding is banded A.
	highScore = 0.8
)

// DefaultModels is the model fallback order.
var DefaultModels = []string{"gpt-4o-mini", "gpt-4o-mini-2024-07-18", "gpt-4o"}

const systemPrompt = "あなたは行動経済学と認知心理学に詳しいアナリストです。" +
	"ダニエル・カーネマンのシステム1/2にも言及しつつ、" +
	"可能性のあるバイアスを特定し、JSONで返して下さい。" +
	`返却形式: {"summary":"...", "biases":[{"name":"...", "score":0-1, "reason":"..."}], "tips":["...","..."]}`

// Config holds OpenAI configuration parameters.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	// Attempts per model; zero means 3.
	Attempts int
	// Backoff before the second attempt, doubling afterwards; zero means 1.5s.
	Backoff time.Duration
}

// Client implements Analyzer against an OpenAI-compatible chat completions API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	models      []string
	baseURL     string
	temperature float64
	maxTokens   int
	attempts    int
	backoff     time.Duration
}

// NewClient constructs a Client if the supplied configuration is valid.
// A configured model is tried first, followed by DefaultModels.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		models:      modelOrder(cfg.Model),
		baseURL:     baseURL,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
		attempts:    cfg.Attempts,
		backoff:     cfg.Backoff,
	}, nil
}

func modelOrder(preferred string) []string {
	preferred = strings.TrimSpace(preferred)
	models := make([]string, 0, len(DefaultModels)+1)
	if preferred != "" {
		models = append(models, preferred)
	}
	for _, m := range DefaultModels {
		if m != preferred {
			models = append(models, m)
		}
	}
	return models
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Models returns the fallback order in use.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Analyze asks the model for an assessment, walking the model list with
// exponential backoff between attempts.
func (c *Client) Analyze(ctx context.Context, text string, sensitivity int) (scoring.Report, error) {
	if c == nil || !c.Enabled() {
		return scoring.Report{}, ErrDisabled
	}
	text = match.Input(text)
	if text == "" {
		return scoring.Report{Findings: []scoring.Finding{}, Source: SourceAI}, nil
	}

	var lastErr error
	for _, model := range c.models {
		assessment, err := c.callWithRetry(ctx, model, text)
		if err == nil {
			return assessment.Report(sensitivity), nil
		}
		if ctx.Err() != nil {
			return scoring.Report{}, ctx.Err()
		}
		lastErr = err
		logrus.WithError(err).WithField("model", model).Warn("ai model unavailable; trying next")
	}
	return scoring.Report{}, fmt.Errorf("all models failed: %w", lastErr)
}

func (c *Client) callWithRetry(ctx context.Context, model, text string) (Assessment, error) {
	delay := c.backoff
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		assessment, err := c.complete(ctx, model, text)
		if err == nil {
			return assessment, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Assessment{}, ctx.Err()
		}
		if !shouldRetry(err) || attempt == c.attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return Assessment{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return Assessment{}, lastErr
}

type statusError struct {
	code int
	body map[string]any
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai status %d: %v", e.code, e.body)
}

func shouldRetry(err error) bool {
	var status *statusError
	if errors.As(err, &status) {
		return status.code == http.StatusTooManyRequests || status.code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func (c *Client) complete(ctx context.Context, model, text string) (Assessment, error) {
	body, err := json.Marshal(c.buildPayload(model, text))
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return Assessment{}, &statusError{code: resp.StatusCode, body: apiErr}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Assessment{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Assessment{}, errors.New("openai empty response")
	}

	content := normalizeJSONBlock(decoded.Choices[0].Message.Content)
	if content == "" {
		return Assessment{}, errors.New("openai empty content")
	}
	var assessment Assessment
	if err := json.Unmarshal([]byte(content), &assessment); err != nil {
		return Assessment{}, fmt.Errorf("parse ai response: %w", err)
	}
	return assessment, nil
}

func (c *Client) buildPayload(model, text string) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "対象テキスト:\n<<< " + text + " >>>"},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     c.temperature,
		"max_tokens":      c.maxTokens,
	}
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Report maps the assessment onto findings. Scores are clamped to [0,1]; tips
// become every finding's suggestions.
func (a Assessment) Report(sensitivity int) scoring.Report {
	tips := make([]string, 0, len(a.Tips))
	for _, tip := range a.Tips {
		if tip = strings.TrimSpace(tip); tip != "" {
			tips = append(tips, tip)
		}
	}

	findings := make([]scoring.Finding, 0, len(a.Biases))
	scores := make(map[string]float64, len(a.Biases))
	for _, b := range a.Biases {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		score := math.Round(clampFloat(b.Score, 0, 1)*100) / 100
		confidence := scoring.ConfidenceModerate
		if score >= highScore {
			confidence = scoring.ConfidenceHigh
		}
		findings = append(findings, scoring.Finding{
			Type:        name,
			Label:       name,
			Explanation: strings.TrimSpace(b.Reason),
			Confidence:  confidence,
			Evidence:    []string{},
			Suggestions: append([]string{}, tips...),
			Score:       score,
		})
		scores[name] = score
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Score > findings[j].Score
	})

	return scoring.Report{
		Findings: findings,
		Debug:    scoring.DebugInfo{Threshold: math.Round(scoring.Threshold(sensitivity)*100) / 100, Scores: scores},
		Source:   SourceAI,
		Summary:  strings.TrimSpace(a.Summary),
	}
}

func clampFloat(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
