package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Prompt struct {
	System   string
	Messages []ChatMessage
}

// ModelConfig selects the model and sampling for one call. Zero fields take
// the service defaults.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer is the external completion service. Errors are apperr
// EXTERNAL_SERVICE errors whose Retryable flag tells callers whether the
// whole operation may be retried.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt, cfg ModelConfig) (string, error)
}

// CompletionService talks to an OpenAI-compatible chat completions API.
// Retries are disabled: a failed call is reported once and the caller decides.
type CompletionService struct {
	client   openai.Client
	apiKey   string
	defaults ModelConfig
}

func NewCompletionService(apiKey, apiURL string, defaults ModelConfig, timeout time.Duration) *CompletionService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	baseURL := strings.TrimRight(apiURL, "/") + "/"
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	)
	return &CompletionService{client: client, apiKey: apiKey, defaults: defaults}
}

func (s *CompletionService) IsAvailable() bool {
	return s.apiKey != ""
}

func (s *CompletionService) Complete(ctx context.Context, prompt Prompt, cfg ModelConfig) (string, error) {
	if !s.IsAvailable() {
		return "", apperr.External("completion service is not configured", nil, false)
	}
	if cfg.Model == "" {
		cfg.Model = s.defaults.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = s.defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = s.defaults.MaxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	for _, m := range prompt.Messages {
		if m.Role == models.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(cfg.MaxTokens))
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyCompletionError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.External("empty response from completion service", nil, true)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", apperr.External("completion service returned no content", nil, true)
	}
	return content, nil
}

// classifyCompletionError marks timeouts, rate limits and 5xx as retryable;
// auth and malformed-request errors are fatal.
func classifyCompletionError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		retryable := code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
		return apperr.External(fmt.Sprintf("completion service returned status %d", code), err, retryable)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.External("completion request canceled", err, false)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.External("completion request timed out", err, true)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.External("completion service unreachable", err, true)
	}
	return apperr.External("completion request failed", err, false)
}

// cleanJSONContent strips markdown code fences models like to add around JSON.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	}
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}
