package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Tell me more.  "}}
  ]
}`

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionBody)
	}))
	defer srv.Close()

	svc := NewCompletionService("test-key", srv.URL, ModelConfig{Model: "test-model", Temperature: 0.5}, 5*time.Second)
	text, err := svc.Complete(context.Background(), Prompt{
		System: "be brief",
		Messages: []ChatMessage{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
			{Role: models.RoleUser, Content: "what now?"},
		},
	}, ModelConfig{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Tell me more." {
		t.Fatalf("expected trimmed content, got %q", text)
	}

	if got.Model != "test-model" {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Fatalf("message %d: expected role %s, got %s", i, role, got.Messages[i].Role)
		}
	}
}

func TestCompleteClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
		}))

		svc := NewCompletionService("test-key", srv.URL, ModelConfig{Model: "test-model"}, 5*time.Second)
		_, err := svc.Complete(context.Background(), Prompt{Messages: []ChatMessage{{Role: models.RoleUser, Content: "hi"}}}, ModelConfig{})
		srv.Close()

		if !errors.Is(err, apperr.ErrExternalService) {
			t.Fatalf("status %d: expected EXTERNAL_SERVICE, got %v", tt.status, err)
		}
		if apperr.IsRetryable(err) != tt.retryable {
			t.Fatalf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
	}
}

func TestCompleteUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := NewCompletionService("test-key", url, ModelConfig{Model: "test-model"}, 5*time.Second)
	_, err := svc.Complete(context.Background(), Prompt{Messages: []ChatMessage{{Role: models.RoleUser, Content: "hi"}}}, ModelConfig{})
	if !errors.Is(err, apperr.ErrExternalService) || !apperr.IsRetryable(err) {
		t.Fatalf("expected a retryable EXTERNAL_SERVICE error, got %v", err)
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	svc := NewCompletionService("", "http://localhost", ModelConfig{}, 0)
	if svc.IsAvailable() {
		t.Fatal("expected the service to be unavailable without a key")
	}
	_, err := svc.Complete(context.Background(), Prompt{}, ModelConfig{})
	if !errors.Is(err, apperr.ErrExternalService) || apperr.IsRetryable(err) {
		t.Fatalf("expected a permanent EXTERNAL_SERVICE error, got %v", err)
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if err := classifyCompletionError(context.DeadlineExceeded); !apperr.IsRetryable(err) {
		t.Fatal("expected a timeout to be retryable")
	}
	if err := classifyCompletionError(context.Canceled); apperr.IsRetryable(err) {
		t.Fatal("expected cancellation not to be retryable")
	}
	if err := classifyCompletionError(errors.New("boom")); apperr.IsRetryable(err) {
		t.Fatal("expected unknown errors not to be retryable")
	}
}

func TestCleanJSONContent(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		`  {"a":1}  `:             `{"a":1}`,
	}
	for in, want := range tests {
		if got := cleanJSONContent(in); got != want {
			t.Errorf("cleanJSONContent(%q) = %q, want %q", in, got, want)
		}
	}
}
