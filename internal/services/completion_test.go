package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"chat-relay-backend/internal/metrics"
	"chat-relay-backend/internal/models"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *CompletionClient {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return NewCompletionClient(CompletionConfig{
		BaseURL: baseURL,
		APIKey:  "sk-test",
		Model:   "test/model",
		Timeout: timeout,
	}, metrics.NewRecorder(), logger)
}

func TestComplete_Success(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Unexpected Content-Type %q", got)
		}

		var req models.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode upstream request: %v", err)
		}
		if req.Model != "test/model" {
			t.Errorf("Expected model 'test/model', got %q", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("Unexpected messages %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Hi there!"}}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/api/v1/", 0)

	reply, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "Hi there!" {
		t.Errorf("Expected 'Hi there!', got %q", reply)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", n)
	}
}

func TestComplete_PassesContentThroughUnmodified(t *testing.T) {
	content := "  <b>line one</b>\nline \"two\" é  "
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
				{"message": map[string]string{"content": "second choice"}},
			},
		})
	}))
	defer server.Close()

	reply, err := newTestClient(t, server.URL, 0).Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != content {
		t.Errorf("Expected %q, got %q", content, reply)
	}
}

func TestComplete_NoCaching(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), "same message"); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", n)
	}
}

func TestComplete_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"unauthorized with error envelope", http.StatusUnauthorized, `{"error":{"message":"No auth credentials found","code":401}}`, "No auth credentials found"},
		{"server error with plain body", http.StatusBadGateway, `bad gateway`, "status 502"},
		{"server error with empty body", http.StatusInternalServerError, ``, "empty response body"},
		{"empty choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"missing choices", http.StatusOK, `{"id":"gen-1"}`, "no choices"},
		{"malformed body", http.StatusOK, `not json`, "failed to decode response"},
		{"error envelope on 200", http.StatusOK, `{"error":{"message":"model overloaded"}}`, "model overloaded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer server.Close()

			reply, err := newTestClient(t, server.URL, 0).Complete(context.Background(), "x")
			if err == nil {
				t.Fatalf("Expected error, got reply %q", reply)
			}
			if !errors.Is(err, ErrUpstream) {
				t.Errorf("Expected error to wrap ErrUpstream, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("Expected error containing %q, got %q", tc.contains, err.Error())
			}
		})
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url, 0).Complete(context.Background(), "x")
	if err == nil {
		t.Fatal("Expected error for closed upstream")
	}
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Expected error to wrap ErrUpstream, got %v", err)
	}
	if err.Error() == "" {
		t.Error("Expected non-empty error description")
	}
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(t, server.URL, 50*time.Millisecond).Complete(context.Background(), "x")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Expected ErrUpstream on timeout, got %v", err)
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL, 0).Complete(ctx, "x")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Expected ErrUpstream, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected underlying deadline error to be preserved, got %v", err)
	}
}

func TestComplete_LogsFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewCompletionClient(CompletionConfig{BaseURL: server.URL, Model: "m"}, nil, logger)
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("Expected error")
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %s", entry.Level)
	}
	if entry.Data["model"] != "m" {
		t.Errorf("Expected model field 'm', got %v", entry.Data["model"])
	}
}

func TestExtractReply_Truncates(t *testing.T) {
	_, err := extractReply(http.StatusBadGateway, []byte(strings.Repeat("x", maxErrorBody*2)))
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Errorf("Expected truncated error body, got %d chars", len(err.Error()))
	}
}

func TestModel(t *testing.T) {
	client := NewCompletionClient(CompletionConfig{Model: "mistralai/mistral-7b-instruct"}, nil, nil)
	if client.Model() != "mistralai/mistral-7b-instruct" {
		t.Errorf("Unexpected model %q", client.Model())
	}
}
