package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientCreateChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test", time.Second, 1)
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model: "gpt",
		Messages: []ChatMessage{
			{Role: "user", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if resp.Model != "gpt" || len(resp.Choices) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientCreateChatCompletionError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, 3)
	_, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gpt",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", n)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `upstream busy`)
			return
		}
		fmt.Fprint(w, `{"id":"c2","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, 3)
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt"})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if resp.ID != "c2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, 2)
	if _, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}
