package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "gpt-4o-mini", 0.1); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	if _, err := NewClient("test-key", "  ", 0.1); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

func TestOmitTemperature(t *testing.T) {
	tests := []struct {
		name  string
		model string
		env   string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4o mini", model: "gpt-4o-mini", want: false},
		{name: "denylisted", model: "o4-custom", env: "other, o4-custom", want: true},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				_ = os.Setenv("LLM_NO_TEMP_MODELS", tt.env)
				t.Cleanup(func() { _ = os.Unsetenv("LLM_NO_TEMP_MODELS") })
			}
			if got := omitTemperature(tt.model); got != tt.want {
				t.Fatalf("omitTemperature(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestCompleteSendsPromptsAndTemperature(t *testing.T) {
	oldURL := apiURL
	t.Cleanup(func() { apiURL = oldURL })

	var mu sync.Mutex
	var lastBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		mu.Lock()
		lastBody = payload
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  analysis text  "}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	apiURL = server.URL

	client, err := NewClient("test-key", "gpt-4o-mini", 0.1)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := client.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "analysis text" {
		t.Fatalf("content = %q, want trimmed reply", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if lastBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v, want gpt-4o-mini", lastBody["model"])
	}
	temp, ok := lastBody["temperature"].(float64)
	if !ok || temp < 0.09 || temp > 0.11 {
		t.Fatalf("temperature = %v, want 0.1", lastBody["temperature"])
	}
	messages, ok := lastBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v, want system and user entries", lastBody["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "system prompt" {
		t.Fatalf("first message = %v", first)
	}
	second, _ := messages[1].(map[string]any)
	if second["role"] != "user" || second["content"] != "user prompt" {
		t.Fatalf("second message = %v", second)
	}
}

func TestCompleteOmitsTemperatureForGPT5(t *testing.T) {
	oldURL := apiURL
	t.Cleanup(func() { apiURL = oldURL })

	var mu sync.Mutex
	var lastBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		mu.Lock()
		lastBody = payload
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	apiURL = server.URL

	client, err := NewClient("test-key", "gpt-5-mini", 0.1)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "", "user prompt"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, hasTemp := lastBody["temperature"]; hasTemp {
		t.Fatalf("expected temperature to be omitted for gpt-5 models")
	}
	messages, ok := lastBody["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("messages = %v, want single user entry for blank system prompt", lastBody["messages"])
	}
}

func TestCompleteResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "api error", body: `{"error":{"message":"rate limited","type":"rate_limit_error"}}`, want: "rate_limit_error"},
		{name: "missing choices", body: `{"choices":[]}`, want: "missing choices"},
		{name: "empty content", body: `{"choices":[{"message":{"content":"   "}}]}`, want: "empty content"},
		{name: "parse error", body: `not json`, want: "openai response parse"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			oldURL := apiURL
			t.Cleanup(func() { apiURL = oldURL })

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			apiURL = server.URL

			client, err := NewClient("test-key", "gpt-4o-mini", 0.1)
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			_, err = client.Complete(context.Background(), "system", "user")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Complete error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
