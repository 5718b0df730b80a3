package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestSearchFormatsResults(t *testing.T) {
	oldURL := apiURL
	t.Cleanup(func() { apiURL = oldURL })

	var mu sync.Mutex
	var lastBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		mu.Lock()
		lastBody = payload
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"Tesla Q2 results","link":"https://example.com/a","snippet":"record deliveries"},
			{"title":"","link":"","snippet":""},
			{"title":"Market outlook","link":"https://example.com/b","snippet":"mixed signals"}
		]}`))
	}))
	defer server.Close()

	apiURL = server.URL

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := client.Search(context.Background(), "  tesla outlook  ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("result lines = %d, want 2 (blank entries skipped): %q", len(lines), got)
	}
	if lines[0] != "- Tesla Q2 results: record deliveries (https://example.com/a)" {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Market outlook") {
		t.Fatalf("second line = %q", lines[1])
	}

	mu.Lock()
	defer mu.Unlock()
	if lastBody["q"] != "tesla outlook" {
		t.Fatalf("query = %v, want trimmed tesla outlook", lastBody["q"])
	}
	if num, ok := lastBody["num"].(float64); !ok || int(num) != defaultMaxResults {
		t.Fatalf("num = %v, want %d", lastBody["num"], defaultMaxResults)
	}
}

func TestSearchEmptyResults(t *testing.T) {
	oldURL := apiURL
	t.Cleanup(func() { apiURL = oldURL })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic":[]}`))
	}))
	defer server.Close()

	apiURL = server.URL

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := client.Search(context.Background(), "obscure query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != "" {
		t.Fatalf("result = %q, want empty block", got)
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	oldURL := apiURL
	t.Cleanup(func() { apiURL = oldURL })

	var mu sync.Mutex
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	apiURL = server.URL

	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.retryDelay = time.Millisecond

	_, err = client.Search(context.Background(), "tesla outlook")
	if err == nil || !strings.Contains(err.Error(), "serper status 503") {
		t.Fatalf("Search error = %v, want serper status 503", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != int(client.attempts) {
		t.Fatalf("calls = %d, want %d attempts", calls, client.attempts)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Search(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}
