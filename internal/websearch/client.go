package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// apiURL is a var so tests can point the client at a local server.
var apiURL = "https://google.serper.dev/search"

const defaultMaxResults = 5

// Client queries the Serper web search API for market context used by the
// analysis agents.
type Client struct {
	apiKey     string
	maxResults int
	attempts   uint
	retryDelay time.Duration
	httpClient *http.Client
}

// NewClient constructs a new Serper client.
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("SERPER_API_KEY is required")
	}
	timeout := 15 * time.Second
	if raw := strings.TrimSpace(os.Getenv("SERPER_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey:     apiKey,
		maxResults: defaultMaxResults,
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs one web search and returns the top organic results as a
// compact text block, one result per line. An empty block with a nil error
// means the query returned no results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search query is empty")
	}

	var out string
	err := retry.Do(
		func() error {
			text, err := c.searchOnce(ctx, query)
			if err != nil {
				return err
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) searchOnce(ctx context.Context, query string) (string, error) {
	payload, err := json.Marshal(searchRequest{Query: query, Num: c.maxResults})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("serper request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serper status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("serper response parse: %w", err)
	}
	return formatResults(parsed, c.maxResults), nil
}

func formatResults(parsed searchResponse, max int) string {
	var b strings.Builder
	count := 0
	for _, r := range parsed.Organic {
		if count >= max {
			break
		}
		title := strings.TrimSpace(r.Title)
		snippet := strings.TrimSpace(r.Snippet)
		if title == "" && snippet == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(title)
		if snippet != "" {
			if title != "" {
				b.WriteString(": ")
			}
			b.WriteString(snippet)
		}
		if link := strings.TrimSpace(r.Link); link != "" {
			b.WriteString(" (")
			b.WriteString(link)
			b.WriteString(")")
		}
		count++
	}
	return b.String()
}
