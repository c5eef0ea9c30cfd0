// Package vision is the HTTP client for the remote style-analysis provider.
// The provider accepts a base64 data URL and returns a StyleSignal JSON
// object, sometimes wrapped in markdown code fences that must be stripped
// before parsing.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/closetmind/stylescan/internal/models"
)

const (
	// requestTimeout bounds every provider call. The invoker treats a
	// timeout as server_error; there are no indefinite waits.
	requestTimeout = 30 * time.Second

	// defaultRetryAfterSeconds is used when the provider answers 429
	// without a usable Retry-After header.
	defaultRetryAfterSeconds = 60
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type analyzeRequest struct {
	Image   string `json:"image"`
	Version int    `json:"version"`
}

// Analyze posts the compressed JPEG payload and parses the returned signal.
// Failures come back as *models.PipelineError: provider 429 maps to
// rate_limited, malformed or incomplete JSON to parse_error, anything else
// to server_error.
func (c *Client) Analyze(ctx context.Context, jpegData []byte) (*models.StyleSignal, error) {
	reqBody, err := json.Marshal(analyzeRequest{
		Image:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData),
		Version: models.SignalVersion,
	})
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: fmt.Errorf("provider request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrServer, Err: fmt.Errorf("read provider response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.PipelineError{
			Kind:              models.ErrRateLimited,
			Scope:             "provider",
			RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.PipelineError{
			Kind:    models.ErrServer,
			Message: fmt.Sprintf("provider returned status %d", resp.StatusCode),
		}
	}

	var signal models.StyleSignal
	if err := json.Unmarshal(stripFences(body), &signal); err != nil {
		return nil, &models.PipelineError{Kind: models.ErrParse, Err: err}
	}
	if !signal.Valid() {
		return nil, &models.PipelineError{Kind: models.ErrParse, Message: "provider response missing required fields"}
	}

	return &signal, nil
}

// stripFences removes a surrounding markdown code fence (``` or ```json)
// so the payload parses as plain JSON.
func stripFences(body []byte) []byte {
	s := strings.TrimSpace(string(body))
	if !strings.HasPrefix(s, "```") {
		return body
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	return []byte(s)
}

func parseRetryAfter(header string) int {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return secs
	}
	return defaultRetryAfterSeconds
}
