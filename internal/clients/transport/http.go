package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const errorSnippetLimit = 8 << 10

// StatusError is returned for non-2xx responses. Body holds the start of the
// upstream error payload.
type StatusError struct {
	URL        string
	Status     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %s: %s", e.URL, e.Status, e.Body)
}

// PostJSON sends body as JSON and hands back the live response on 2xx. The
// caller owns resp.Body and must close it.
func PostJSON[b any](h *http.Client, ctx context.Context, url string, body b, headers map[string]string) (*http.Response, error) {

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		_ = resp.Body.Close()
		return nil, &StatusError{
			URL:        url,
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	return resp, nil
}
