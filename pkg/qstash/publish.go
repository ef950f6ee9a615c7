package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type PublishRequest struct {
	Destination     string
	Body            []byte
	DeduplicationID string
	Delay           time.Duration
	Retries         *int
}

type PublishResponse struct {
	MessageID    string `json:"messageId"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// APIError is returned for non-2xx QStash responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qstash: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Publish enqueues body for delivery to the destination URL.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return PublishResponse{}, errors.New("qstash: destination is required")
	}
	if c.token == "" {
		return PublishResponse{}, errors.New("qstash: token is required to publish")
	}

	endpoint := c.baseURL + "/v2/publish/" + destination
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("qstash: build publish request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.DeduplicationID != "" {
		httpReq.Header.Set("Upstash-Deduplication-Id", req.DeduplicationID)
	}
	if req.Delay > 0 {
		httpReq.Header.Set("Upstash-Delay", strconv.FormatInt(int64(req.Delay/time.Second), 10)+"s")
	}
	if req.Retries != nil {
		httpReq.Header.Set("Upstash-Retries", strconv.Itoa(*req.Retries))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return PublishResponse{}, fmt.Errorf("qstash: publish: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PublishResponse{}, fmt.Errorf("qstash: read publish response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PublishResponse{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var out PublishResponse
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &out); err != nil {
			return PublishResponse{}, fmt.Errorf("qstash: decode publish response: %w", err)
		}
	}
	return out, nil
}
