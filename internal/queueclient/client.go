// Package queueclient is a thin client for the shared remote work queue:
// claiming batches of identifiers, acknowledging completion, and releasing
// items the local worker could not use.
package queueclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Client calls the remote queue service's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	instanceID string
	queueName  string
	logger     *slog.Logger
}

// New creates a Client with the spec's fixed 30-second request timeout.
// queueName is the queue this instance drains; every instance sharing the
// queue must agree on it.
func New(baseURL, apiKey, instanceID, queueName string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		instanceID: instanceID,
		queueName:  queueName,
		logger:     logger,
	}
}

// Item is one unit of claimed work.
type Item struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Data     map[string]any `json:"data,omitempty"`
}

type claimRequest struct {
	InstanceID string `json:"instance_id"`
	Count      int    `json:"count"`
}

type claimResponse struct {
	Success bool   `json:"success"`
	Items   []Item `json:"items"`
}

type itemsRequest struct {
	InstanceID string   `json:"instance_id"`
	Items      []string `json:"items"`
}

type acknowledgement struct {
	Success bool `json:"success"`
}

type releaseInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

type releaseInstanceResponse struct {
	Success       bool `json:"success"`
	ReleasedCount int  `json:"released_count"`
}

// Stats is the opaque per-queue statistics blob the stats endpoint returns.
type Stats map[string]any

type statsResponse struct {
	Success bool  `json:"success"`
	Stats   Stats `json:"stats"`
}

// ClaimItems requests up to count items from the queue. On any failure it
// logs and returns an empty slice, per spec.md §4.3's safe-default policy.
func (c *Client) ClaimItems(ctx context.Context, count int) []Item {
	var result claimResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "claim", claimRequest{
		InstanceID: c.instanceID,
		Count:      count,
	}, &result); err != nil {
		c.logger.Warn("claiming items", "error", err)
		return nil
	}
	return result.Items
}

// CompleteItems acknowledges completed items to the queue service. Satisfies
// checkstore.QueueClient.
func (c *Client) CompleteItems(ids []string) error {
	var result acknowledgement
	err := c.doWithRetry(context.Background(), http.MethodPost, "complete", itemsRequest{
		InstanceID: c.instanceID,
		Items:      ids,
	}, &result)
	if err != nil {
		c.logger.Warn("completing items", "ids", ids, "error", err)
		return err
	}
	return nil
}

// ReleaseItems returns previously-claimed items to the shared queue without
// marking them complete.
func (c *Client) ReleaseItems(ids []string) bool {
	var result acknowledgement
	if err := c.doWithRetry(context.Background(), http.MethodPost, "release", itemsRequest{
		InstanceID: c.instanceID,
		Items:      ids,
	}, &result); err != nil {
		c.logger.Warn("releasing items", "ids", ids, "error", err)
		return false
	}
	return true
}

// ReleaseInstance returns every item currently claimed by this instance.
// Unlike the other methods it returns 0, not a bool, on failure.
func (c *Client) ReleaseInstance(ctx context.Context) int {
	var result releaseInstanceResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "release-instance", releaseInstanceRequest{
		InstanceID: c.instanceID,
	}, &result); err != nil {
		c.logger.Warn("releasing instance claims", "error", err)
		return 0
	}
	return result.ReleasedCount
}

// Stats fetches the queue service's statistics for this worker's queue.
func (c *Client) Stats(ctx context.Context) Stats {
	var result statsResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "stats", nil, &result); err != nil {
		c.logger.Warn("fetching queue stats", "error", err)
		return nil
	}
	return result.Stats
}

// successFlagged is satisfied by every response body shape above; used by
// doRequest to apply the "HTTP 200 AND truthy success field" rule uniformly.
type successFlagged interface {
	successOK() bool
}

func (r claimResponse) successOK() bool           { return r.Success }
func (r acknowledgement) successOK() bool         { return r.Success }
func (r releaseInstanceResponse) successOK() bool { return r.Success }
func (r statsResponse) successOK() bool           { return r.Success }

// doWithRetry wraps doRequest in a small bounded retry for connection-level
// failures only (the request never reached the server): a non-200 status, a
// decode failure, or success=false are all terminal per spec.md §4.3 and
// returned wrapped in backoff.Permanent so they are not retried.
func (c *Client) doWithRetry(ctx context.Context, method, action string, body any, out successFlagged) error {
	op := func() (struct{}, error) {
		return struct{}{}, c.doRequest(ctx, method, action, body, out)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, action string, body any, out successFlagged) error {
	url := fmt.Sprintf("%s/queue/%s/%s", c.baseURL, c.queueName, action)

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("marshalling request: %w", err))
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request never reached the server: retryable connection failure.
		return fmt.Errorf("calling queue service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("queue service returned HTTP %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	if !out.successOK() {
		return backoff.Permanent(fmt.Errorf("queue service reported success=false"))
	}
	return nil
}
