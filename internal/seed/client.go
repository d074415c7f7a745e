package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/dashboard-api/internal/domain/analytics"
)

// Outcome of a single submission.
type Outcome int

// Submission outcomes.
const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
)

// Client talks to a dashboard-api instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Submit posts e. A 429 or 4xx answer is reported as OutcomeRejected with
// a nil error; transport failures return an error.
func (c *Client) Submit(ctx context.Context, e Event) (Outcome, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return OutcomeRejected, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return OutcomeRejected, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return OutcomeAccepted, nil
	case http.StatusOK:
		var ack AckResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && !ack.Duplicate {
			return OutcomeAccepted, nil
		}
		return OutcomeDuplicate, nil
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			return OutcomeRejected, fmt.Errorf("submit %s: status %d", e.EventID, resp.StatusCode)
		}
		return OutcomeRejected, nil
	}
}

// Stats fetches the served stats of a deployment over r.
func (c *Client) Stats(ctx context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	q := url.Values{}
	q.Set("from", r.From.UTC().Format(time.RFC3339Nano))
	q.Set("to", r.To.UTC().Format(time.RFC3339Nano))
	target := c.baseURL + "/deployments/" + strconv.FormatInt(deploymentID, 10) + "/analytics/stats?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return analytics.Stats{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return analytics.Stats{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return analytics.Stats{}, fmt.Errorf("stats for deployment %d: status %d", deploymentID, resp.StatusCode)
	}
	var st analytics.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return analytics.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return st, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
