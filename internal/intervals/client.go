package intervals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"gocloud.dev/blob"

	"github.com/nkoval/go-fit-bridge/pkg/retry"
	"github.com/nkoval/go-fit-bridge/pkg/telemetry"
)

// BestEffortOptions are the query parameters for a best-efforts request.
// Optional fields are pointers; nil means "not sent".
type BestEffortOptions struct {
	Stream           string
	Duration         *int
	Distance         *int
	Count            *int
	MinValue         *float64
	ExcludeIntervals *bool
	StartIndex       *int
	EndIndex         *int
}

// Client talks to the upstream fitness API. It implements the transfer
// port consumed by the download orchestrator and the query port consumed
// by the effort resolver.
type Client struct {
	baseURL   string
	athleteID string
	apiKey    string
	http      *http.Client
	bucket    *blob.Bucket
	retryCfg  retry.Config
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option     { return func(c *Client) { c.logger = l } }
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithRetry(cfg retry.Config) Option    { return func(c *Client) { c.retryCfg = cfg } }

// NewClient creates a Client for the given API base URL and athlete.
func NewClient(baseURL, athleteID, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		athleteID: athleteID,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 60 * time.Second},
		retryCfg:  retry.Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BestEfforts issues one parameterized best-efforts query.
func (c *Client) BestEfforts(ctx context.Context, activityID string, opts BestEffortOptions) (json.RawMessage, error) {
	q := url.Values{}
	if opts.Stream != "" {
		q.Set("stream", opts.Stream)
	}
	if opts.Duration != nil {
		q.Set("duration", fmt.Sprint(*opts.Duration))
	}
	if opts.Distance != nil {
		q.Set("distance", fmt.Sprint(*opts.Distance))
	}
	if opts.Count != nil {
		q.Set("count", fmt.Sprint(*opts.Count))
	}
	if opts.MinValue != nil {
		q.Set("minValue", fmt.Sprint(*opts.MinValue))
	}
	if opts.ExcludeIntervals != nil {
		q.Set("excludeIntervals", fmt.Sprint(*opts.ExcludeIntervals))
	}
	if opts.StartIndex != nil {
		q.Set("startIndex", fmt.Sprint(*opts.StartIndex))
	}
	if opts.EndIndex != nil {
		q.Set("endIndex", fmt.Sprint(*opts.EndIndex))
	}
	return c.getJSON(ctx, fmt.Sprintf("/api/v1/activity/%s/best-efforts", activityID), q)
}

// Streams fetches the raw stream listing for an activity. The response
// shape varies by upstream version; callers normalize it themselves.
func (c *Client) Streams(ctx context.Context, activityID string) (json.RawMessage, error) {
	return c.getJSON(ctx, fmt.Sprintf("/api/v1/activity/%s/streams", activityID), nil)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	resp, err := c.send(ctx, path, q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", path, err)
	}
	return json.RawMessage(body), nil
}

// send performs the HTTP exchange, retrying transport failures. A response
// with any status code counts as a successful exchange: non-2xx statuses
// are classified by the caller, never retried here.
func (c *Client) send(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var resp *http.Response
	err := retry.Do(ctx, retry.Config{
		MaxRetries: c.retryCfg.MaxRetries,
		BaseDelay:  c.retryCfg.BaseDelay,
		OnRetry: func(attempt int, err error) {
			telemetry.UpstreamRetries.Inc()
			c.logger.Warn("upstream request failed, retrying",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth("API_KEY", c.apiKey)
		resp, err = c.http.Do(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upstream GET %s: %w", path, err)
	}
	return resp, nil
}

// errorFromResponse converts a failed response into an APIError with a
// bounded body snippet.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &APIError{Status: resp.StatusCode, Body: string(body)}
}
