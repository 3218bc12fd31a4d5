package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	perrors "github.com/randalmurphal/paperflow/pkg/paperflow/errors"
)

// DefaultBaseURL is the public arXiv query endpoint.
const DefaultBaseURL = "https://export.arxiv.org/api/query"

// Client queries the arXiv API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	retry      perrors.RetryConfig
	maxResults int
	maxPapers  int
	threshold  int
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a Client. By default it sends at most one request
// every three seconds, as arXiv asks of API users.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(3*time.Second), 1),
		retry:      perrors.DefaultRetry,
		maxResults: 50,
		maxPapers:  50,
		threshold:  DefaultSimhashThreshold,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the request rate. A non-positive rps disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry sets the per-request retry policy.
func WithRetry(cfg perrors.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMaxResults sets how many results are requested per term.
func WithMaxResults(n int) Option {
	return func(c *Client) { c.maxResults = n }
}

// WithMaxPapers caps the merged result list.
func WithMaxPapers(n int) Option {
	return func(c *Client) { c.maxPapers = n }
}

// WithSimhashThreshold sets the title dedup distance.
func WithSimhashThreshold(n int) Option {
	return func(c *Client) { c.threshold = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Search runs one request per term, keeps hits inside the date range,
// merges them in term order, removes duplicates and caps the result at
// the configured maximum.
func (c *Client) Search(ctx context.Context, q Query) ([]Paper, error) {
	var merged []Paper
	for _, term := range q.Terms {
		if term == "" {
			continue
		}
		papers, err := perrors.Do(ctx, c.retry, func(ctx context.Context) ([]Paper, error) {
			return c.fetch(ctx, q.searchQuery(term))
		})
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", term, err)
		}

		before := len(merged)
		for _, p := range papers {
			if q.inRange(p.Published) {
				merged = append(merged, p)
			}
		}
		c.logger.Debug("arxiv term searched",
			slog.String("term", term),
			slog.Int("hits", len(papers)),
			slog.Int("in_range", len(merged)-before),
		)
	}

	out := Dedup(merged, c.threshold)
	if c.maxPapers > 0 && len(out) > c.maxPapers {
		out = out[:c.maxPapers]
	}
	c.logger.Info("arxiv search complete",
		slog.Int("terms", len(q.Terms)),
		slog.Int("merged", len(merged)),
		slog.Int("unique", len(out)),
	)
	return out, nil
}

func (c *Client) fetch(ctx context.Context, searchQuery string) ([]Paper, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(c.maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, perrors.FatalFailure("arxiv", "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perrors.TransientFailure("arxiv", "request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, perrors.TransientFailure("arxiv", "read body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &perrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(truncate(body, 200)),
			Endpoint:   c.baseURL,
		}
	}

	papers, err := parseFeed(body)
	if err != nil {
		return nil, perrors.FatalFailure("arxiv", "parse", err)
	}
	return papers, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
