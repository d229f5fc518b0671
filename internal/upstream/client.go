package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/feedmux/feedgate/internal/model"
)

// Adapter is the pull-only view of the venue consumed by the polling loops.
// Implementations must be safe for concurrent calls on different selectors;
// each selector is only ever called serially, since one loop owns each key.
type Adapter interface {
	FetchTick(ctx context.Context, symbol string) (model.TickRaw, error)
	FetchOrderBook(ctx context.Context, symbol string) (model.OrderBookRaw, error)
	FetchPositions(ctx context.Context, account string) ([]model.PositionRaw, error)
}

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// Client implements Adapter against the venue's REST gateway.
type Client struct {
	baseURL string
	apiKey  string

	httpClient   *http.Client
	maxRetries   int
	retryBackoff time.Duration
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets the retry count and the base backoff.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a venue REST client rooted at baseURL. An empty apiKey
// skips the Authorization header.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
