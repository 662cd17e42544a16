package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"hlsgrab/internal/logger"
)

const (
	retryMinInterval = 1 * time.Second
	retryMaxInterval = 10 * time.Second
)

// Client performs origin requests under a shared retry policy: bounded
// exponential backoff between attempts and a fixed maximum attempt count.
// It is immutable after construction and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	log        logger.Logger
	maxRetries uint64
	userAgent  string
}

// New creates a Client. timeout bounds each individual request; maxRetries is
// the number of retries after the first attempt.
func New(timeout time.Duration, maxRetries int, userAgent string, log logger.Logger) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		maxRetries: uint64(maxRetries),
		userAgent:  userAgent,
	}
}

// Get fetches rawURL and returns the body together with the final URL after
// any redirects. The final URL is the base for resolving relative playlist
// URIs.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	return c.get(ctx, rawURL, "")
}

// GetRange is Get with a Range header, used for byte-range segments. The
// final URL is not reported because segment bytes are consumed as-is.
func (c *Client) GetRange(ctx context.Context, rawURL, rangeHeader string) ([]byte, error) {
	body, _, err := c.get(ctx, rawURL, rangeHeader)
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL, rangeHeader string) ([]byte, string, error) {
	var body []byte
	var finalURL string

	attempt := 0
	op := func() error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			// A malformed URL never becomes fetchable.
			return backoff.Permanent(fmt.Errorf("building request for %s: %w", rawURL, err))
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("attempt %d for %s: %w", attempt, rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("attempt %d for %s: status %d", attempt, rawURL, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(fmt.Errorf("%s: status %d", rawURL, resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("attempt %d reading body of %s: %w", attempt, rawURL, err)
		}

		body = data
		finalURL = resp.Request.URL.String()
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warnf("Transient fetch failure, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, "", err
	}
	return body, finalURL, nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryMinInterval
	b.MaxInterval = retryMaxInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return b
}
