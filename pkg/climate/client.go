// Package climate is the HTTP client for the carbon-pricing simulation
// backend. Requests are rate limited, retried on transient failures,
// and non-2xx responses come back as classifiable API errors.
package climate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/carbonlens/carbonlens-cli/internal/apierr"
	"github.com/carbonlens/carbonlens-cli/internal/resilience"
)

const defaultBaseURL = "http://localhost:8000"

// TokenSource supplies the current bearer token. An empty string sends
// the request unauthenticated.
type TokenSource func() string

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP
// client. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetry overrides the retry policy for all requests.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithTokenSource sets where the bearer token comes from.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.token = src
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client talks to the simulation backend.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	token   TokenSource
	log     *zap.Logger
}

// NewClient creates a backend API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 10),
		retry:   resilience.DefaultRetryConfig(),
		token:   func() string { return "" },
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// request describes one API call for the shared transport path.
type request struct {
	method string
	path   string
	query  url.Values
	body   any        // JSON-encoded when non-nil
	form   url.Values // overrides body with form encoding when non-nil
}

// do sends the request with rate limiting and retries, decoding a JSON
// response into out when out is non-nil. A non-2xx status is returned
// as an *apierr.APIError carrying the response body.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	contentType := ""
	switch {
	case req.form != nil:
		payload = []byte(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return eris.Wrap(err, "climate: marshal request")
		}
		contentType = "application/json"
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	retryCfg := c.retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(req.method + " " + req.path)
	}

	body, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "climate: rate limit wait")
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, u, reader)
		if err != nil {
			return nil, eris.Wrap(err, "climate: create request")
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		if token := c.token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "climate: read response")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apierr.New(resp.StatusCode, respBody)
		}
		return respBody, nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "climate: unmarshal response")
		}
	}
	return nil
}
