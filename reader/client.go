package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	appconfig "econwatch/config"
	"econwatch/logger"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when an upstream answers 429.
var ErrRateLimited = errors.New("rate limited by upstream")

const maxBodyBytes = 8 << 20

// Client is the HTTP client shared by all fetchers. Every request waits on
// a token from the limiter first.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(cfg appconfig.ReaderConfig) *Client {
	agent := cfg.UserAgent
	if agent == "" {
		agent = "econwatch"
	}
	burst := cfg.RateLimit.BurstSize
	if burst < 1 {
		burst = 1
	}
	httpClient := &http.Client{
		Transport: userAgentTransport{agent: agent, base: http.DefaultTransport},
		Timeout:   cfg.Timeout,
	}
	return NewClientWith(httpClient, rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst))
}

// NewClientWith builds a client around an existing http.Client. A nil
// limiter means requests are not throttled.
func NewClientWith(httpClient *http.Client, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{http: httpClient, limiter: limiter, log: logger.GetLogger()}
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := reqURL.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		reqURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	log := c.log.WithComponent("http_client").WithFields(logger.Fields{"url": reqURL.String()})
	res, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return nil, fmt.Errorf("GET %s: %w", reqURL.Host, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", reqURL.Host, err)
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		log.WithFields(logger.Fields{"status": res.StatusCode}).Warn("rate limit exceeded")
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, reqURL.Host)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, fmt.Errorf("GET %s: unexpected status %d", reqURL.Host, res.StatusCode)
	}

	log.WithFields(logger.Fields{"status": res.StatusCode, "bytes": len(body)}).Debug("response received")
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	body, err := c.get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}
