// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides an HTTP client that retries rate-limited and
// transiently failing requests.
package httpclient

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy says how a failed status should be retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	// ConservativeRetry retries a couple of times with short fixed delays.
	ConservativeRetry
	// SmartRetry honors server hints and otherwise backs off exponentially.
	SmartRetry
)

// conservativeAttempts caps ConservativeRetry regardless of max retries.
const conservativeAttempts = 2

// RateLimitInfo is what a server said about when to come back.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// RateLimitHeaderParser extracts RateLimitInfo from response headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryStrategyFunc maps a status code to a strategy.
type RetryStrategyFunc func(int) RetryStrategy

// Client wraps an *http.Client with retries. It satisfies the HTTPDoer
// interface of OpenAI-compatible SDKs.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets how many times a request is retried. Zero disables
// retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client with 5 retries and a 2s base delay.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		headerParser: ParseRetryHeaders,
		strategyFunc: DefaultRetryStrategy,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultRetryStrategy retries 429 and 503 with backoff and other gateway
// errors conservatively.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do sends req, retrying retryable statuses. Once retries are exhausted the
// last response is returned as is so callers can read the error body.
// Transport errors are not retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, &RetryableError{Message: "failed to recreate request body for retry", Err: err}
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategyFunc(resp.StatusCode)
		delay := c.delay(strategy, attempt, c.parse(resp.Header))
		if delay <= 0 || attempt >= c.maxRetries || !rewindable(req) {
			return resp, nil
		}

		c.logger.Warn("Retrying HTTP request",
			"status", resp.StatusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"url", req.URL.Redacted())

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := sleep(ctx, delay); err != nil {
			return nil, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    "retry wait cancelled",
				RetryAfter: delay,
				Err:        err,
			}
		}
	}
}

func (c *Client) parse(h http.Header) RateLimitInfo {
	if c.headerParser == nil {
		return RateLimitInfo{}
	}
	return c.headerParser(h)
}

// delay returns how long to wait before the next attempt, or zero when the
// strategy gives up.
func (c *Client) delay(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter
		}
		if info.ResetTime > 0 {
			if d := time.Until(time.Unix(info.ResetTime, 0)); d > 0 {
				return d
			}
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		return backoff + backoff/10

	case ConservativeRetry:
		if attempt >= conservativeAttempts {
			return 0
		}
		return time.Duration(1+attempt) * c.baseDelay

	default:
		return 0
	}
}

// rewindable reports whether req can be sent again.
func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
