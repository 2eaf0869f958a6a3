package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusSequence serves the given statuses in order, then 200.
func statusSequence(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		n := int(calls.Add(1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte("fail"))
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastClient(opts ...Option) *Client {
	return New(append([]Option{WithBaseDelay(time.Millisecond)}, opts...)...)
}

func TestDoRetriesAndReplaysBody(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusTooManyRequests, http.StatusServiceUnavailable)

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	require.NoError(t, err)
	resp, err := fastClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoReturnsLastResponseWhenExhausted(t *testing.T) {
	srv, calls := statusSequence(t, 429, 429, 429, 429)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastClient(WithMaxRetries(2)).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "fail", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoConservativeRetryIsCapped(t *testing.T) {
	srv, calls := statusSequence(t, 500, 500, 500, 500)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(conservativeAttempts+1), calls.Load())
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := statusSequence(t, http.StatusBadRequest)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoWithRetriesDisabled(t *testing.T) {
	srv, calls := statusSequence(t, 503)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastClient(WithMaxRetries(0)).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	_, err := New().Do(req)
	var rerr *RetryableError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusTooManyRequests, rerr.StatusCode)
	assert.Equal(t, 30*time.Second, rerr.RetryAfter)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDelay(t *testing.T) {
	c := New(WithBaseDelay(time.Second))

	assert.Equal(t, 7*time.Second, c.delay(SmartRetry, 0, RateLimitInfo{RetryAfter: 7 * time.Second}))
	assert.Equal(t, 1100*time.Millisecond, c.delay(SmartRetry, 0, RateLimitInfo{}))
	assert.Equal(t, 4400*time.Millisecond, c.delay(SmartRetry, 2, RateLimitInfo{}))
	assert.Equal(t, 2*time.Second, c.delay(ConservativeRetry, 1, RateLimitInfo{}))
	assert.Zero(t, c.delay(ConservativeRetry, 2, RateLimitInfo{}))
	assert.Zero(t, c.delay(NoRetry, 0, RateLimitInfo{}))
}

func TestParseRetryHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	h.Set("x-ratelimit-reset-requests", "1m0s")
	h.Set("x-ratelimit-remaining-requests", "0")
	h.Set("x-ratelimit-remaining-tokens", "1500")

	info := ParseRetryHeaders(h)
	assert.Equal(t, 12*time.Second, info.RetryAfter)
	assert.InDelta(t, time.Now().Add(time.Minute).Unix(), info.ResetTime, 2)
	assert.Equal(t, 0, info.RequestsRemaining)
	assert.Equal(t, 1500, info.TokensRemaining)

	h = http.Header{}
	h.Set("x-ratelimit-reset-tokens", "1700000000")
	assert.Equal(t, int64(1700000000), ParseRetryHeaders(h).ResetTime)

	assert.Equal(t, RateLimitInfo{}, ParseRetryHeaders(http.Header{}))
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(nil)
	require.NoError(t, err)
	assert.NotNil(t, tr)

	tr, err = NewTransport(&TLSConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	_, err = NewTransport(&TLSConfig{CACertificate: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}
