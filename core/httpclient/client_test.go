package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.True(t, ShouldRetry(dialErr))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "http://x", Err: dialErr}))
	assert.True(t, ShouldRetry(context.DeadlineExceeded))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.False(t, ShouldRetry(nil))
}

func TestRetryTransportReplaysBody(t *testing.T) {
	t.Parallel()

	var bodies []string
	calls := 0
	rt := &retryTransport{
		base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if calls == 1 {
				return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		maxRetries: 2,
		backoff:    time.Millisecond,
	}

	req, err := http.NewRequest(http.MethodPost, "http://example.invalid", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{`{"a":1}`, `{"a":1}`}, bodies)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	rt := &retryTransport{
		base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("tls: bad certificate")
		}),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewWithoutRetries(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	_, wrapped := c.Transport.(*retryTransport)
	assert.False(t, wrapped)

	c = New(Telegram())
	_, wrapped = c.Transport.(*retryTransport)
	assert.True(t, wrapped)
}
