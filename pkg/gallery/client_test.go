package gallery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pzgrab/pkg/errors"
	"pzgrab/pkg/retry"
)

// fastClient returns a client with millisecond backoff so tests stay quick
func fastClient(headers map[string]string) *Client {
	c := NewClient(5*time.Second, headers, nil)
	c.backoff = &retry.ExponentialBackoff{
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
	return c
}

func TestFetchImageSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cookie-blob", r.Header.Get("Cookie"))
		assert.Equal(t, "https://host/gallery", r.Header.Get("Referer"))
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	c := fastClient(map[string]string{"Cookie": "cookie-blob"})

	data, status, err := c.FetchImage(context.Background(), server.URL, "https://host/gallery")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestFetchImageRetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := fastClient(nil)

	data, status, err := c.FetchImage(context.Background(), server.URL, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchImageExhaustsTransportRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := fastClient(nil)
	c.SetTransportRetries(3)

	_, status, err := c.FetchImage(context.Background(), server.URL, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var fetchErr *errs.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, errs.ErrorTypeServerError, fetchErr.Type)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Code)
}

func TestFetchImageDoesNotRetryTerminalStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := fastClient(nil)

	_, status, err := c.FetchImage(context.Background(), server.URL, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchImageEmptyBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := fastClient(nil)

	_, status, err := c.FetchImage(context.Background(), server.URL, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, status)

	var fetchErr *errs.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, errs.ErrorTypeEmptyBody, fetchErr.Type)
}

func TestFetchImageHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := fastClient(nil)

	start := time.Now()
	_, _, err := c.FetchImage(context.Background(), server.URL, "")
	require.NoError(t, err)
	// Retry-After of 1s wins over the millisecond backoff
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"negative seconds ignored", "-3", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRetryAfter(tt.value))
		})
	}

	t.Run("http date", func(t *testing.T) {
		future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
		d := parseRetryAfter(future)
		assert.Greater(t, d, 25*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	})
}
