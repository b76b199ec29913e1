package imghost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billrecon/internal/resilience"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bill.pdf_page_1.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o644))
	return path
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Client-ID abc123", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close() //nolint:errcheck
		data, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, "bill.pdf_page_1.png", header.Filename)
		assert.Equal(t, []byte("\x89PNG fake"), data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"link":"https://i.imgur.com/AbC.png"},"success":true,"status":200}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("abc123", WithEndpoint(srv.URL))
	url, err := c.Upload(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, "https://i.imgur.com/AbC.png", url)
}

func TestUpload_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"data":{"error":"rate limited"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("abc123", WithEndpoint(srv.URL))
	_, err := c.Upload(context.Background(), writeImage(t))
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode())
	assert.Contains(t, se.Body, "rate limited")
	assert.Equal(t, resilience.FailureRejected, resilience.Classify(err))
}

func TestUpload_MissingLink(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{},"success":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("abc123", WithEndpoint(srv.URL))
	_, err := c.Upload(context.Background(), writeImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no link")
}

func TestUpload_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("abc123", WithEndpoint(srv.URL))
	_, err := c.Upload(context.Background(), writeImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestUpload_MissingFile(t *testing.T) {
	t.Parallel()

	c := NewClient("abc123", WithEndpoint("http://127.0.0.1:1"))
	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read image")
}

func TestUpload_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("abc123", WithEndpoint(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := c.Upload(context.Background(), writeImage(t))
	require.Error(t, err)
	assert.Equal(t, resilience.FailureTimeout, resilience.Classify(err))
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient("id")
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, 15*time.Second, c.http.Timeout)
	assert.Nil(t, c.limiter)

	c = NewClient("id", WithRateLimit(2))
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 2.0, float64(c.limiter.Limit()), 0.0001)

	hc := &http.Client{}
	c = NewClient("id", WithHTTPClient(hc), WithRateLimit(0))
	assert.Same(t, hc, c.http)
	assert.Nil(t, c.limiter)
}
