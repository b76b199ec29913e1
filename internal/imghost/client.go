// Package imghost uploads page images to an Imgur-compatible image host.
package imghost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the Imgur v3 anonymous image upload endpoint.
const DefaultEndpoint = "https://api.imgur.com/3/image"

// StatusError is a non-success response from the image host.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("imghost: upload returned %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status of the rejected upload.
func (e *StatusError) StatusCode() int { return e.Code }

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the upload endpoint (for testing).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRateLimit caps uploads at perSec requests per second. Zero disables
// the limit.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// Client uploads image files and returns their public URLs.
type Client struct {
	clientID string
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an image host client authenticated by clientID.
func NewClient(clientID string, opts ...Option) *Client {
	c := &Client{
		clientID: clientID,
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadResponse struct {
	Data    uploadData `json:"data"`
	Success bool       `json:"success"`
	Status  int        `json:"status"`
}

type uploadData struct {
	Link string `json:"link"`
}

// Upload sends the image at path and returns its remote URL. Each call is a
// single attempt; retries belong to the caller.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "imghost: rate limit wait")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "imghost: read image %s", path)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", eris.Wrap(err, "imghost: create form file")
	}
	if _, err := part.Write(data); err != nil {
		return "", eris.Wrap(err, "imghost: write form file")
	}
	if err := mw.Close(); err != nil {
		return "", eris.Wrap(err, "imghost: close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", eris.Wrap(err, "imghost: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Client-ID "+c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "imghost: upload request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "imghost: read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var ur uploadResponse
	if err := json.Unmarshal(respBody, &ur); err != nil {
		return "", eris.Wrap(err, "imghost: unmarshal response")
	}
	if ur.Data.Link == "" {
		return "", eris.Errorf("imghost: response for %s has no link", filepath.Base(path))
	}

	return ur.Data.Link, nil
}
