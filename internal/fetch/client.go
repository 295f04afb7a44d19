// Package fetch provides the upstream HTTP transport shared by all provider
// adapters: a retrying client, payload fingerprints and decoding helpers
// that classify failures into the domain error taxonomy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/logging"
)

var log = logging.Logger("fetch")

// Client performs upstream GET requests with retries. It is immutable after
// construction and safe for concurrent use by every adapter.
type Client struct {
	rclient   *retryablehttp.Client
	userAgent string
	maxBody   int64
}

// NewClient builds a Client from the HTTP settings
func NewClient(cfg config.HTTPConfig) *Client {
	rclient := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
		RetryMax:     cfg.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				log.Debugw("retrying upstream request", "url", req.URL.String(), "attempt", attempt)
			}
		},
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 20
	}
	return &Client{
		rclient:   rclient,
		userAgent: cfg.UserAgent,
		maxBody:   maxBody,
	}
}

// StandardClient returns a net/http client backed by the retrying transport
func (c *Client) StandardClient() *http.Client {
	return c.rclient.StandardClient()
}

// Get fetches url and returns the full response body. Transport failures,
// non-2xx statuses and oversized bodies are reported as network errors for
// provider.
func (c *Client) Get(ctx context.Context, provider domain.ProviderName, url string) ([]byte, error) {
	ctx, span := otel.Tracer("ipranges/fetch").Start(ctx, "fetch.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", provider.String()),
		attribute.String("http.url", url),
	)

	op := "GET " + url
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewNetworkError(provider, op, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.rclient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, domain.NewNetworkError(provider, op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewNetworkError(provider, op, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		span.RecordError(err)
		return nil, domain.NewNetworkError(provider, op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > c.maxBody {
		return nil, domain.NewNetworkError(provider, op, fmt.Errorf("body exceeds %d bytes", c.maxBody))
	}

	log.Debugw("fetched upstream payload",
		"provider", provider,
		"execution_id", domain.ExecutionID(ctx),
		"url", url,
		"bytes", len(body),
		"duration", time.Since(start))
	return body, nil
}

// Fingerprint returns a stable hex digest of one or more payloads. Payload
// boundaries are part of the digest.
func Fingerprint(payloads ...[]byte) string {
	d := xxhash.New()
	for i, p := range payloads {
		if i > 0 {
			_, _ = d.Write([]byte{0})
		}
		_, _ = d.Write(p)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// DecodeJSON decodes body into a new T, reporting failures as parse errors
// for provider.
func DecodeJSON[T any](provider domain.ProviderName, body []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, domain.NewParseError(provider, "decode json", err)
	}
	return &v, nil
}
