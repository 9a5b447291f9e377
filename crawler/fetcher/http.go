package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dotecxy/legado2-sub001/config"
	apperrors "github.com/dotecxy/legado2-sub001/errors"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// HTTPFetcher implements Fetcher with resty
type HTTPFetcher struct {
	client      *resty.Client
	userAgent   string
	maxBodySize int64
}

// NewHTTPFetcher creates a new HTTP fetcher
func NewHTTPFetcher(cfg config.FetcherConfig) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.RetryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &HTTPFetcher{
		client:      client,
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}
}

// NewDefault builds the transport with the standard middleware chain
func NewDefault(cfg config.FetcherConfig, concurrency int) Fetcher {
	middlewares := []Middleware{NewMetricsMiddleware(), NewLoggingMiddleware(nil)}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, NewRateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if concurrency > 0 {
		middlewares = append(middlewares, NewThrottleMiddleware(concurrency))
	}
	return Chain(NewHTTPFetcher(cfg), middlewares...)
}

// Fetch fetches content from URL
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	r := f.client.R().SetContext(ctx)

	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if _, exists := req.Headers["User-Agent"]; !exists && f.userAgent != "" {
		r.SetHeader("User-Agent", f.userAgent)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodPost && req.Body != "" {
		body, contentType, err := encodeBody(req.Body, req.Charset)
		if err != nil {
			return nil, apperrors.ErrURLInvalid.WithCause(err).WithURL(req.URL)
		}
		if _, exists := req.Headers["Content-Type"]; !exists {
			r.SetHeader("Content-Type", contentType)
		}
		r.SetBody(body)
	}

	startTime := time.Now()
	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, apperrors.ErrFetchFailed.WithCause(err).WithURL(req.URL)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, apperrors.ErrFetchFailed.
			WithCause(fmt.Errorf("status %d after %s", resp.StatusCode(), time.Since(startTime))).
			WithURL(req.URL)
	}

	raw := resp.Body()
	if f.maxBodySize > 0 && int64(len(raw)) > f.maxBodySize {
		return nil, apperrors.ErrFetchFailed.
			WithCause(fmt.Errorf("body size %d exceeds limit %d", len(raw), f.maxBodySize)).
			WithURL(req.URL)
	}

	body, err := decodeBody(raw, req.Charset, resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, apperrors.ErrFetchFailed.WithCause(err).WithURL(req.URL)
	}

	finalURL := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Body:       body,
	}, nil
}

// decodeBody converts the body to UTF-8: a forced charset wins, otherwise
// the Content-Type header and <meta> sniffing decide
func decodeBody(raw []byte, forced, contentType string) (string, error) {
	if forced != "" {
		enc, err := htmlindex.Get(forced)
		if err != nil {
			return "", fmt.Errorf("unknown charset %q: %w", forced, err)
		}
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw), nil
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// encodeBody picks a content type and re-encodes the body when a non-UTF-8
// charset is requested
func encodeBody(body, cs string) ([]byte, string, error) {
	contentType := "application/x-www-form-urlencoded"
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		contentType = "application/json"
	}
	if cs == "" || strings.EqualFold(cs, "utf-8") || strings.EqualFold(cs, "utf8") {
		return []byte(body), contentType + "; charset=UTF-8", nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, "", fmt.Errorf("unknown charset %q: %w", cs, err)
	}
	out, err := enc.NewEncoder().Bytes([]byte(body))
	if err != nil {
		return nil, "", err
	}
	return out, contentType + "; charset=" + cs, nil
}
