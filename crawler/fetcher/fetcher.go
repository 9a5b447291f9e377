package fetcher

import (
	"context"
)

// Request is a resolved page request built from a URL rule
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	// Charset forces body decoding and is used for form encoding; empty
	// means detect from the response
	Charset string `json:"charset,omitempty"`
}

// Response carries the final URL after redirects and the decoded body
type Response struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Fetcher is the HTTP transport collaborator. Retry and cookie policy live
// behind it; callers never retry.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Fetcher
type Func func(ctx context.Context, req *Request) (*Response, error)

// Fetch implements Fetcher
func (f Func) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a fetcher
type Middleware func(next Fetcher) Fetcher

// Chain applies middlewares so the first one listed runs outermost
func Chain(f Fetcher, middlewares ...Middleware) Fetcher {
	for i := len(middlewares) - 1; i >= 0; i-- {
		f = middlewares[i](f)
	}
	return f
}

type contextKey string

const contextKeyOperation contextKey = "fetch_operation"

// WithOperation labels fetches made with ctx, e.g. "toc" or "content"
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextKeyOperation, operation)
}

// OperationFromContext returns the fetch label or "unknown"
func OperationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyOperation).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
