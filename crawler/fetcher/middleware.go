package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/dotecxy/legado2-sub001/logging"
	"github.com/dotecxy/legado2-sub001/monitoring"
	"golang.org/x/time/rate"
)

// NewRateLimitMiddleware limits request rate across all callers
func NewRateLimitMiddleware(rps float64, burst int) Middleware {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Fetch(ctx, req)
		})
	}
}

// NewThrottleMiddleware bounds in-flight requests
func NewThrottleMiddleware(maxConcurrent int) Middleware {
	semaphore := make(chan struct{}, maxConcurrent)
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
				return next.Fetch(ctx, req)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	}
}

// NewLoggingMiddleware logs each request at debug level and failures at warn
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			l := logger
			if l == nil {
				l = logging.L(ctx)
			}
			start := time.Now()
			resp, err := next.Fetch(ctx, req)
			if err != nil {
				l.Warn("fetch failed", "url", req.URL, "method", req.Method, "duration_ms", time.Since(start).Milliseconds(), "error", err)
				return nil, err
			}
			l.Debug("fetched", "url", req.URL, "final_url", resp.URL, "status", resp.StatusCode, "bytes", len(resp.Body), "duration_ms", time.Since(start).Milliseconds())
			return resp, nil
		})
	}
}

// NewMetricsMiddleware records fetch counters labelled by operation
func NewMetricsMiddleware() Middleware {
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Fetch(ctx, req)
			monitoring.RecordFetch(OperationFromContext(ctx), time.Since(start), err)
			return resp, err
		})
	}
}
