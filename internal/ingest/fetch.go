package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/lox/snowtraffic/internal/httputil"
	"github.com/lox/snowtraffic/internal/metrics"
)

// maxBodySize bounds upstream responses.
const maxBodySize = 8 << 20

// fetcher performs upstream requests with retry and a per-source circuit
// breaker, recording call metrics.
type fetcher struct {
	source     string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.SugaredLogger
	newBackOff func() backoff.BackOff
}

func newFetcher(source string, logger *zap.SugaredLogger) *fetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &fetcher{
		source: source,
		client: httputil.NewClient(),
		logger: logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
	f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("%s: circuit breaker %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return f
}

// statusError is an unexpected upstream HTTP status.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// do sends the request built by newReq and returns the response body. 429 and
// 5xx responses and transport errors are retried; other non-200 statuses and
// an open breaker fail immediately.
func (f *fetcher) do(ctx context.Context, target string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamCallsTotal.WithLabelValues(f.source, target, status).Inc()
		metrics.UpstreamLatency.WithLabelValues(f.source, target).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	operation := func() error {
		b, err := f.breaker.Execute(func() ([]byte, error) {
			req, err := newReq(ctx)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
			}
			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				serr := &statusError{Code: resp.StatusCode, Body: truncate(string(b), 200)}
				if retryable(resp.StatusCode) {
					return nil, serr
				}
				return nil, backoff.Permanent(serr)
			}
			return b, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			f.logger.Debugf("%s: fetch %s: %v (retrying)", f.source, target, err)
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		var serr *statusError
		if errors.As(err, &serr) {
			status = strconv.Itoa(serr.Code)
		}
		return nil, fmt.Errorf("%s %s: %w", f.source, target, err)
	}
	status = "ok"
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
