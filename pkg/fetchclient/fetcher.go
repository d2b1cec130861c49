package fetchclient

import (
	"context"
	"net/http"
	"time"
)

const maxBackoff = 30 * time.Second

// Logger defines the logging surface the fetcher relies on.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}

// Fetcher retrieves URLs with bounded retries, exponential backoff, and a
// shared rate gate. Timeouts, connection errors, and 5xx responses are
// retried; 4xx responses are surfaced immediately as permanent.
type Fetcher struct {
	client      Client
	gate        *Gate
	maxAttempts int
	baseDelay   time.Duration
	log         Logger
}

// Options configures a Fetcher.
type Options struct {
	// MaxAttempts is the total number of tries per URL, including the first.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between retries of one URL.
	BaseDelay time.Duration
	// Gate throttles requests globally across callers. Optional.
	Gate *Gate
	Log  Logger
}

// NewFetcher builds a retrying fetcher on top of the given HTTP client.
func NewFetcher(client Client, opts Options) *Fetcher {
	if client == nil {
		client = NewRestyClient(15 * time.Second)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Log == nil {
		opts.Log = noopLogger{}
	}
	return &Fetcher{
		client:      client,
		gate:        opts.Gate,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		log:         opts.Log,
	}
}

// Fetch retrieves url, returning the response body or a classified *Error.
// On exhausting retries the last failure is surfaced.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var last *Error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := f.gate.Wait(ctx); err != nil {
			return nil, err
		}

		body, ferr := f.once(ctx, url, headers)
		if ferr == nil {
			return body, nil
		}
		last = ferr

		if !ferr.Transient() || attempt == f.maxAttempts {
			break
		}

		f.log.WarnObj("fetch attempt failed, retrying", "fetch_retry", map[string]any{
			"url":     url,
			"attempt": attempt,
			"max":     f.maxAttempts,
			"kind":    ferr.Kind.String(),
		})
		if err := sleepCtx(ctx, backoffDelay(f.baseDelay, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, last
}

func (f *Fetcher) once(ctx context.Context, url string, headers map[string]string) ([]byte, *Error) {
	resp, err := f.client.Get(ctx, url, headers)
	if err != nil {
		return nil, classify(url, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return nil, &Error{Kind: KindHTTPStatus, URL: url, StatusCode: code}
	}
	if code == http.StatusNoContent || len(resp.Body()) == 0 {
		return nil, &Error{Kind: KindDecode, URL: url}
	}
	return resp.Body(), nil
}

// backoffDelay doubles the base delay per completed attempt, capped.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
