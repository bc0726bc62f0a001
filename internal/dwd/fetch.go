package dwd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/ujung/wetter/internal/httputil"
)

// DefaultBaseURL is the DWD open data directory of historical daily climate
// archives.
const DefaultBaseURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/historical/"

// Fetcher downloads one archive by file name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	Transport() string
}

var errServerStatus = errors.New("server error")

// archiveLink matches archive links in the server's directory listing.
var archiveLink = regexp.MustCompile(`href="([^"/]+\.zip)"`)

// StatusError is a non-retryable HTTP response status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// HTTPFetcher downloads archives over HTTPS with retries and a circuit
// breaker shared by all requests to the base URL.
type HTTPFetcher struct {
	baseURL    string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxElapsed time.Duration
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  httputil.NewClient(timeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "dwd-http",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		maxElapsed: 2 * time.Minute,
	}
}

func (f *HTTPFetcher) Transport() string { return "http" }

func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	return f.get(ctx, name)
}

// List returns the sorted archive names linked from the directory listing
// at the base URL.
func (f *HTTPFetcher) List(ctx context.Context) ([]string, error) {
	page, err := f.get(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, m := range archiveLink.FindAllSubmatch(page, -1) {
		name := string(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *HTTPFetcher) get(ctx context.Context, name string) ([]byte, error) {
	url := f.baseURL + name

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		result, err := f.breaker.Execute(func() (interface{}, error) {
			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				// A client error says nothing about the host's health.
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return &StatusError{Code: resp.StatusCode, Body: string(b)}, nil
			}
			return io.ReadAll(resp.Body)
		})
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return backoff.Permanent(ctx.Err())
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				return backoff.Permanent(fmt.Errorf("fetch %s: %w", url, err))
			}
			return fmt.Errorf("fetch %s: %w", url, err)
		}

		if se, ok := result.(*StatusError); ok {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", url, se))
		}
		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
