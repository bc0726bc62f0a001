package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 60 * time.Second

// NewClient returns an HTTP client bounded by timeout, or DefaultTimeout when
// timeout is not positive. Station archives are several megabytes, so the
// bound covers the whole body transfer.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
