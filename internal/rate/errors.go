package rate

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited marks every limit rejection; match with errors.Is.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps transport failures to the counter backend.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// LimitedError carries the remaining window duration for a rejected client.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *LimitedError) Unwrap() error {
	return ErrRateLimited
}
