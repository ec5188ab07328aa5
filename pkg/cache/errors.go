package cache

import (
	"errors"
	"fmt"
)

// Common errors returned by the cache store.
var (
	// ErrNotFound is returned when the requested content is not cached.
	ErrNotFound = errors.New("content not cached")

	// ErrCacheClosed is returned when operations are attempted on a
	// closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// QuotaError is returned by Put when eviction could not free enough
// pinned-free space for the incoming item. The insert is refused; the
// budget is never exceeded.
type QuotaError struct {
	// RequestedBytes is the size of the item that could not be cached.
	RequestedBytes uint64

	// AvailableBytes is the most that eviction could have freed plus the
	// space already free, at the time of the attempt.
	AvailableBytes uint64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("cache quota exceeded: need %d bytes but only %d available without evicting pinned content",
		e.RequestedBytes, e.AvailableBytes)
}

// IsQuotaError reports whether err is a quota refusal.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
