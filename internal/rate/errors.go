package rate

import "errors"

var (
	// ErrLimited indicates the key exhausted its window budget.
	ErrLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures from the counting store.
	ErrRedisUnavailable = errors.New("rate limit redis unavailable")
)
