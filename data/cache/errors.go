package cache

import "errors"

// ErrCacheMiss is returned when a symbol is absent or its entry expired.
var ErrCacheMiss = errors.New("cache miss")
