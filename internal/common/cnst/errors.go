package cnst

import "errors"

var (
	// ErrQueueFull is returned when an endpoint inbox cannot take another envelope
	ErrQueueFull = errors.New("message queue is full")
	// ErrEndpointClosed is returned by operations on a disconnected endpoint
	ErrEndpointClosed = errors.New("endpoint is closed")
	// ErrCacheMiss is returned when a cache key does not exist or expired
	ErrCacheMiss = errors.New("cache miss")
)
