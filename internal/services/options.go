package services

import "time"

// RateLimiter gates calls that reach the completion service.
type RateLimiter interface {
	Allow(key string) bool
}

type options struct {
	now func() time.Time
}

// Option configures a service.
type Option func(*options)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
