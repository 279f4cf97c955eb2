package repository

import "time"

// Option customizes a repository.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
