package app

import (
	"time"

	"go.uber.org/zap"
)

// DefaultLeaseTTL is how long a draft lease stays live without a refresh.
const DefaultLeaseTTL = 10 * time.Minute

// DefaultEditWindow is how long a non-privileged user may edit a permanent record.
const DefaultEditWindow = 24 * time.Hour

type options struct {
	now        func() time.Time
	leaseTTL   time.Duration
	editWindow time.Duration
	logger     *zap.Logger
}

// Option configures a service.
type Option func(*options)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLeaseTTL sets the single lease TTL used for contention, visibility,
// lock checks and sweeping.
func WithLeaseTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.leaseTTL = d
		}
	}
}

// WithEditWindow sets how long records stay editable by their creators.
func WithEditWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.editWindow = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		leaseTTL:   DefaultLeaseTTL,
		editWindow: DefaultEditWindow,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) clock() time.Time { return o.now().UTC() }

func (o options) staleBefore(now time.Time) time.Time { return now.Add(-o.leaseTTL) }
