package application

import (
	"io"
	"log"
	"time"

	"devicelab/internal/eventbus"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type options struct {
	clock     Clock
	logger    *log.Logger
	publisher eventbus.Publisher
	interval  time.Duration
}

// Option customizes the machine, poller and service.
type Option func(*options)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPublisher assigns the event publisher.
func WithPublisher(publisher eventbus.Publisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithPollInterval sets the completion poll period.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.interval = interval
		}
	}
}

// DefaultPollInterval is the completion poll period when none is configured.
const DefaultPollInterval = 5 * time.Second

func buildOptions(opts []Option) options {
	o := options{
		clock:    systemClock{},
		logger:   log.New(io.Discard, "", 0),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
