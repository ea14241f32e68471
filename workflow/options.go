package workflow

import (
	"log/slog"
	"time"

	"github.com/songzhibin97/workflow-steps/events"
)

// DefaultMaxDepth bounds the number of nested steps one branch may walk.
const DefaultMaxDepth = 1000

type settings struct {
	logger     *slog.Logger
	eventBus   *events.EventBus
	concurrent bool
	maxDepth   int
	now        func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a WorkflowEngine or an Executor.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes engine events on bus instead of a private bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *settings) {
		s.eventBus = bus
	}
}

// WithConcurrentBranches evaluates sibling branches in parallel. Results are
// merged in declaration order either way.
func WithConcurrentBranches(enabled bool) Option {
	return func(s *settings) {
		s.concurrent = enabled
	}
}

// WithMaxDepth sets the recursion guard. Values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(s *settings) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithClock sets the time source used to compute timer due times.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
