package eventsourcing

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bennyboer/eventsourcing/config"
)

// DefaultSnapshotEvery is the number of events between two automatic snapshots
const DefaultSnapshotEvery = 100

// DefaultRecoveryConcurrency bounds the parallel recoveries of GetMany
const DefaultRecoveryConcurrency = 8

type options struct {
	snapshotEvery uint64
	concurrency   int
	aggregateType string
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// Option configures a Service
type Option func(*options)

// WithSnapshotEvery stores a snapshot each time the number of events in a stream
// reaches a multiple of n. Zero turns snapshots off.
func WithSnapshotEvery(n uint64) Option {
	return func(o *options) {
		o.snapshotEvery = n
	}
}

// WithoutSnapshots turns automatic snapshots off. Existing snapshots are still used
// when recovering.
func WithoutSnapshots() Option {
	return WithSnapshotEvery(0)
}

// WithRecoveryConcurrency bounds the number of parallel recoveries in GetMany
func WithRecoveryConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithAggregateType overrides the stream type name, which defaults to the name of the
// aggregate struct
func WithAggregateType(name string) Option {
	return func(o *options) {
		o.aggregateType = name
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock sets the source of event timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// FromConfig applies the snapshot and recovery settings of cfg
func FromConfig(cfg config.Config) Option {
	return func(o *options) {
		o.snapshotEvery = cfg.SnapshotEvery
		if !cfg.SnapshotsEnabled {
			o.snapshotEvery = 0
		}
		if cfg.RecoveryConcurrency > 0 {
			o.concurrency = cfg.RecoveryConcurrency
		}
	}
}
