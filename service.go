package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bennyboer/eventsourcing/core"
	"github.com/bennyboer/eventsourcing/snapshot"
)

const tracerName = "github.com/bennyboer/eventsourcing"

// ErrEmptyID when a command addresses an aggregate without id
var ErrEmptyID = errors.New("aggregate id is empty")

// Service runs commands against and recovers the state of one aggregate type. It holds
// no aggregate state between calls, every operation recovers from the event store.
type Service[A Aggregate] struct {
	store         core.EventStore
	newAggregate  func() A
	aggregateType string
	register      *register
	codec         *snapshot.Codec
	snapshotEvery uint64
	concurrency   int
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewService returns the service of the aggregate type produced by newAggregate, which
// must return a blank pointer to the aggregate struct.
func NewService[A Aggregate](store core.EventStore, newAggregate func() A, opts ...Option) (*Service[A], error) {
	o := options{
		snapshotEvery: DefaultSnapshotEvery,
		concurrency:   DefaultRecoveryConcurrency,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	blank := newAggregate()
	if reflect.ValueOf(blank).Kind() != reflect.Ptr {
		return nil, ErrAggregateNeedsToBeAPointer
	}
	typ := o.aggregateType
	if typ == "" {
		typ = aggregateType(blank)
	}
	if typ == "" {
		return nil, ErrAggregateNameMissing
	}
	reg := newRegister()
	if err := reg.Register(blank); err != nil {
		return nil, err
	}

	return &Service[A]{
		store:         store,
		newAggregate:  newAggregate,
		aggregateType: typ,
		register:      reg,
		codec:         snapshot.NewCodec(),
		snapshotEvery: o.snapshotEvery,
		concurrency:   o.concurrency,
		logger:        o.logger.With(zap.String("aggregate_type", typ)),
		tracer:        o.tracer,
		now:           o.now,
	}, nil
}

// AggregateType is the type name of the streams the service works on
func (s *Service[A]) AggregateType() string {
	return s.aggregateType
}

// Create runs a command against the blank aggregate and stores the resulting events as
// the start of the stream. A stream that already exists makes it fail with a
// VersionConflictError.
func (s *Service[A]) Create(ctx context.Context, id string, cmd interface{}, agent Agent) (Version, error) {
	ctx, span := s.startSpan(ctx, "Service.Create", id)
	defer span.End()

	if id == "" {
		return 0, recordError(span, ErrEmptyID)
	}
	a := s.blank(id)
	a.Root().agent = agent
	if err := a.Handle(cmd, agent); err != nil {
		return 0, recordError(span, err)
	}
	if !a.Root().UnsavedEvents() {
		return 0, recordError(span, ErrNoChanges)
	}
	v, err := s.commit(ctx, a)
	if err != nil {
		return 0, recordError(span, err)
	}
	s.logger.Info("aggregate created", zap.String("aggregate_id", id), zap.Uint64("version", uint64(v)))
	return v, nil
}

// Update runs a command against the latest state of the aggregate, provided its version
// is the expected one, and returns the new version. A command that produces no events
// leaves the version as is.
func (s *Service[A]) Update(ctx context.Context, id string, expected Version, cmd interface{}, agent Agent) (Version, error) {
	ctx, span := s.startSpan(ctx, "Service.Update", id)
	defer span.End()
	span.SetAttributes(attribute.Int64("aggregate.expected_version", int64(expected)))

	a, err := s.recover(ctx, id, core.MaxVersion)
	if err != nil {
		return 0, recordError(span, err)
	}
	root := a.Root()
	if !root.Exists() {
		return 0, recordError(span, s.notFound(id))
	}
	if root.Version() != expected {
		s.logger.Warn("expected version mismatch", zap.String("aggregate_id", id),
			zap.Uint64("expected", uint64(expected)), zap.Uint64("version", uint64(root.Version())))
		return 0, recordError(span, &VersionConflictError{AggregateType: s.aggregateType, AggregateID: id, Version: root.Version()})
	}

	root.agent = agent
	if err := a.Handle(cmd, agent); err != nil {
		return 0, recordError(span, err)
	}
	if !root.UnsavedEvents() {
		return root.Version(), nil
	}
	v, err := s.commit(ctx, a)
	if err != nil {
		return 0, recordError(span, err)
	}
	return v, nil
}

// Get returns the latest state of the aggregate
func (s *Service[A]) Get(ctx context.Context, id string) (A, error) {
	ctx, span := s.startSpan(ctx, "Service.Get", id)
	defer span.End()

	a, err := s.recover(ctx, id, core.MaxVersion)
	if err != nil {
		var zero A
		return zero, recordError(span, err)
	}
	if !a.Root().Exists() {
		var zero A
		return zero, recordError(span, s.notFound(id))
	}
	return a, nil
}

// GetVersion returns the state of the aggregate as of exactly version v. It fails with
// a NotFoundError if the stream does not reach v.
func (s *Service[A]) GetVersion(ctx context.Context, id string, v Version) (A, error) {
	ctx, span := s.startSpan(ctx, "Service.GetVersion", id)
	defer span.End()
	span.SetAttributes(attribute.Int64("aggregate.version", int64(v)))

	var zero A
	a, err := s.recover(ctx, id, v)
	if err != nil {
		return zero, recordError(span, err)
	}
	if !a.Root().Exists() || a.Root().Version() != v {
		return zero, recordError(span, s.notFound(id))
	}
	return a, nil
}

// GetMany recovers several aggregates in parallel. The result has the order of ids.
func (s *Service[A]) GetMany(ctx context.Context, ids ...string) ([]A, error) {
	result := make([]A, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			a, err := s.Get(gctx, id)
			if err != nil {
				return err
			}
			result[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// History returns the domain events of the stream in order, snapshots left out. Events
// of types the aggregate no longer registers have no Data. A stream that holds snapshots
// but no events has an empty history.
func (s *Service[A]) History(ctx context.Context, id string) ([]Event, error) {
	ctx, span := s.startSpan(ctx, "Service.History", id)
	defer span.End()

	iter, err := s.store.Get(ctx, id, s.aggregateType, core.Zero())
	if err != nil {
		return nil, recordError(span, err)
	}
	defer iter.Close()

	var events []Event
	for iter.Next() {
		record, err := iter.Value()
		if err != nil {
			return nil, recordError(span, err)
		}
		if record.Snapshot {
			continue
		}
		data, err := s.register.decode(record.Reason, record.Data)
		if err != nil && !errors.Is(err, ErrEventNotRegistered) {
			return nil, recordError(span, fmt.Errorf("could not decode %s event at version %d: %w", record.Reason, record.Version, err))
		}
		events = append(events, NewEvent(record, data))
	}
	if err := iter.Err(); err != nil {
		return nil, recordError(span, fmt.Errorf("could not read %s %s: %w", s.aggregateType, id, err))
	}
	if len(events) == 0 {
		_, err := s.store.LatestSnapshot(ctx, id, s.aggregateType, core.MaxVersion)
		switch {
		case err == nil:
			return []Event{}, nil
		case errors.Is(err, core.ErrSnapshotNotFound):
			return nil, recordError(span, s.notFound(id))
		default:
			return nil, recordError(span, err)
		}
	}
	return events, nil
}

// blank returns a fresh aggregate bound to the stream of id
func (s *Service[A]) blank(id string) A {
	a := s.newAggregate()
	root := a.Root()
	root.setInternals(id, s.aggregateType, core.Zero(), false)
	root.now = s.now
	return a
}

// recover builds the state of the aggregate at version upTo, or the latest one below it,
// from the newest snapshot at or below upTo and the events following it. The returned
// aggregate does not exist when the stream holds nothing up to upTo.
func (s *Service[A]) recover(ctx context.Context, id string, upTo Version) (A, error) {
	a := s.blank(id)
	if err := ctx.Err(); err != nil {
		return a, err
	}
	root := a.Root()

	from := core.Zero()
	snap, err := s.store.LatestSnapshot(ctx, id, s.aggregateType, upTo)
	switch {
	case err == nil:
		if err := s.codec.Unmarshal(snap.Data, a); err != nil {
			return a, fmt.Errorf("could not decode snapshot of %s %s at version %d: %w", s.aggregateType, id, snap.Version, err)
		}
		root.setInternals(id, s.aggregateType, snap.Version, true)
		if snap.Version == upTo {
			s.logger.Debug("recovered from snapshot", zap.String("aggregate_id", id), zap.Uint64("version", uint64(snap.Version)))
			return a, nil
		}
		from = snap.Version.Next()
	case errors.Is(err, core.ErrSnapshotNotFound):
	default:
		return a, err
	}

	iter, err := s.store.Get(ctx, id, s.aggregateType, from)
	if err != nil {
		return a, err
	}
	defer iter.Close()

	applied := 0
	for iter.Next() {
		select {
		case <-ctx.Done():
			return a, ctx.Err()
		default:
		}
		record, err := iter.Value()
		if err != nil {
			return a, err
		}
		if record.Snapshot {
			continue
		}
		if record.Version > upTo {
			break
		}
		data, err := s.register.decode(record.Reason, record.Data)
		switch {
		case errors.Is(err, ErrEventNotRegistered):
			s.logger.Warn("skipping unregistered event", zap.String("aggregate_id", id),
				zap.String("reason", record.Reason), zap.Uint64("version", uint64(record.Version)))
		case err != nil:
			return a, fmt.Errorf("could not decode %s event at version %d: %w", record.Reason, record.Version, err)
		default:
			a.Transition(NewEvent(record, data))
		}
		root.setInternals(id, s.aggregateType, record.Version, true)
		applied++
	}
	if err := iter.Err(); err != nil {
		return a, fmt.Errorf("could not read %s %s: %w", s.aggregateType, id, err)
	}
	if root.Exists() {
		s.logger.Debug("recovered aggregate", zap.String("aggregate_id", id),
			zap.Uint64("version", uint64(root.Version())), zap.Int("replayed", applied))
	}
	return a, nil
}

// commit stores the tracked events of a together with the snapshots they trigger in one
// atomic batch
func (s *Service[A]) commit(ctx context.Context, a A) (Version, error) {
	root := a.Root()
	pending := root.aggregateEvents
	records := make([]core.Event, 0, len(pending)+1)
	for i, event := range pending {
		if !s.register.EventRegistered(event.Reason()) {
			return 0, fmt.Errorf("%w: %s", ErrEventNotRegistered, event.Reason())
		}
		data, err := json.Marshal(event.Data())
		if err != nil {
			return 0, fmt.Errorf("could not encode %s event: %w", event.Reason(), err)
		}
		record := event.event
		record.Data = data
		records = append(records, record)

		if !s.snapshotDue(record.Version) {
			continue
		}
		state := a
		if i < len(pending)-1 {
			// the snapshot is taken in the middle of the command's events
			state, err = s.stateAt(ctx, root.aggregateID, pending[:i+1])
			if err != nil {
				return 0, err
			}
		}
		snap, err := s.snapshotRecord(state, record)
		if err != nil {
			return 0, err
		}
		records = append(records, snap)
		s.logger.Debug("snapshot taken", zap.String("aggregate_id", record.AggregateID), zap.Uint64("version", uint64(record.Version)))
	}

	if err := s.store.Save(ctx, records); err != nil {
		if errors.Is(err, core.ErrConcurrency) {
			return 0, s.conflict(ctx, root.aggregateID, pending[0].Version())
		}
		return 0, fmt.Errorf("error from event store: %w", err)
	}
	root.update()
	return root.Version(), nil
}

// snapshotDue tells if the event at version v completes a multiple of the snapshot
// threshold
func (s *Service[A]) snapshotDue(v Version) bool {
	return s.snapshotEvery > 0 && v.Count()%s.snapshotEvery == 0
}

// stateAt rebuilds the state right after the given tracked events, which continue the
// stored stream
func (s *Service[A]) stateAt(ctx context.Context, id string, events []Event) (A, error) {
	first := events[0].Version()
	b := s.blank(id)
	if first != core.Zero() {
		var err error
		b, err = s.recover(ctx, id, first-1)
		if err != nil {
			return b, err
		}
	}
	for _, e := range events {
		b.Transition(e)
	}
	b.Root().setInternals(id, s.aggregateType, events[len(events)-1].Version(), true)
	return b, nil
}

func (s *Service[A]) snapshotRecord(state A, after core.Event) (core.Event, error) {
	data, err := s.codec.Marshal(state)
	if err != nil {
		return core.Event{}, fmt.Errorf("could not encode snapshot of %s %s: %w", after.AggregateType, after.AggregateID, err)
	}
	return core.Event{
		AggregateID:   after.AggregateID,
		AggregateType: after.AggregateType,
		Version:       after.Version,
		AgentType:     after.AgentType,
		AgentID:       after.AgentID,
		Timestamp:     after.Timestamp,
		Snapshot:      true,
		Reason:        core.SnapshotReason,
		Data:          data,
	}, nil
}

// conflict builds the error of a lost append race, carrying the version the store holds
// now
func (s *Service[A]) conflict(ctx context.Context, id string, attempted Version) error {
	current, err := s.store.LatestVersion(ctx, id, s.aggregateType)
	if err != nil {
		current = attempted
	}
	s.logger.Warn("version conflict", zap.String("aggregate_id", id),
		zap.Uint64("attempted", uint64(attempted)), zap.Uint64("version", uint64(current)))
	return &VersionConflictError{AggregateType: s.aggregateType, AggregateID: id, Version: current}
}

func (s *Service[A]) notFound(id string) error {
	return &NotFoundError{AggregateType: s.aggregateType, AggregateID: id}
}

func (s *Service[A]) startSpan(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("aggregate.type", s.aggregateType),
		attribute.String("aggregate.id", id),
	))
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}
