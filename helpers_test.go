package eventsourcing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bennyboer/eventsourcing"
	"github.com/bennyboer/eventsourcing/core"
)

// withoutSnapshotReads hides all snapshots so every recovery replays the full stream
type withoutSnapshotReads struct {
	core.EventStore
}

func (s withoutSnapshotReads) LatestSnapshot(ctx context.Context, id, aggregateType string, upTo core.Version) (core.Event, error) {
	return core.Event{}, core.ErrSnapshotNotFound
}

// staleReads serves the stream as it was at version upTo, like a reader that lost the
// race against another writer
type staleReads struct {
	core.EventStore
	upTo core.Version
}

func (s staleReads) LatestSnapshot(ctx context.Context, id, aggregateType string, upTo core.Version) (core.Event, error) {
	return core.Event{}, core.ErrSnapshotNotFound
}

func (s staleReads) Get(ctx context.Context, id, aggregateType string, from core.Version) (core.Iterator, error) {
	iter, err := s.EventStore.Get(ctx, id, aggregateType, from)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var events []core.Event
	for iter.Next() {
		event, err := iter.Value()
		if err != nil {
			return nil, err
		}
		if event.Version <= s.upTo {
			events = append(events, event)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return core.NewSliceIterator(events), nil
}

var errBrokenRead = errors.New("connection reset while reading")

// brokenReads fails every read after the first records of a stream
type brokenReads struct {
	core.EventStore
	after int
}

func (s brokenReads) LatestSnapshot(ctx context.Context, id, aggregateType string, upTo core.Version) (core.Event, error) {
	return core.Event{}, core.ErrSnapshotNotFound
}

func (s brokenReads) Get(ctx context.Context, id, aggregateType string, from core.Version) (core.Iterator, error) {
	iter, err := s.EventStore.Get(ctx, id, aggregateType, from)
	if err != nil {
		return nil, err
	}
	return &brokenIterator{Iterator: iter, left: s.after}, nil
}

type brokenIterator struct {
	core.Iterator
	left int
	err  error
}

func (i *brokenIterator) Next() bool {
	if i.left == 0 {
		i.err = errBrokenRead
		return false
	}
	i.left--
	return i.Iterator.Next()
}

func (i *brokenIterator) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.Iterator.Err()
}

func newPersonService(t *testing.T, store core.EventStore, opts ...eventsourcing.Option) *eventsourcing.Service[*Person] {
	t.Helper()
	s, err := eventsourcing.NewService(store, NewPerson, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// records splits the stored stream into domain events and snapshots
func records(t *testing.T, store core.EventStore, aggregateType, id string) (events, snapshots []core.Event) {
	t.Helper()
	iter, err := store.Get(context.Background(), id, aggregateType, core.Zero())
	if err != nil {
		t.Fatal(err)
	}
	defer iter.Close()
	for iter.Next() {
		event, err := iter.Value()
		if err != nil {
			t.Fatal(err)
		}
		if event.Snapshot {
			snapshots = append(snapshots, event)
		} else {
			events = append(events, event)
		}
	}
	if err := iter.Err(); err != nil {
		t.Fatal(err)
	}
	return events, snapshots
}

func createPerson(t *testing.T, s *eventsourcing.Service[*Person], id, name string) {
	t.Helper()
	if _, err := s.Create(context.Background(), id, CreatePerson{Name: name}, eventsourcing.System("test")); err != nil {
		t.Fatal(err)
	}
}
