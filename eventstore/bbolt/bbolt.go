package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bennyboer/eventsourcing/core"
	"go.etcd.io/bbolt"
)

const (
	eventsBucketName    = "events"
	snapshotsBucketName = "snapshots"
)

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// snapshotKey orders snapshots on version and, within a version, on insertion
func snapshotKey(version core.Version, sequence uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b, uint64(version))
	binary.BigEndian.PutUint64(b[8:], sequence)
	return b
}

// BBolt is a handler for event streaming
type BBolt struct {
	db *bbolt.DB // The bbolt db where we store everything
}

type boltEvent struct {
	AggregateID   string
	AggregateType string
	Version       uint64
	AgentType     string
	AgentID       string
	Reason        string
	Snapshot      bool
	Timestamp     time.Time
	Data          []byte
}

// New opens the event stream found in the given file. If the file is not found it will be
// created.
func New(dbFile string) (*BBolt, error) {
	db, err := bbolt.Open(dbFile, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &BBolt{db: db}, nil
}

// MustOpenBBolt opens the event stream found in the given file. Will panic if it has
// problems persisting the changes to the filesystem.
func MustOpenBBolt(dbFile string) *BBolt {
	es, err := New(dbFile)
	if err != nil {
		panic(err)
	}
	return es
}

// Save an aggregate (its events)
func (e *BBolt) Save(ctx context.Context, events []core.Event) error {
	// Return if there is no events to save
	if len(events) == 0 {
		return nil
	}
	if err := core.ValidateEvents(events); err != nil {
		return err
	}

	// get bucket name from first event
	bucketName := aggregateKey(events[0].AggregateType, events[0].AggregateID)

	return e.db.Update(func(tx *bbolt.Tx) error {
		streamBucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("could not create bucket for %s: %w", bucketName, err)
		}
		evBucket, err := streamBucket.CreateBucketIfNotExists([]byte(eventsBucketName))
		if err != nil {
			return fmt.Errorf("could not create events bucket for %s: %w", bucketName, err)
		}
		snapBucket, err := streamBucket.CreateBucketIfNotExists([]byte(snapshotsBucketName))
		if err != nil {
			return fmt.Errorf("could not create snapshots bucket for %s: %w", bucketName, err)
		}

		for _, event := range events {
			bEvent := boltEvent{
				AggregateID:   event.AggregateID,
				AggregateType: event.AggregateType,
				Version:       uint64(event.Version),
				AgentType:     event.AgentType,
				AgentID:       event.AgentID,
				Reason:        event.Reason,
				Snapshot:      event.Snapshot,
				Timestamp:     event.Timestamp,
				Data:          event.Data,
			}
			value, err := json.Marshal(bEvent)
			if err != nil {
				return fmt.Errorf("could not serialize event, %w", err)
			}

			if event.Snapshot {
				sequence, err := snapBucket.NextSequence()
				if err != nil {
					return fmt.Errorf("could not get sequence for %#v", bucketName)
				}
				if err := snapBucket.Put(snapshotKey(event.Version, sequence), value); err != nil {
					return fmt.Errorf("could not save snapshot in bucket %s: %w", bucketName, err)
				}
				continue
			}

			// the write transaction is exclusive, checking the key and putting it is atomic
			key := itob(uint64(event.Version))
			if evBucket.Get(key) != nil {
				return core.ErrConcurrency
			}
			if err := evBucket.Put(key, value); err != nil {
				return fmt.Errorf("could not save event in bucket %s: %w", bucketName, err)
			}
		}
		return nil
	})
}

// Get aggregate events
func (e *BBolt) Get(ctx context.Context, id string, aggregateType string, from core.Version) (core.Iterator, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	streamBucket := tx.Bucket([]byte(aggregateKey(aggregateType, id)))
	if streamBucket == nil {
		tx.Rollback()
		return core.NopIterator{}, nil
	}
	i := iterator{
		tx:        tx,
		events:    cursorOf(streamBucket, eventsBucketName),
		snapshots: cursorOf(streamBucket, snapshotsBucketName),
		from:      from,
	}
	return &i, nil
}

// LatestSnapshot returns the newest snapshot at or below upTo
func (e *BBolt) LatestSnapshot(ctx context.Context, id string, aggregateType string, upTo core.Version) (core.Event, error) {
	var event core.Event
	err := e.db.View(func(tx *bbolt.Tx) error {
		streamBucket := tx.Bucket([]byte(aggregateKey(aggregateType, id)))
		if streamBucket == nil {
			return core.ErrSnapshotNotFound
		}
		cursor := cursorOf(streamBucket, snapshotsBucketName)
		if cursor == nil {
			return core.ErrSnapshotNotFound
		}
		var k, obj []byte
		if upTo == core.MaxVersion {
			k, obj = cursor.Last()
		} else {
			k, _ = cursor.Seek(itob(uint64(upTo.Next())))
			if k == nil {
				k, obj = cursor.Last()
			} else {
				k, obj = cursor.Prev()
			}
		}
		if k == nil {
			return core.ErrSnapshotNotFound
		}
		var err error
		event, err = decode(obj)
		return err
	})
	return event, err
}

// LatestVersion returns the version of the last domain event
func (e *BBolt) LatestVersion(ctx context.Context, id string, aggregateType string) (core.Version, error) {
	var version core.Version
	err := e.db.View(func(tx *bbolt.Tx) error {
		streamBucket := tx.Bucket([]byte(aggregateKey(aggregateType, id)))
		if streamBucket == nil {
			return core.ErrNoEvents
		}
		cursor := cursorOf(streamBucket, eventsBucketName)
		if cursor == nil {
			return core.ErrNoEvents
		}
		k, _ := cursor.Last()
		if k == nil {
			return core.ErrNoEvents
		}
		version = core.Version(binary.BigEndian.Uint64(k))
		return nil
	})
	return version, err
}

// Close closes the event stream and the underlying database
func (e *BBolt) Close() error {
	return e.db.Close()
}

func cursorOf(streamBucket *bbolt.Bucket, name string) *bbolt.Cursor {
	bucket := streamBucket.Bucket([]byte(name))
	if bucket == nil {
		return nil
	}
	return bucket.Cursor()
}

func decode(obj []byte) (core.Event, error) {
	bEvent := boltEvent{}
	err := json.Unmarshal(obj, &bEvent)
	if err != nil {
		return core.Event{}, errors.New(fmt.Sprintf("could not deserialize event, %v", err))
	}
	return core.Event{
		AggregateID:   bEvent.AggregateID,
		AggregateType: bEvent.AggregateType,
		Version:       core.Version(bEvent.Version),
		AgentType:     bEvent.AgentType,
		AgentID:       bEvent.AgentID,
		Timestamp:     bEvent.Timestamp,
		Snapshot:      bEvent.Snapshot,
		Reason:        bEvent.Reason,
		Data:          bEvent.Data,
	}, nil
}

// aggregateKey generate a aggregate key to store events against from aggregateType and aggregateID.
// The length prefix keeps ("a_b", "c") and ("a", "b_c") apart.
func aggregateKey(aggregateType, aggregateID string) string {
	return fmt.Sprintf("%d:%s_%s", len(aggregateType), aggregateType, aggregateID)
}
