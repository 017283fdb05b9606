package bbolt

import (
	"encoding/binary"

	"github.com/bennyboer/eventsourcing/core"
	"go.etcd.io/bbolt"
)

// iterator merges the events and snapshots buckets of a stream in version order
type iterator struct {
	tx        *bbolt.Tx
	events    *bbolt.Cursor
	snapshots *bbolt.Cursor
	from      core.Version
	started   bool

	eventKey, eventObj []byte
	snapKey, snapObj   []byte
	current            []byte
}

// Close closes the iterator
func (i *iterator) Close() {
	i.tx.Rollback()
}

// Err is always nil, the read transaction holds a consistent view
func (i *iterator) Err() error {
	return nil
}

// Next moves to the next record
func (i *iterator) Next() bool {
	if !i.started {
		i.started = true
		if i.events != nil {
			i.eventKey, i.eventObj = i.events.Seek(itob(uint64(i.from)))
		}
		if i.snapshots != nil {
			i.snapKey, i.snapObj = i.snapshots.Seek(itob(uint64(i.from)))
		}
	}
	switch {
	case i.eventKey == nil && i.snapKey == nil:
		return false
	case i.snapKey == nil || (i.eventKey != nil && versionOf(i.eventKey) <= versionOf(i.snapKey)):
		i.current = i.eventObj
		i.eventKey, i.eventObj = i.events.Next()
	default:
		i.current = i.snapObj
		i.snapKey, i.snapObj = i.snapshots.Next()
	}
	return true
}

// Value return the current record
func (i *iterator) Value() (core.Event, error) {
	return decode(i.current)
}

func versionOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[:8])
}
