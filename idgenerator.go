package eventsourcing

import "github.com/gofrs/uuid"

// NewID returns a random (version 4) uuid
func NewID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// the system random source is broken
		panic(err)
	}
	return id.String()
}
