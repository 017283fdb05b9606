package core

import "math"

// Version is the position of a domain event in its aggregate stream. The first event of
// a stream has version zero and every following event increments it by one.
type Version uint64

// MaxVersion addresses the latest state of a stream when used as an upper bound.
const MaxVersion = Version(math.MaxUint64)

// Zero returns the version of the first event in a stream.
func Zero() Version {
	return 0
}

// Next returns the version following v.
func (v Version) Next() Version {
	return v + 1
}

// Less reports whether v is ordered before o.
func (v Version) Less(o Version) bool {
	return v < o
}

// Compare returns -1, 0 or +1 depending on whether v is less than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	}
	return 0
}

// Count is the number of domain events in a stream whose current version is v.
func (v Version) Count() uint64 {
	return uint64(v) + 1
}
