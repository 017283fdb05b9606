package core

// NopIterator returns no data
type NopIterator struct{}

func (ni NopIterator) Next() bool {
	return false
}

func (ni NopIterator) Value() (Event, error) {
	return Event{}, nil
}

func (ni NopIterator) Err() error {
	return nil
}

func (ni NopIterator) Close() {}

// SliceIterator iterates over records already loaded into memory
type SliceIterator struct {
	events []Event
	pos    int
}

// NewSliceIterator returns an iterator over events
func NewSliceIterator(events []Event) *SliceIterator {
	return &SliceIterator{events: events, pos: -1}
}

func (si *SliceIterator) Next() bool {
	if si.pos+1 >= len(si.events) {
		return false
	}
	si.pos++
	return true
}

func (si *SliceIterator) Value() (Event, error) {
	return si.events[si.pos], nil
}

func (si *SliceIterator) Err() error {
	return nil
}

func (si *SliceIterator) Close() {}
