package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/bennyboer/eventsourcing/core"
)

// iterator loads the records sorted set one page at a time
type iterator struct {
	ctx    context.Context
	client redis.UniversalClient
	key    string
	min    string

	offset int64
	page   []string
	pos    int
	done   bool
	err    error
}

// Next return true if there are more data
func (i *iterator) Next() bool {
	if i.pos+1 < len(i.page) {
		i.pos++
		return true
	}
	if i.done {
		return false
	}
	page, err := i.client.ZRangeArgs(i.ctx, redis.ZRangeArgs{
		Key:     i.key,
		Start:   i.min,
		Stop:    "+inf",
		ByScore: true,
		Offset:  i.offset,
		Count:   pageSize,
	}).Result()
	if err != nil {
		i.err = err
		i.done = true
		i.page = nil
		return false
	}
	i.offset += int64(len(page))
	if len(page) < pageSize {
		i.done = true
	}
	if len(page) == 0 {
		return false
	}
	i.page = page
	i.pos = 0
	return true
}

// Value return the current event
func (i *iterator) Value() (core.Event, error) {
	return decode(i.page[i.pos])
}

// Err returns the error of a failed page load
func (i *iterator) Err() error {
	return i.err
}

// Close does nothing, pages hold no server side resources
func (i *iterator) Close() {}
