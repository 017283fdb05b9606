package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bennyboer/eventsourcing/core"
)

// appendScript checks every domain event version of the batch against the versions hash
// and only then writes the batch. Redis runs scripts atomically.
//
// KEYS: versions hash, records zset, snapshots zset, sequence counter, head version
// ARGV: repeated (version, kind, payload) with kind "0" for events and "1" for snapshots
var appendScript = redis.NewScript(`
for i = 1, #ARGV, 3 do
	if ARGV[i+1] == "0" and redis.call("HEXISTS", KEYS[1], ARGV[i]) == 1 then
		return 0
	end
end
for i = 1, #ARGV, 3 do
	local seq = redis.call("INCR", KEYS[4])
	local member = ARGV[i+1] .. string.format("%020d", seq) .. "|" .. ARGV[i+2]
	redis.call("ZADD", KEYS[2], ARGV[i], member)
	if ARGV[i+1] == "0" then
		redis.call("HSET", KEYS[1], ARGV[i], "1")
		local head = redis.call("GET", KEYS[5])
		if not head or tonumber(head) < tonumber(ARGV[i]) then
			redis.call("SET", KEYS[5], ARGV[i])
		end
	else
		redis.call("ZADD", KEYS[3], ARGV[i], member)
	end
end
return 1
`)

const pageSize = 256

// Redis event store
type Redis struct {
	client redis.UniversalClient
	prefix string
}

type redisEvent struct {
	AggregateID   string    `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Version       uint64    `json:"version"`
	AgentType     string    `json:"agentType"`
	AgentID       string    `json:"agentId"`
	Reason        string    `json:"reason"`
	Snapshot      bool      `json:"snapshot"`
	Timestamp     time.Time `json:"timestamp"`
	Data          []byte    `json:"data"`
}

// New returns a store writing below the key prefix
func New(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Close the client
func (r *Redis) Close() error {
	return r.client.Close()
}

// Save appends the events atomically
func (r *Redis) Save(ctx context.Context, events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := core.ValidateEvents(events); err != nil {
		return err
	}

	args := make([]interface{}, 0, len(events)*3)
	for _, event := range events {
		payload, err := json.Marshal(redisEvent{
			AggregateID:   event.AggregateID,
			AggregateType: event.AggregateType,
			Version:       uint64(event.Version),
			AgentType:     event.AgentType,
			AgentID:       event.AgentID,
			Reason:        event.Reason,
			Snapshot:      event.Snapshot,
			Timestamp:     event.Timestamp,
			Data:          event.Data,
		})
		if err != nil {
			return fmt.Errorf("could not serialize event, %w", err)
		}
		kind := "0"
		if event.Snapshot {
			kind = "1"
		}
		args = append(args, strconv.FormatUint(uint64(event.Version), 10), kind, payload)
	}

	k := r.keys(events[0].AggregateType, events[0].AggregateID)
	res, err := appendScript.Run(ctx, r.client, []string{k.versions, k.records, k.snapshots, k.sequence, k.head}, args...).Int()
	if err != nil {
		return fmt.Errorf("could not append events: %w", err)
	}
	if res == 0 {
		return core.ErrConcurrency
	}
	return nil
}

// Get returns the records of a stream from version on, page by page
func (r *Redis) Get(ctx context.Context, id string, aggregateType string, from core.Version) (core.Iterator, error) {
	return &iterator{
		ctx:    ctx,
		client: r.client,
		key:    r.keys(aggregateType, id).records,
		min:    strconv.FormatUint(uint64(from), 10),
	}, nil
}

// LatestSnapshot returns the newest snapshot at or below upTo
func (r *Redis) LatestSnapshot(ctx context.Context, id string, aggregateType string, upTo core.Version) (core.Event, error) {
	max := "+inf"
	if upTo != core.MaxVersion {
		max = strconv.FormatUint(uint64(upTo), 10)
	}
	members, err := r.client.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:     r.keys(aggregateType, id).snapshots,
		Start:   "-inf",
		Stop:    max,
		ByScore: true,
		Rev:     true,
		Count:   1,
	}).Result()
	if err != nil {
		return core.Event{}, fmt.Errorf("could not query snapshot: %w", err)
	}
	if len(members) == 0 {
		return core.Event{}, core.ErrSnapshotNotFound
	}
	return decode(members[0])
}

// LatestVersion returns the version of the last domain event
func (r *Redis) LatestVersion(ctx context.Context, id string, aggregateType string) (core.Version, error) {
	head, err := r.client.Get(ctx, r.keys(aggregateType, id).head).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, core.ErrNoEvents
	}
	if err != nil {
		return 0, fmt.Errorf("could not query latest version: %w", err)
	}
	return core.Version(head), nil
}

type streamKeys struct {
	versions, records, snapshots, sequence, head string
}

// keys share a hash tag so a cluster keeps a stream on one slot
func (r *Redis) keys(aggregateType, id string) streamKeys {
	base := fmt.Sprintf("%s{%d:%s:%s}", r.prefix, len(aggregateType), aggregateType, id)
	return streamKeys{
		versions:  base + ":versions",
		records:   base + ":records",
		snapshots: base + ":snapshots",
		sequence:  base + ":seq",
		head:      base + ":head",
	}
}

func decode(member string) (core.Event, error) {
	i := strings.IndexByte(member, '|')
	if i < 0 {
		return core.Event{}, fmt.Errorf("malformed record %q", member)
	}
	rEvent := redisEvent{}
	if err := json.Unmarshal([]byte(member[i+1:]), &rEvent); err != nil {
		return core.Event{}, fmt.Errorf("could not deserialize event, %w", err)
	}
	return core.Event{
		AggregateID:   rEvent.AggregateID,
		AggregateType: rEvent.AggregateType,
		Version:       core.Version(rEvent.Version),
		AgentType:     rEvent.AgentType,
		AgentID:       rEvent.AgentID,
		Timestamp:     rEvent.Timestamp,
		Snapshot:      rEvent.Snapshot,
		Reason:        rEvent.Reason,
		Data:          rEvent.Data,
	}, nil
}
