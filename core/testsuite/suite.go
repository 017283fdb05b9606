package testsuite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bennyboer/eventsourcing/core"
)

var seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
var randLock sync.Mutex

func AggregateID() string {
	randLock.Lock()
	defer randLock.Unlock()
	r := seededRand.Int63n(999999999999)
	return fmt.Sprintf("%d", r)
}

type eventstoreFunc = func() (core.EventStore, func(), error)

// Status represents the Red, Silver or Gold tier level of a FrequentFlierAccount
type Status int

const (
	StatusRed    Status = iota
	StatusSilver Status = iota
	StatusGold   Status = iota
)

type FrequentFlierAccountCreated struct {
	AccountId         string
	OpeningMiles      int
	OpeningTierPoints int
}

type StatusMatched struct {
	NewStatus Status
}

type FlightTaken struct {
	MilesAdded      int
	TierPointsAdded int
}

var aggregateType = "FrequentFlierAccount"
var timestamp = time.Now().UTC().Truncate(time.Millisecond)

func eventToByte(i interface{}) []byte {
	b, _ := json.Marshal(i)
	return b
}

func testEvents(aggregateID string) []core.Event {
	history := []core.Event{
		{AggregateID: aggregateID, Version: 0, AggregateType: aggregateType, AgentType: "USER", AgentID: "42", Timestamp: timestamp, Reason: "FrequentFlierAccountCreated", Data: eventToByte(&FrequentFlierAccountCreated{AccountId: "1234567", OpeningMiles: 10000, OpeningTierPoints: 0})},
		{AggregateID: aggregateID, Version: 1, AggregateType: aggregateType, AgentType: "USER", AgentID: "42", Timestamp: timestamp, Reason: "StatusMatched", Data: eventToByte(&StatusMatched{NewStatus: StatusSilver})},
		{AggregateID: aggregateID, Version: 2, AggregateType: aggregateType, AgentType: "SYSTEM", Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 2525, TierPointsAdded: 5})},
		{AggregateID: aggregateID, Version: 3, AggregateType: aggregateType, AgentType: "SYSTEM", Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 2512, TierPointsAdded: 5})},
		{AggregateID: aggregateID, Version: 4, AggregateType: aggregateType, AgentType: "SYSTEM", Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 5600, TierPointsAdded: 5})},
		{AggregateID: aggregateID, Version: 5, AggregateType: aggregateType, AgentType: "SYSTEM", Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 3000, TierPointsAdded: 3})},
	}
	return history
}

func testEventsPartTwo(aggregateID string) []core.Event {
	history := []core.Event{
		{AggregateID: aggregateID, Version: 6, AggregateType: aggregateType, Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 5600, TierPointsAdded: 5})},
		{AggregateID: aggregateID, Version: 7, AggregateType: aggregateType, Timestamp: timestamp, Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: 3000, TierPointsAdded: 3})},
	}
	return history
}

func testSnapshot(aggregateID string, version core.Version, miles int) core.Event {
	return core.Event{AggregateID: aggregateID, Version: version, AggregateType: aggregateType, AgentType: "SYSTEM", Timestamp: timestamp, Reason: core.SnapshotReason, Snapshot: true, Data: eventToByte(map[string]interface{}{"Miles": miles})}
}

// Test runs the conformance suite every event store must pass.
func Test(t *testing.T, esFunc eventstoreFunc) {
	tests := []struct {
		title string
		run   func(es core.EventStore) error
	}{
		{"should save and get events", saveAndGetEvents},
		{"should get events from version", getEventsFromVersion},
		{"should not save event at an existing version", saveEventAtExistingVersion},
		{"should not save any event of a conflicting batch", saveConflictingBatchAtomically},
		{"should save and get event concurrently", saveAndGetEventsConcurrently},
		{"should let exactly one concurrent writer win", concurrentWritersSameVersion},
		{"should return no events when stream is empty", getNoEventsWhenEmpty},
		{"should interleave snapshots with events", interleaveSnapshots},
		{"should allow snapshots sharing a version", snapshotsSharingVersion},
		{"should find latest snapshot up to version", latestSnapshotUpToVersion},
		{"should return snapshot not found", snapshotNotFound},
		{"should store a snapshot without prior events", snapshotWithoutEvents},
		{"should return latest version", latestVersion},
		{"should keep streams of other aggregate types apart", separateAggregateTypes},
		{"should restart iteration on each get", restartableGet},
		{"should keep ids and types containing separators apart", separatorsInKeys},
		{"should report a read that stops partway", interruptedGet},
	}

	for _, test := range tests {
		t.Run(test.title, func(t *testing.T) {
			es, closeFunc, err := esFunc()
			if err != nil {
				t.Fatal(err)
			}
			err = test.run(es)
			if err != nil {
				// make use of t.Error instead of t.Fatal to make sure the closeFunc is executed
				t.Error(err)
			}
			closeFunc()
		})
	}
}

func collect(es core.EventStore, id, typ string, from core.Version) ([]core.Event, error) {
	iterator, err := es.Get(context.Background(), id, typ, from)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()
	events := []core.Event{}
	for iterator.Next() {
		event, err := iterator.Value()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := iterator.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func saveAndGetEvents(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}
	fetchedEvents, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	if len(fetchedEvents) != len(testEvents(aggregateID)) {
		return errors.New("wrong number of events returned")
	}

	if fetchedEvents[0].Version != testEvents(aggregateID)[0].Version {
		return errors.New("wrong events returned")
	}

	// Add more events to the same aggregate event stream
	err = es.Save(context.Background(), testEventsPartTwo(aggregateID))
	if err != nil {
		return err
	}
	fetchedEventsIncludingPartTwo, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}

	if len(fetchedEventsIncludingPartTwo) != len(append(testEvents(aggregateID), testEventsPartTwo(aggregateID)...)) {
		return errors.New("wrong number of events returned")
	}

	expected := testEvents(aggregateID)[0]
	got := fetchedEventsIncludingPartTwo[0]
	if got.Version != expected.Version {
		return errors.New("wrong event version returned")
	}
	if got.AggregateID != expected.AggregateID {
		return errors.New("wrong event aggregateID returned")
	}
	if got.AggregateType != expected.AggregateType {
		return errors.New("wrong event aggregateType returned")
	}
	if got.Reason != expected.Reason {
		return errors.New("wrong event reason returned")
	}
	if got.AgentType != expected.AgentType || got.AgentID != expected.AgentID {
		return fmt.Errorf("wrong agent returned %s/%s", got.AgentType, got.AgentID)
	}
	if got.Snapshot {
		return errors.New("event returned as snapshot")
	}
	if !got.Timestamp.Equal(expected.Timestamp) {
		return fmt.Errorf("wrong timestamp returned exp: %v got: %v", expected.Timestamp, got.Timestamp)
	}
	if string(got.Data) != string(expected.Data) {
		return fmt.Errorf("wrong data returned exp: %s got: %s", expected.Data, got.Data)
	}
	for i, event := range fetchedEventsIncludingPartTwo {
		if event.Version != core.Version(i) {
			return fmt.Errorf("events out of order at %d got version %d", i, event.Version)
		}
	}
	return nil
}

func getEventsFromVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}

	fetchedEvents, err := collect(es, aggregateID, aggregateType, 2)
	if err != nil {
		return err
	}
	// Should return two less events
	if len(fetchedEvents) != len(testEvents(aggregateID))-2 {
		return fmt.Errorf("wrong number of events returned exp: %d, got:%d", len(testEvents(aggregateID))-2, len(fetchedEvents))
	}
	if fetchedEvents[0].Version != 2 {
		return fmt.Errorf("wrong events returned, first version %d", fetchedEvents[0].Version)
	}
	return nil
}

func saveEventAtExistingVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}
	events := testEventsPartTwo(aggregateID)
	events[0].Version = 5
	events[1].Version = 6
	err = es.Save(context.Background(), events)
	if !errors.Is(err, core.ErrConcurrency) {
		return fmt.Errorf("should not be able to save an event at an existing version, got %v", err)
	}
	return nil
}

func saveConflictingBatchAtomically(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID)[:3])
	if err != nil {
		return err
	}
	// versions 1..5 where 1 and 2 collide
	err = es.Save(context.Background(), testEvents(aggregateID)[1:])
	if !errors.Is(err, core.ErrConcurrency) {
		return fmt.Errorf("expected concurrency error got %v", err)
	}
	events, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	if len(events) != 3 {
		return fmt.Errorf("conflicting batch was partly stored, %d events in stream", len(events))
	}
	return nil
}

func saveAndGetEventsConcurrently(es core.EventStore) error {
	wg := sync.WaitGroup{}
	var lock sync.Mutex
	var err error
	setErr := func(e error) {
		lock.Lock()
		defer lock.Unlock()
		err = e
	}
	aggregateID := AggregateID()

	wg.Add(10)
	for i := 0; i < 10; i++ {
		events := testEvents(fmt.Sprintf("%s-%d", aggregateID, i))
		go func() {
			defer wg.Done()
			if e := es.Save(context.Background(), events); e != nil {
				setErr(e)
			}
		}()
	}
	wg.Wait()
	if err != nil {
		return err
	}

	wg.Add(10)
	for i := 0; i < 10; i++ {
		eventID := fmt.Sprintf("%s-%d", aggregateID, i)
		go func() {
			defer wg.Done()
			events, e := collect(es, eventID, aggregateType, core.Zero())
			if e != nil {
				setErr(e)
				return
			}
			if len(events) != 6 {
				setErr(fmt.Errorf("wrong number of events fetched, expecting 6 got %d", len(events)))
			}
		}()
	}
	wg.Wait()
	return err
}

func concurrentWritersSameVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID)[:1])
	if err != nil {
		return err
	}
	writers := 8
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			results <- es.Save(context.Background(), testEvents(aggregateID)[1:2])
		}()
	}
	succeeded := 0
	for i := 0; i < writers; i++ {
		e := <-results
		switch {
		case e == nil:
			succeeded++
		case errors.Is(e, core.ErrConcurrency):
		default:
			return e
		}
	}
	if succeeded != 1 {
		return fmt.Errorf("expected exactly one writer to succeed, %d did", succeeded)
	}
	return nil
}

func getNoEventsWhenEmpty(es core.EventStore) error {
	aggregateID := AggregateID()
	iterator, err := es.Get(context.Background(), aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	defer iterator.Close()
	if iterator.Next() {
		return fmt.Errorf("expect no event when no events are saved")
	}
	return iterator.Err()
}

func interleaveSnapshots(es core.EventStore) error {
	aggregateID := AggregateID()
	events := testEvents(aggregateID)
	batch := append([]core.Event{}, events[:3]...)
	batch = append(batch, testSnapshot(aggregateID, 2, 12525))
	batch = append(batch, events[3:]...)
	err := es.Save(context.Background(), batch)
	if err != nil {
		return err
	}
	fetched, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	if len(fetched) != 7 {
		return fmt.Errorf("expected 7 records got %d", len(fetched))
	}
	if !fetched[3].Snapshot || fetched[3].Version != 2 {
		return fmt.Errorf("expected snapshot after event 2 got %+v", fetched[3])
	}
	if fetched[2].Snapshot || fetched[2].Version != 2 {
		return fmt.Errorf("expected event 2 before its snapshot got %+v", fetched[2])
	}
	fromThree, err := collect(es, aggregateID, aggregateType, 3)
	if err != nil {
		return err
	}
	for _, e := range fromThree {
		if e.Snapshot {
			return errors.New("snapshot at version 2 returned from version 3")
		}
	}
	return nil
}

func snapshotsSharingVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID)[:2])
	if err != nil {
		return err
	}
	err = es.Save(context.Background(), []core.Event{testSnapshot(aggregateID, 1, 100)})
	if err != nil {
		return err
	}
	err = es.Save(context.Background(), []core.Event{testSnapshot(aggregateID, 1, 200)})
	if err != nil {
		return fmt.Errorf("second snapshot at same version rejected: %w", err)
	}
	snap, err := es.LatestSnapshot(context.Background(), aggregateID, aggregateType, core.MaxVersion)
	if err != nil {
		return err
	}
	if string(snap.Data) != string(eventToByte(map[string]interface{}{"Miles": 200})) {
		return fmt.Errorf("expected the last inserted snapshot got %s", snap.Data)
	}
	fetched, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	if len(fetched) != 4 {
		return fmt.Errorf("expected 4 records got %d", len(fetched))
	}
	return nil
}

func latestSnapshotUpToVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	events := testEvents(aggregateID)
	batch := []core.Event{events[0], events[1], testSnapshot(aggregateID, 1, 1), events[2], events[3], testSnapshot(aggregateID, 3, 3), events[4], events[5]}
	err := es.Save(context.Background(), batch)
	if err != nil {
		return err
	}
	tests := []struct {
		upTo     core.Version
		expected core.Version
	}{
		{1, 1}, {2, 1}, {3, 3}, {5, 3}, {core.MaxVersion, 3},
	}
	for _, test := range tests {
		snap, err := es.LatestSnapshot(context.Background(), aggregateID, aggregateType, test.upTo)
		if err != nil {
			return fmt.Errorf("up to %d: %w", test.upTo, err)
		}
		if !snap.Snapshot || snap.Version != test.expected {
			return fmt.Errorf("up to %d expected snapshot at %d got %d", test.upTo, test.expected, snap.Version)
		}
		if snap.Reason != core.SnapshotReason {
			return fmt.Errorf("wrong snapshot reason %q", snap.Reason)
		}
	}
	_, err = es.LatestSnapshot(context.Background(), aggregateID, aggregateType, 0)
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		return fmt.Errorf("expected no snapshot up to version 0 got %v", err)
	}
	return nil
}

func snapshotNotFound(es core.EventStore) error {
	aggregateID := AggregateID()
	_, err := es.LatestSnapshot(context.Background(), aggregateID, aggregateType, core.MaxVersion)
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		return fmt.Errorf("expected snapshot not found got %v", err)
	}
	err = es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}
	_, err = es.LatestSnapshot(context.Background(), aggregateID, aggregateType, core.MaxVersion)
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		return fmt.Errorf("expected snapshot not found got %v", err)
	}
	return nil
}

func snapshotWithoutEvents(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), []core.Event{testSnapshot(aggregateID, 50, 50)})
	if err != nil {
		return err
	}
	next := testEvents(aggregateID)[2]
	next.Version = 51
	err = es.Save(context.Background(), []core.Event{next})
	if err != nil {
		return err
	}
	fetched, err := collect(es, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	if len(fetched) != 2 || !fetched[0].Snapshot || fetched[1].Version != 51 {
		return fmt.Errorf("unexpected stream %+v", fetched)
	}
	return nil
}

func latestVersion(es core.EventStore) error {
	aggregateID := AggregateID()
	_, err := es.LatestVersion(context.Background(), aggregateID, aggregateType)
	if !errors.Is(err, core.ErrNoEvents) {
		return fmt.Errorf("expected no events got %v", err)
	}
	events := testEvents(aggregateID)
	events = append(events, testSnapshot(aggregateID, 5, 5))
	err = es.Save(context.Background(), events)
	if err != nil {
		return err
	}
	v, err := es.LatestVersion(context.Background(), aggregateID, aggregateType)
	if err != nil {
		return err
	}
	if v != 5 {
		return fmt.Errorf("expected latest version 5 got %d", v)
	}
	return nil
}

func separateAggregateTypes(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}
	other := testEvents(aggregateID)[:1]
	other[0].AggregateType = "Other"
	err = es.Save(context.Background(), other)
	if err != nil {
		return fmt.Errorf("same id with other type should not conflict: %w", err)
	}
	fetched, err := collect(es, aggregateID, "Other", core.Zero())
	if err != nil {
		return err
	}
	if len(fetched) != 1 {
		return fmt.Errorf("expected 1 event of the other type got %d", len(fetched))
	}
	return nil
}

func restartableGet(es core.EventStore) error {
	aggregateID := AggregateID()
	err := es.Save(context.Background(), testEvents(aggregateID))
	if err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		fetched, err := collect(es, aggregateID, aggregateType, core.Zero())
		if err != nil {
			return err
		}
		if len(fetched) != 6 {
			return fmt.Errorf("round %d expected 6 events got %d", i, len(fetched))
		}
	}
	return nil
}

func separatorsInKeys(es core.EventStore) error {
	suffix := AggregateID()
	pairs := [][2]string{
		{"Doc_draft", "1_" + suffix},
		{"Doc", "draft_1_" + suffix},
		{"Doc:draft", "1:" + suffix},
		{"Doc", "draft:1:" + suffix},
		{"Doc{x}", "1}" + suffix},
		{"Doc", "x}{1}" + suffix},
	}
	for i, p := range pairs {
		event := core.Event{AggregateID: p[1], Version: 0, AggregateType: p[0], Timestamp: timestamp,
			Reason: "FrequentFlierAccountCreated", Data: eventToByte(&FrequentFlierAccountCreated{AccountId: fmt.Sprintf("%d", i)})}
		if err := es.Save(context.Background(), []core.Event{event}); err != nil {
			return fmt.Errorf("saving %s/%s: %w", p[0], p[1], err)
		}
	}
	for i, p := range pairs {
		fetched, err := collect(es, p[1], p[0], core.Zero())
		if err != nil {
			return err
		}
		if len(fetched) != 1 {
			return fmt.Errorf("expected 1 event for %s/%s got %d", p[0], p[1], len(fetched))
		}
		if fetched[0].AggregateType != p[0] || fetched[0].AggregateID != p[1] {
			return fmt.Errorf("expected %s/%s got %s/%s", p[0], p[1], fetched[0].AggregateType, fetched[0].AggregateID)
		}
		var created FrequentFlierAccountCreated
		if err := json.Unmarshal(fetched[0].Data, &created); err != nil {
			return err
		}
		if created.AccountId != fmt.Sprintf("%d", i) {
			return fmt.Errorf("%s/%s returned the event of another stream: %s", p[0], p[1], created.AccountId)
		}
	}
	return nil
}

// interruptedGet cancels the context after the first record. A store may finish the
// read from what it already holds, but it must not end early without an error.
func interruptedGet(es core.EventStore) error {
	aggregateID := AggregateID()
	count := 300
	events := make([]core.Event, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, core.Event{AggregateID: aggregateID, Version: core.Version(i), AggregateType: aggregateType, Timestamp: timestamp,
			Reason: "FlightTaken", Data: eventToByte(&FlightTaken{MilesAdded: i, TierPointsAdded: 1})})
	}
	if err := es.Save(context.Background(), events); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	iterator, err := es.Get(ctx, aggregateID, aggregateType, core.Zero())
	if err != nil {
		return err
	}
	defer iterator.Close()
	read := 0
	for iterator.Next() {
		if _, err := iterator.Value(); err != nil {
			return err
		}
		read++
		if read == 1 {
			cancel()
		}
	}
	if iterator.Err() == nil && read != count {
		return fmt.Errorf("read stopped after %d of %d events without an error", read, count)
	}
	return nil
}
