package account_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bennyboer/eventsourcing"
	"github.com/bennyboer/eventsourcing/eventstore/memory"
	"github.com/bennyboer/eventsourcing/example/account"
)

func newService(t *testing.T) *eventsourcing.Service[*account.FrequentFlierAccount] {
	t.Helper()
	s, err := eventsourcing.NewService(memory.Create(), account.New, eventsourcing.WithSnapshotEvery(5))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStatusFollowsTierPoints(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	agent := eventsourcing.User("crew")

	v, err := s.Create(ctx, "1234567", account.Open{OpeningMiles: 10000}, agent)
	if err != nil {
		t.Fatal(err)
	}
	flights := []account.RecordFlight{
		{Miles: 2525, TierPoints: 5},
		{Miles: 2512, TierPoints: 5},
		{Miles: 5600, TierPoints: 5},
		{Miles: 3000, TierPoints: 3},
		{Miles: 1000, TierPoints: 3},
	}
	for _, flight := range flights {
		v, err = s.Update(ctx, "1234567", v, flight, agent)
		if err != nil {
			t.Fatal(err)
		}
	}

	a, err := s.Get(ctx, "1234567")
	if err != nil {
		t.Fatal(err)
	}
	if a.Miles != 24637 || a.TierPoints != 21 || a.Flights != 5 {
		t.Fatalf("unexpected account %s", a)
	}
	if a.Status != account.StatusGold {
		t.Fatalf("expected gold status got %s", a.Status)
	}
	// created, five flights, silver after the third and gold after the fifth
	if v != 7 || a.Version() != 7 {
		t.Fatalf("expected version 7 got %d", v)
	}

	silver, err := s.GetVersion(ctx, "1234567", 4)
	if err != nil {
		t.Fatal(err)
	}
	if silver.Status != account.StatusSilver {
		t.Fatalf("expected silver at version 4 got %s", silver.Status)
	}
}

func TestRejectedCommands(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	agent := eventsourcing.Anonymous()
	if _, err := s.Create(ctx, "1", account.Open{}, agent); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Update(ctx, "1", 0, account.RecordFlight{Miles: -1}, agent); !errors.Is(err, account.ErrInvalidFlight) {
		t.Fatalf("expected ErrInvalidFlight got %v", err)
	}
	if _, err := s.Update(ctx, "1", 0, "upgrade please", agent); !errors.Is(err, eventsourcing.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand got %v", err)
	}
	v, err := s.Update(ctx, "1", 0, account.MatchStatus{Status: account.StatusRed}, agent)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("matching the current status should not change the version, got %d", v)
	}
}

func TestStatusString(t *testing.T) {
	if account.StatusSilver.String() != "Silver" || account.Status(9).String() != "Status(9)" {
		t.Fatal("unexpected status names")
	}
}
