// Package account is a sample business module: a frequent flier account whose miles and
// tier points grow with every flight and whose status follows the tier points.
package account

import (
	"errors"
	"fmt"

	"github.com/bennyboer/eventsourcing"
)

// Status represents the Red, Silver or Gold tier level of a FrequentFlierAccount
type Status int

const (
	StatusRed Status = iota
	StatusSilver
	StatusGold
)

func (s Status) String() string {
	switch s {
	case StatusRed:
		return "Red"
	case StatusSilver:
		return "Silver"
	case StatusGold:
		return "Gold"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Tier point boundaries of the statuses
const (
	SilverTierPoints = 10
	GoldTierPoints   = 20
)

// ErrInvalidFlight when a flight carries negative miles or tier points
var ErrInvalidFlight = errors.New("flight miles and tier points can not be negative")

// FrequentFlierAccount represents the state of an instance of the frequent flier
// account aggregate. It tracks changes on itself in the form of domain events.
type FrequentFlierAccount struct {
	eventsourcing.AggregateRoot
	Miles      int
	TierPoints int
	Status     Status
	Flights    int
}

// New returns a blank account, the starting point of every recovery
func New() *FrequentFlierAccount {
	return &FrequentFlierAccount{}
}

// Commands

// Open starts the account
type Open struct {
	OpeningMiles      int
	OpeningTierPoints int
}

// RecordFlight attaches a flight to the account. The number of miles and tier points
// which apply are calculated externally.
type RecordFlight struct {
	Miles      int
	TierPoints int
}

// MatchStatus grants a status earned with another airline
type MatchStatus struct {
	Status Status
}

// Events

// FrequentFlierAccountCreated is the struct of frequent flier accounts created
type FrequentFlierAccountCreated struct {
	OpeningMiles      int
	OpeningTierPoints int
}

// StatusMatched is the struct of status matched
type StatusMatched struct {
	NewStatus Status
}

// FlightTaken is the struct of flight taken
type FlightTaken struct {
	MilesAdded      int
	TierPointsAdded int
}

// PromotedToGoldStatus promoted to gold status
type PromotedToGoldStatus struct{}

func (f *FrequentFlierAccount) Register(r eventsourcing.RegisterFunc) {
	r(&FrequentFlierAccountCreated{}, &StatusMatched{}, &FlightTaken{}, &PromotedToGoldStatus{})
}

// Handle turns the commands into events.
//
// If recording a flight takes the account over a status boundary, it will
// automatically upgrade the account to the new status level.
func (f *FrequentFlierAccount) Handle(cmd interface{}, agent eventsourcing.Agent) error {
	switch c := cmd.(type) {
	case Open:
		if c.OpeningMiles < 0 || c.OpeningTierPoints < 0 {
			return ErrInvalidFlight
		}
		f.TrackChange(f, &FrequentFlierAccountCreated{OpeningMiles: c.OpeningMiles, OpeningTierPoints: c.OpeningTierPoints})

	case RecordFlight:
		if c.Miles < 0 || c.TierPoints < 0 {
			return ErrInvalidFlight
		}
		f.TrackChange(f, &FlightTaken{MilesAdded: c.Miles, TierPointsAdded: c.TierPoints})

		if f.TierPoints > SilverTierPoints && f.Status < StatusSilver {
			f.TrackChange(f, &StatusMatched{NewStatus: StatusSilver})
		}
		if f.TierPoints > GoldTierPoints && f.Status != StatusGold {
			f.TrackChange(f, &PromotedToGoldStatus{})
		}

	case MatchStatus:
		if c.Status > f.Status {
			f.TrackChange(f, &StatusMatched{NewStatus: c.Status})
		}

	default:
		return fmt.Errorf("%w: %T", eventsourcing.ErrUnknownCommand, cmd)
	}
	return nil
}

// Transition implements the pattern match against event types used both as part
// of the fold when loading from history and when tracking an individual change.
func (f *FrequentFlierAccount) Transition(event eventsourcing.Event) {
	switch e := event.Data().(type) {
	case *FrequentFlierAccountCreated:
		f.Miles = e.OpeningMiles
		f.TierPoints = e.OpeningTierPoints
		f.Status = StatusRed

	case *StatusMatched:
		f.Status = e.NewStatus

	case *FlightTaken:
		f.Miles += e.MilesAdded
		f.TierPoints += e.TierPointsAdded
		f.Flights++

	case *PromotedToGoldStatus:
		f.Status = StatusGold
	}
}

// String implements Stringer for FrequentFlierAccount instances.
func (f *FrequentFlierAccount) String() string {
	format := `FrequentFlierAccount: %s
	Miles: %d
	TierPoints: %d
	Status: %s
	Flights: %d
	(aggregateVersion: %d)
`
	return fmt.Sprintf(format, f.ID(), f.Miles, f.TierPoints, f.Status, f.Flights, f.Version())
}
