// Command eventlog runs the sample account through the engine and prints stored streams
// of the configured event store.
//
//	eventlog demo -id 1234567 -flights 250
//	eventlog events -type FrequentFlierAccount -id 1234567
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/bennyboer/eventsourcing"
	"github.com/bennyboer/eventsourcing/config"
	"github.com/bennyboer/eventsourcing/core"
	"github.com/bennyboer/eventsourcing/eventstore"
	"github.com/bennyboer/eventsourcing/example/account"
	"github.com/bennyboer/eventsourcing/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: eventlog demo|events [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, closeStore, err := eventstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Debug("event store opened", zap.String("store", cfg.Store))

	switch args[0] {
	case "demo":
		return demo(ctx, store, cfg, log, args[1:], out)
	case "events":
		return events(ctx, store, args[1:], out)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// demo opens an account and records flights one command at a time
func demo(ctx context.Context, store core.EventStore, cfg config.Config, log *zap.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	id := fs.String("id", "", "account id, a new uuid when empty")
	flights := fs.Int("flights", 250, "number of flights to record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		*id = eventsourcing.NewID()
	}

	s, err := eventsourcing.NewService(store, account.New, eventsourcing.FromConfig(cfg), eventsourcing.WithLogger(log))
	if err != nil {
		return err
	}
	crew := eventsourcing.System("eventlog")
	v, err := s.Create(ctx, *id, account.Open{OpeningMiles: 1000}, crew)
	if err != nil {
		return err
	}
	for i := 0; i < *flights; i++ {
		v, err = s.Update(ctx, *id, v, account.RecordFlight{Miles: 500 + i%7*100, TierPoints: 1}, crew)
		if err != nil {
			return err
		}
	}

	a, err := s.Get(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprint(out, a)
	return nil
}

// events prints every record of a stream, snapshots included
func events(ctx context.Context, store core.EventStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	typ := fs.String("type", "FrequentFlierAccount", "aggregate type")
	id := fs.String("id", "", "aggregate id")
	from := fs.Uint64("from", 0, "first version to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("events needs -id")
	}

	iter, err := store.Get(ctx, *id, *typ, core.Version(*from))
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.Next() {
		e, err := iter.Value()
		if err != nil {
			return err
		}
		kind := "event"
		if e.Snapshot {
			kind = "snapshot"
		}
		fmt.Fprintf(out, "%6d %-8s %-24s %s/%s %s %s\n", e.Version, kind, e.Reason, e.AgentType, e.AgentID,
			e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), e.Data)
		n++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s has no records", *typ, *id)
	}
	return nil
}
