package eventsourcing_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/bennyboer/eventsourcing"
	"github.com/bennyboer/eventsourcing/core"
	"github.com/bennyboer/eventsourcing/eventstore/memory"
	"github.com/bennyboer/eventsourcing/snapshot"
)

// Document aggregate
type Document struct {
	eventsourcing.AggregateRoot
	Title string
	Edits int
}

type DocumentCreated struct {
	Title string
}

type TitleChanged struct {
	Title string
}

type CreateDocument struct {
	Title string
}

type ChangeTitle struct {
	Title string
}

func NewDocument() *Document {
	return &Document{}
}

func (d *Document) Register(r eventsourcing.RegisterFunc) {
	r(&DocumentCreated{}, &TitleChanged{})
}

func (d *Document) Handle(cmd interface{}, agent eventsourcing.Agent) error {
	switch c := cmd.(type) {
	case CreateDocument:
		d.TrackChange(d, &DocumentCreated{Title: c.Title})
	case ChangeTitle:
		if c.Title != d.Title {
			d.TrackChange(d, &TitleChanged{Title: c.Title})
		}
	default:
		return eventsourcing.ErrUnknownCommand
	}
	return nil
}

func (d *Document) Transition(event eventsourcing.Event) {
	switch e := event.Data().(type) {
	case *DocumentCreated:
		d.Title = e.Title
	case *TitleChanged:
		d.Title = e.Title
		d.Edits++
	}
}

func newDocumentService(t *testing.T, store core.EventStore, opts ...eventsourcing.Option) *eventsourcing.Service[*Document] {
	t.Helper()
	s, err := eventsourcing.NewService(store, NewDocument, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// retitle applies the titles "Title from" to "Title to" one command at a time
func retitle(t *testing.T, s *eventsourcing.Service[*Document], id string, expected core.Version, from, to int) core.Version {
	t.Helper()
	v := expected
	for i := from; i <= to; i++ {
		var err error
		v, err = s.Update(context.Background(), id, v, ChangeTitle{Title: fmt.Sprintf("Title %d", i)}, eventsourcing.User("editor"))
		if err != nil {
			t.Fatal(err)
		}
	}
	return v
}

func TestSnapshotAfterHundredEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store)

	if _, err := s.Create(ctx, "doc", CreateDocument{Title: "Test title"}, eventsourcing.User("editor")); err != nil {
		t.Fatal(err)
	}
	v := retitle(t, s, "doc", 0, 1, 99)
	if v != 99 {
		t.Fatalf("expected version 99 got %d", v)
	}

	events, snapshots := records(t, store, "Document", "doc")
	if len(events) != 100 {
		t.Fatalf("expected 100 events got %d", len(events))
	}
	if len(snapshots) != 1 || snapshots[0].Version != 99 {
		t.Fatalf("expected one snapshot at version 99 got %v", snapshots)
	}

	doc, err := s.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Title 99" || doc.Edits != 99 {
		t.Fatalf("unexpected document %q with %d edits", doc.Title, doc.Edits)
	}

	// recompute without the snapshot
	full := newDocumentService(t, withoutSnapshotReads{store})
	replayed, err := full.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if replayed.Title != doc.Title || replayed.Edits != doc.Edits || replayed.Version() != doc.Version() {
		t.Fatalf("full replay gave %q %d at %d", replayed.Title, replayed.Edits, replayed.Version())
	}
}

func TestRecoverFromSeededSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store)

	data, err := snapshot.NewCodec().Marshal(&Document{Title: "At Version 50"})
	if err != nil {
		t.Fatal(err)
	}
	err = store.Save(ctx, []core.Event{{
		AggregateID:   "doc",
		AggregateType: "Document",
		Version:       50,
		Snapshot:      true,
		Reason:        core.SnapshotReason,
		Data:          data,
	}})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := s.GetVersion(ctx, "doc", 50)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "At Version 50" {
		t.Fatalf("unexpected title %q", doc.Title)
	}

	if v := retitle(t, s, "doc", 50, 51, 60); v != 60 {
		t.Fatalf("expected version 60 got %d", v)
	}

	doc, err = s.GetVersion(ctx, "doc", 55)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Title 55" || doc.Version() != 55 {
		t.Fatalf("expected Title 55 at 55 got %q at %d", doc.Title, doc.Version())
	}

	doc, err = s.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Title 60" || doc.Version() != 60 {
		t.Fatalf("expected Title 60 at 60 got %q at %d", doc.Title, doc.Version())
	}

	if _, err := s.GetVersion(ctx, "doc", 49); err == nil {
		t.Fatal("expected not found before the seeded snapshot")
	}
}

func TestHistoryOfSnapshotOnlyStream(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store)

	data, err := snapshot.NewCodec().Marshal(&Document{Title: "Imported"})
	if err != nil {
		t.Fatal(err)
	}
	err = store.Save(ctx, []core.Event{{
		AggregateID:   "doc",
		AggregateType: "Document",
		Version:       20,
		Snapshot:      true,
		Reason:        core.SnapshotReason,
		Data:          data,
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "doc"); err != nil {
		t.Fatal(err)
	}
	history, err := s.History(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected an empty history got %v", history)
	}
}

func TestSnapshotsEveryHundredEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store)

	if _, err := s.Create(ctx, "doc", CreateDocument{Title: "Test title"}, eventsourcing.User("editor")); err != nil {
		t.Fatal(err)
	}
	retitle(t, s, "doc", 0, 1, 300)

	// Versions count from zero, so the event at version v is the (v+1)th. A snapshot
	// follows every event that brings the count to a multiple of 100.
	events, snapshots := records(t, store, "Document", "doc")
	if len(events) != 301 {
		t.Fatalf("expected 301 events got %d", len(events))
	}
	var versions []core.Version
	for _, snap := range snapshots {
		versions = append(versions, snap.Version)
	}
	if fmt.Sprint(versions) != "[99 199 299]" {
		t.Fatalf("expected snapshots at 99 199 299 got %v", versions)
	}
	if total := store.Count(); total != 304 {
		t.Fatalf("expected 304 stored records got %d", total)
	}
}

func TestDocumentFullReplayEqualsSnapshotReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store, eventsourcing.WithSnapshotEvery(25))
	full := newDocumentService(t, withoutSnapshotReads{store})

	if _, err := s.Create(ctx, "doc", CreateDocument{Title: "Test title"}, eventsourcing.Anonymous()); err != nil {
		t.Fatal(err)
	}
	last := retitle(t, s, "doc", 0, 1, 120)

	for v := core.Zero(); v <= last; v += 7 {
		a, err := s.GetVersion(ctx, "doc", v)
		if err != nil {
			t.Fatal(err)
		}
		b, err := full.GetVersion(ctx, "doc", v)
		if err != nil {
			t.Fatal(err)
		}
		if a.Title != b.Title || a.Edits != b.Edits {
			t.Fatalf("version %d: snapshot replay %q/%d full replay %q/%d", v, a.Title, a.Edits, b.Title, b.Edits)
		}
	}
}

func TestRecoverFromDriftedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.Create()
	s := newDocumentService(t, store)

	// written by an older Document with a numeric title and a field that no longer exists
	err := store.Save(ctx, []core.Event{{
		AggregateID:   "doc",
		AggregateType: "Document",
		Version:       3,
		Snapshot:      true,
		Reason:        core.SnapshotReason,
		Data:          []byte(`{"Title":42,"Archived":true}`),
	}})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := s.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "42" || doc.Edits != 0 || doc.Version() != 3 || doc.ID() != "doc" {
		t.Fatalf("unexpected document %q %d at %d", doc.Title, doc.Edits, doc.Version())
	}
}
