package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("expected default store memory, got %q", cfg.Store)
	}
	if cfg.SnapshotEvery != 100 {
		t.Fatalf("expected snapshot every 100, got %d", cfg.SnapshotEvery)
	}
	if !cfg.SnapshotsEnabled {
		t.Fatal("expected snapshots to be enabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EVENTSOURCING_STORE", "postgres")
	t.Setenv("EVENTSOURCING_POSTGRES_URL", "postgres://localhost/es")
	t.Setenv("EVENTSOURCING_SNAPSHOT_EVERY", "10")
	t.Setenv("EVENTSOURCING_SNAPSHOTS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePostgres || cfg.PostgresURL != "postgres://localhost/es" {
		t.Fatalf("unexpected store settings %+v", cfg)
	}
	if cfg.SnapshotEvery != 10 || cfg.SnapshotsEnabled {
		t.Fatalf("unexpected snapshot settings %+v", cfg)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("EVENTSOURCING_SNAPSHOT_EVERY", "often")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Store: StoreMemory, SnapshotEvery: 100, SnapshotsEnabled: true, RecoveryConcurrency: 8}, false},
		{"unknown store", Config{Store: "mongo"}, true},
		{"postgres without url", Config{Store: StorePostgres}, true},
		{"bbolt without path", Config{Store: StoreBBolt}, true},
		{"zero threshold", Config{Store: StoreMemory, SnapshotsEnabled: true, RecoveryConcurrency: 1}, true},
		{"zero threshold disabled", Config{Store: StoreMemory, RecoveryConcurrency: 1}, false},
		{"no concurrency", Config{Store: StoreMemory, SnapshotEvery: 100, SnapshotsEnabled: true}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if (err != nil) != test.wantErr {
				t.Fatalf("expected error %v got %v", test.wantErr, err)
			}
		})
	}
}
