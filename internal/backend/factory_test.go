package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ahorro/internal/amqp"
	"ahorro/internal/config"
	sheetsmemory "ahorro/internal/sheets/memory"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres", Config{Type: PostgresBackend, DatabaseURL: "postgres://localhost/ahorro"}, false},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "ex"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "/tmp/a.db",
		DataDir:      "seed",
		AMQPURL:      "amqp://localhost",
		AMQPExchange: "ex",
		AMQPQueue:    "q",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/a.db" || cfg.DataDirectory != "seed" || cfg.AMQPQueue != "q" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := strings.Join(GetBackendTypeStrings(), ",")
	if got != "memory,sqlite,postgres" {
		t.Errorf("GetBackendTypeStrings() = %s", got)
	}
}

func TestCreateMemoryBackendSeedsProfiles(t *testing.T) {
	dir := t.TempDir()
	seed := "# demo users\nu1,ana@example.com,Ana\n\nu2,luis@example.com,Luis\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_profiles.txt"), []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.Publisher != nil || res.AMQP != nil {
		t.Error("publisher set without AMQP URL")
	}
	users, err := res.Store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	p, err := res.Store.FindProfileByEmail(context.Background(), "luis@example.com")
	if err != nil || p.ID != "u2" {
		t.Errorf("FindProfileByEmail = %+v, %v", p, err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "ahorro.db")

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: dbPath})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestCreateBackendContinuesWhenAMQPUnreachable(t *testing.T) {
	f := newDefaultFactory(nil)
	var dialed string
	f.dialAMQP = func(url, exchange, queue string) (*amqp.Client, error) {
		dialed = url
		return nil, errors.New("connection refused")
	}

	res, err := f.CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		DataDirectory: t.TempDir(),
		AMQPURL:       "amqp://localhost:5672/",
		AMQPExchange:  "ahorro",
		AMQPQueue:     "sync_transactions",
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if dialed != "amqp://localhost:5672/" {
		t.Errorf("dialed %q", dialed)
	}
	// A nil *amqp.Client must not leak into the interface.
	if res.Publisher != nil {
		t.Error("Publisher should be nil when AMQP is unreachable")
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "bogus"}); err == nil {
		t.Error("expected error")
	}
}

func TestNewLedgerWriterFallsBackToMemory(t *testing.T) {
	w, err := NewLedgerWriter(context.Background(), " ", nil)
	if err != nil {
		t.Fatalf("NewLedgerWriter: %v", err)
	}
	if _, ok := w.(*sheetsmemory.Writer); !ok {
		t.Errorf("got %T, want *memory.Writer", w)
	}
}
