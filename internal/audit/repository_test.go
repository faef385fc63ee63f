package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry := &AuditLog{Action: ActionConnect, RemoteAddr: "10.0.0.5:4100", Source: SourceDevice}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(entry.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set")
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Logs) != 1 {
		t.Fatalf("List() total=%d len=%d, want 1/1", res.Total, len(res.Logs))
	}
	got := res.Logs[0]
	if got.ID != entry.ID || got.RemoteAddr != "10.0.0.5:4100" || got.IMEI != "" {
		t.Errorf("List()[0] = %+v", got)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestCreate_RoundTripsDetails(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	err := repo.Create(ctx, &AuditLog{
		Action:  ActionCommand,
		Source:  SourceOperator,
		Details: map[string]any{"command": "123:reboot", "receivers": 2},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{Action: ActionCommand})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Logs) != 1 {
		t.Fatalf("len(Logs) = %d, want 1", len(res.Logs))
	}
	d := res.Logs[0].Details
	if d["command"] != "123:reboot" {
		t.Errorf("details.command = %v", d["command"])
	}
	// JSON numbers decode as float64.
	if d["receivers"] != float64(2) {
		t.Errorf("details.receivers = %v", d["receivers"])
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionConnect, Source: SourceDevice, CreatedAt: base},
		{Action: ActionRegister, IMEI: "123", Source: SourceDevice, CreatedAt: base.Add(time.Second)},
		{Action: ActionRegister, IMEI: "456", Source: SourceDevice, CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionDisconnect, IMEI: "123", Source: SourceDevice, CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		actions []string
		total   int
	}{
		{"all newest first", Filter{}, []string{ActionDisconnect, ActionRegister, ActionRegister, ActionConnect}, 4},
		{"by action", Filter{Action: ActionRegister}, []string{ActionRegister, ActionRegister}, 2},
		{"by imei", Filter{IMEI: "123"}, []string{ActionDisconnect, ActionRegister}, 2},
		{"action and imei", Filter{Action: ActionRegister, IMEI: "456"}, []string{ActionRegister}, 1},
		{"paged", Filter{Limit: 2, Offset: 1}, []string{ActionRegister, ActionRegister}, 4},
		{"no match", Filter{IMEI: "999"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total {
				t.Errorf("Total = %d, want %d", res.Total, tt.total)
			}
			got := make([]string, 0, len(res.Logs))
			for _, l := range res.Logs {
				got = append(got, l.Action)
			}
			if strings.Join(got, ",") != strings.Join(tt.actions, ",") {
				t.Errorf("actions = %v, want %v", got, tt.actions)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := openTestRepo(t)

	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-3, defaultLimit},
		{10, 10},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want {
			t.Errorf("Limit(%d) = %d, want %d", tt.in, res.Limit, tt.want)
		}
		if res.Offset != 0 {
			t.Errorf("Offset = %d, want 0", res.Offset)
		}
	}
}
