package audit

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			user_id TEXT,
			email TEXT,
			ip TEXT,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	return db
}

// seedEvents inserts n login events for the given user with strictly
// increasing timestamps so ordering assertions are deterministic.
func seedEvents(t *testing.T, repo *SQLiteRepository, userID string, n int) {
	t.Helper()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := range n {
		event := &Event{
			Action:    ActionLogin,
			UserID:    userID,
			Email:     "ada@students.example.edu",
			IP:        "10.0.0.1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(t.Context(), event); err != nil {
			t.Fatalf("recording event %d: %v", i, err)
		}
	}
}

func TestRepository_RecordAndList(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	event := &Event{
		Action: ActionTokenReuse,
		UserID: "usr-abc12345",
		IP:     "192.0.2.7",
		Details: map[string]any{
			"reason": "consumed_token",
			"family": "fam-1",
		},
	}
	if err := repo.Record(t.Context(), event); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if event.ID == "" {
		t.Error("Record did not generate an ID")
	}
	if event.CreatedAt.IsZero() {
		t.Error("Record did not set CreatedAt")
	}

	result, err := repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}

	got := result.Events[0]
	if got.Action != ActionTokenReuse {
		t.Errorf("Action = %q, want %q", got.Action, ActionTokenReuse)
	}
	if got.IP != "192.0.2.7" {
		t.Errorf("IP = %q, want %q", got.IP, "192.0.2.7")
	}
	if got.Details["reason"] != "consumed_token" {
		t.Errorf("Details[reason] = %v, want consumed_token", got.Details["reason"])
	}
}

func TestRepository_RecordWithoutOptionalFields(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	// Failed logins before the user is known carry no user ID.
	if err := repo.Record(t.Context(), &Event{Action: ActionLoginFailed, Email: "nobody@example.edu"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Events[0]
	if got.UserID != "" || got.IP != "" {
		t.Errorf("empty optional fields round-tripped as %q / %q", got.UserID, got.IP)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	seedEvents(t, repo, "usr-alpha000", 3)
	seedEvents(t, repo, "usr-beta0000", 2)
	if err := repo.Record(t.Context(), &Event{Action: ActionLogout, UserID: "usr-alpha000"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repo.List(t.Context(), Filter{UserID: "usr-beta0000"})
	if err != nil {
		t.Fatalf("List(user filter) error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d for user filter, want 2", result.Total)
	}

	result, err = repo.List(t.Context(), Filter{Action: ActionLogout})
	if err != nil {
		t.Fatalf("List(action filter) error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d for action filter, want 1", result.Total)
	}

	result, err = repo.List(t.Context(), Filter{Action: ActionLogin, UserID: "usr-alpha000"})
	if err != nil {
		t.Fatalf("List(combined filter) error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d for combined filter, want 3", result.Total)
	}
}

func TestRepository_ListPagination(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	seedEvents(t, repo, "usr-alpha000", 5)

	page, err := repo.List(t.Context(), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Events))
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}

	// Most recent first.
	if !page.Events[0].CreatedAt.After(page.Events[1].CreatedAt) {
		t.Error("events not ordered most recent first")
	}

	next, err := repo.List(t.Context(), Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List(offset) error = %v", err)
	}
	if len(next.Events) != 2 {
		t.Fatalf("second page size = %d, want 2", len(next.Events))
	}
	if next.Events[0].ID == page.Events[0].ID {
		t.Error("offset page repeats the first page")
	}
}

func TestRepository_ListClampsLimit(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	result, err := repo.List(t.Context(), Filter{Limit: 9999, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", result.Offset)
	}

	result, err = repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("default Limit = %d, want 50", result.Limit)
	}
	if result.Events == nil {
		t.Error("Events is nil on empty result, want empty slice")
	}
}
