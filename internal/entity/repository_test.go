package entity

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const testSchema = `
CREATE TABLE entities (
    id               TEXT PRIMARY KEY,
    kind             TEXT NOT NULL CHECK (kind IN ('player', 'group')),
    name             TEXT NOT NULL,
    model            TEXT,
    host             TEXT,
    member_pids      TEXT NOT NULL DEFAULT '[]',
    state            TEXT NOT NULL DEFAULT '{}',
    state_updated_at TEXT,
    health_status    TEXT NOT NULL DEFAULT 'unknown'
                     CHECK (health_status IN ('online', 'offline', 'unknown')),
    health_last_seen TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);
`

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "entities.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteRepository(db)
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	player := &Entity{
		ID:           "847291563",
		Kind:         KindPlayer,
		Name:         "Kitchen",
		Model:        "SW Speaker 5",
		Host:         "10.0.1.20",
		State:        State{"volume": float64(30)},
		HealthStatus: HealthUnknown,
	}
	if err := repo.Create(ctx, player); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByID(ctx, "847291563")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Name != "Kitchen" || got.Model != "SW Speaker 5" || got.Host != "10.0.1.20" {
		t.Errorf("GetByID() = %+v, want kitchen player fields", got)
	}
	if got.State["volume"] != float64(30) {
		t.Errorf("state volume = %v, want 30", got.State["volume"])
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on create")
	}
}

func TestSQLiteRepository_Create_Duplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	e := &Entity{ID: "1", Kind: KindPlayer, Name: "Kitchen", HealthStatus: HealthUnknown}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.Create(ctx, e); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create() error = %v, want ErrExists", err)
	}
}

func TestSQLiteRepository_GroupRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	group := &Entity{
		ID:           "2871592047",
		Kind:         KindGroup,
		Name:         "Downstairs",
		MemberPIDs:   []string{"847291563", "192847365"},
		HealthStatus: HealthOnline,
	}
	if err := repo.Create(ctx, group); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByID(ctx, "2871592047")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Kind != KindGroup {
		t.Errorf("kind = %q, want group", got.Kind)
	}
	if len(got.MemberPIDs) != 2 || got.MemberPIDs[0] != "847291563" {
		t.Errorf("member pids = %v, want original members", got.MemberPIDs)
	}
}

func TestSQLiteRepository_ListByKind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entities := []*Entity{
		{ID: "1", Kind: KindPlayer, Name: "Kitchen", HealthStatus: HealthUnknown},
		{ID: "2", Kind: KindPlayer, Name: "Lounge", HealthStatus: HealthUnknown},
		{ID: "g1", Kind: KindGroup, Name: "Downstairs", MemberPIDs: []string{"1", "2"}, HealthStatus: HealthUnknown},
	}
	for _, e := range entities {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s) error: %v", e.ID, err)
		}
	}

	players, err := repo.ListByKind(ctx, KindPlayer)
	if err != nil {
		t.Fatalf("ListByKind() error: %v", err)
	}
	if len(players) != 2 {
		t.Errorf("got %d players, want 2", len(players))
	}
	// Ordered by name
	if players[0].Name != "Kitchen" || players[1].Name != "Lounge" {
		t.Errorf("player order = %q, %q, want Kitchen, Lounge", players[0].Name, players[1].Name)
	}
}

func TestSQLiteRepository_UpdateState_Merges(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	e := &Entity{
		ID:           "1",
		Kind:         KindPlayer,
		Name:         "Kitchen",
		State:        State{"volume": float64(30), "mute": false},
		HealthStatus: HealthUnknown,
	}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := repo.UpdateState(ctx, "1", State{"volume": float64(55)}); err != nil {
		t.Fatalf("UpdateState() error: %v", err)
	}

	got, err := repo.GetByID(ctx, "1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.State["volume"] != float64(55) {
		t.Errorf("volume = %v, want 55", got.State["volume"])
	}
	if got.State["mute"] != false {
		t.Errorf("mute lost during merge: %v", got.State["mute"])
	}
	if got.StateUpdatedAt == nil {
		t.Error("state_updated_at not set")
	}
}

func TestSQLiteRepository_UpdateHealth(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	e := &Entity{ID: "1", Kind: KindPlayer, Name: "Kitchen", HealthStatus: HealthUnknown}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	lastSeen := time.Now().UTC()
	if err := repo.UpdateHealth(ctx, "1", HealthOnline, lastSeen); err != nil {
		t.Fatalf("UpdateHealth() error: %v", err)
	}

	got, err := repo.GetByID(ctx, "1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.HealthStatus != HealthOnline {
		t.Errorf("health = %q, want online", got.HealthStatus)
	}
	if got.HealthLastSeen == nil {
		t.Error("health_last_seen not set")
	}
}

func TestSQLiteRepository_NotFoundPaths(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateState(ctx, "missing", State{"volume": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateState() error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateHealth(ctx, "missing", HealthOffline, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateHealth() error = %v, want ErrNotFound", err)
	}

	e := &Entity{ID: "missing", Kind: KindPlayer, Name: "Ghost", HealthStatus: HealthUnknown}
	if err := repo.Update(ctx, e); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}
