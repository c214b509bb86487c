package entity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	entities map[string]*Entity

	listErr   error
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{entities: make(map[string]*Entity)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.DeepCopy(), nil
}

func (m *mockRepository) List(_ context.Context) ([]Entity, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, *e.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) ListByKind(_ context.Context, kind Kind) ([]Entity, error) {
	var out []Entity
	for _, e := range m.entities {
		if e.Kind == kind {
			out = append(out, *e.DeepCopy())
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, e *Entity) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.entities[e.ID]; ok {
		return ErrExists
	}
	m.entities[e.ID] = e.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, e *Entity) error {
	if _, ok := m.entities[e.ID]; !ok {
		return ErrNotFound
	}
	m.entities[e.ID] = e.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.entities[id]; !ok {
		return ErrNotFound
	}
	delete(m.entities, id)
	return nil
}

func (m *mockRepository) UpdateState(_ context.Context, id string, state State) error {
	e, ok := m.entities[id]
	if !ok {
		return ErrNotFound
	}
	if e.State == nil {
		e.State = State{}
	}
	for k, v := range state {
		e.State[k] = v
	}
	now := time.Now().UTC()
	e.StateUpdatedAt = &now
	return nil
}

func (m *mockRepository) UpdateHealth(_ context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	e, ok := m.entities[id]
	if !ok {
		return ErrNotFound
	}
	e.HealthStatus = status
	e.HealthLastSeen = &lastSeen
	return nil
}

func testPlayer(id, name string) *Entity {
	return &Entity{
		ID:    id,
		Kind:  KindPlayer,
		Name:  name,
		Model: "SW Speaker 5",
		Host:  "10.0.1.20",
	}
}

func testGroup(id, name string, members ...string) *Entity {
	return &Entity{
		ID:         id,
		Kind:       KindGroup,
		Name:       name,
		MemberPIDs: members,
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	player := testPlayer("123456", "Kitchen")
	if err := reg.Create(ctx, player); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := reg.Get(ctx, "123456")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "Kitchen" || got.Kind != KindPlayer {
		t.Errorf("Get() = %+v, want Kitchen player", got)
	}
	if got.HealthStatus != HealthUnknown {
		t.Errorf("new entity health = %q, want unknown", got.HealthStatus)
	}
}

func TestRegistry_Get_NotFound(t *testing.T) {
	reg := NewRegistry(newMockRepository())

	_, err := reg.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Create_Validation(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	tests := []struct {
		name    string
		e       *Entity
		wantErr error
	}{
		{"missing id", &Entity{Kind: KindPlayer, Name: "x"}, ErrInvalidEntity},
		{"missing name", &Entity{ID: "1", Kind: KindPlayer}, ErrInvalidEntity},
		{"bad kind", &Entity{ID: "1", Kind: "zone", Name: "x"}, ErrInvalidKind},
		{"group without members", &Entity{ID: "1", Kind: KindGroup, Name: "x"}, ErrInvalidEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Create(ctx, tt.e); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_GetReturnsDeepCopy(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	group := testGroup("987654", "Downstairs", "111", "222")
	if err := reg.Create(ctx, group); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	first, err := reg.Get(ctx, "987654")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	first.Name = "Mutated"
	first.MemberPIDs[0] = "999"

	second, err := reg.Get(ctx, "987654")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if second.Name != "Downstairs" {
		t.Errorf("cache mutated through returned copy: name = %q", second.Name)
	}
	if second.MemberPIDs[0] != "111" {
		t.Errorf("cache mutated through returned slice: member = %q", second.MemberPIDs[0])
	}
}

func TestRegistry_ListByKind(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	if err := reg.Create(ctx, testPlayer("1", "Kitchen")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := reg.Create(ctx, testPlayer("2", "Lounge")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := reg.Create(ctx, testGroup("g1", "Downstairs", "1", "2")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	players, err := reg.ListByKind(ctx, KindPlayer)
	if err != nil {
		t.Fatalf("ListByKind() error: %v", err)
	}
	if len(players) != 2 {
		t.Errorf("got %d players, want 2", len(players))
	}

	groups, err := reg.ListByKind(ctx, KindGroup)
	if err != nil {
		t.Fatalf("ListByKind() error: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("got %d groups, want 1", len(groups))
	}
}

func TestRegistry_SetHealth(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	if err := reg.Create(ctx, testPlayer("1", "Kitchen")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := reg.SetHealth(ctx, "1", HealthOnline); err != nil {
		t.Fatalf("SetHealth() error: %v", err)
	}

	got, err := reg.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.HealthStatus != HealthOnline {
		t.Errorf("health = %q, want online", got.HealthStatus)
	}
	if got.HealthLastSeen == nil {
		t.Error("health last seen not set")
	}
}

func TestRegistry_SetState_MergesKeys(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	player := testPlayer("1", "Kitchen")
	player.State = State{"volume": 30, "mute": false}
	if err := reg.Create(ctx, player); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := reg.SetState(ctx, "1", State{"volume": 45}); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}

	got, err := reg.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State["volume"] != 45 {
		t.Errorf("volume = %v, want 45", got.State["volume"])
	}
	if got.State["mute"] != false {
		t.Errorf("mute lost during partial state update: %v", got.State["mute"])
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	if err := reg.Create(ctx, testPlayer("1", "Kitchen")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := reg.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := reg.Get(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := reg.Delete(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := newMockRepository()
	repo.entities["1"] = testPlayer("1", "Kitchen")
	repo.entities["2"] = testGroup("g1", "Downstairs", "1", "2")
	repo.entities["2"].ID = "2"

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error: %v", err)
	}
	if reg.Count() != 2 {
		t.Errorf("Count() = %d, want 2", reg.Count())
	}
}

func TestRegistry_GetStats(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	if err := reg.Create(ctx, testPlayer("1", "Kitchen")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := reg.Create(ctx, testGroup("g1", "Downstairs", "1", "2")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := reg.SetHealth(ctx, "1", HealthOnline); err != nil {
		t.Fatalf("SetHealth() error: %v", err)
	}

	stats := reg.GetStats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByKind[KindPlayer] != 1 || stats.ByKind[KindGroup] != 1 {
		t.Errorf("ByKind = %v, want one of each", stats.ByKind)
	}
	if stats.ByHealth[HealthOnline] != 1 {
		t.Errorf("ByHealth[online] = %d, want 1", stats.ByHealth[HealthOnline])
	}
}
