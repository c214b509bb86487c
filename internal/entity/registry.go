package entity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides entity management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache and kept in sync by
// cache-invalidating CRUD operations. All public methods are thread-safe.
// Entities returned from the registry are deep copies; callers can modify
// them without affecting the cache.
type Registry struct {
	repo    Repository
	cache   map[string]*Entity
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new entity registry backed by the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Entity),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entities from the repository into the cache.
// Call on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entities, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Entity, len(entities))
	for i := range entities {
		e := entities[i]
		r.cache[e.ID] = e.DeepCopy()
	}

	r.logger.Info("entity cache refreshed", "count", len(entities))
	return nil
}

// Get retrieves an entity by ID. Returns ErrNotFound if it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Entity, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository for entities not yet cached.
	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = e.DeepCopy()
	r.cacheMu.Unlock()

	return e, nil
}

// List retrieves all entities.
func (r *Registry) List(ctx context.Context) ([]Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		entities := make([]Entity, 0, len(r.cache))
		for _, e := range r.cache {
			entities = append(entities, *e.DeepCopy())
		}
		return entities, nil
	}

	return r.repo.List(ctx)
}

// ListByKind retrieves all entities of a specific kind.
func (r *Registry) ListByKind(ctx context.Context, kind Kind) ([]Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var entities []Entity
		for _, e := range r.cache {
			if e.Kind == kind {
				entities = append(entities, *e.DeepCopy())
			}
		}
		return entities, nil
	}

	return r.repo.ListByKind(ctx, kind)
}

// ListByHealth retrieves all entities with a specific health status.
func (r *Registry) ListByHealth(_ context.Context, status HealthStatus) ([]Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var entities []Entity
	for _, e := range r.cache {
		if e.HealthStatus == status {
			entities = append(entities, *e.DeepCopy())
		}
	}
	return entities, nil
}

// Create validates and persists a new entity.
func (r *Registry) Create(ctx context.Context, e *Entity) error {
	if err := Validate(e); err != nil {
		return err
	}

	if e.HealthStatus == "" {
		e.HealthStatus = HealthUnknown
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("entity created", "id", e.ID, "kind", e.Kind, "name", e.Name)
	return nil
}

// Update validates and persists changes to an existing entity.
func (r *Registry) Update(ctx context.Context, e *Entity) error {
	if err := Validate(e); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("entity updated", "id", e.ID, "name", e.Name)
	return nil
}

// Delete removes an entity.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("entity deleted", "id", id)
	return nil
}

// SetState merges state fields into an entity's playback state.
// Optimised for frequent updates from the hub session.
func (r *Registry) SetState(ctx context.Context, id string, state State) error {
	if err := r.repo.UpdateState(ctx, id, state); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Atomic replacement so concurrent readers never see a half-updated entity.
		updated := cached.DeepCopy()
		if updated.State == nil {
			updated.State = State{}
		}
		for k, v := range deepCopyState(state) {
			updated.State[k] = v
		}
		now := time.Now().UTC()
		updated.StateUpdatedAt = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("entity state updated", "id", id)
	return nil
}

// SetHealth updates an entity's health status and last-seen timestamp.
func (r *Registry) SetHealth(ctx context.Context, id string, status HealthStatus) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateHealth(ctx, id, status, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.HealthLastSeen = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("entity health updated", "id", id, "status", status)
	return nil
}

// Count returns the number of cached entities.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats summarises registry contents for monitoring.
type Stats struct {
	Total    int
	ByKind   map[Kind]int
	ByHealth map[HealthStatus]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		Total:    len(r.cache),
		ByKind:   make(map[Kind]int),
		ByHealth: make(map[HealthStatus]int),
	}

	for _, e := range r.cache {
		stats.ByKind[e.Kind]++
		stats.ByHealth[e.HealthStatus]++
	}

	return stats
}

// Validate checks that an entity has the fields its kind requires.
func Validate(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntity)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	if e.Kind == KindGroup && len(e.MemberPIDs) == 0 {
		return fmt.Errorf("%w: group requires member pids", ErrInvalidEntity)
	}
	return nil
}
