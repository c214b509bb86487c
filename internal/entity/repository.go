package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines entity persistence operations.
// The abstraction keeps the registry testable without a database.
type Repository interface {
	// GetByID retrieves an entity by its unique identifier.
	// Returns ErrNotFound if the entity does not exist.
	GetByID(ctx context.Context, id string) (*Entity, error)

	// List retrieves all entities.
	List(ctx context.Context) ([]Entity, error)

	// ListByKind retrieves all entities of a specific kind.
	ListByKind(ctx context.Context, kind Kind) ([]Entity, error)

	// Create inserts a new entity.
	// Returns ErrExists if an entity with the same ID already exists.
	Create(ctx context.Context, e *Entity) error

	// Update modifies an existing entity.
	// Returns ErrNotFound if the entity does not exist.
	Update(ctx context.Context, e *Entity) error

	// Delete removes an entity by ID.
	// Returns ErrNotFound if the entity does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateState merges state fields into the entity's existing state.
	// Optimised for frequent updates from the hub session.
	UpdateState(ctx context.Context, id string, state State) error

	// UpdateHealth updates the health status and last seen timestamp.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entityColumns = `id, kind, name, model, host, member_pids, state,
	state_updated_at, health_status, health_last_seen, created_at, updated_at`

// GetByID retrieves an entity by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	e, err := scanEntityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entity by id: %w", err)
	}
	return e, nil
}

// List retrieves all entities ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY name`
	return r.queryEntities(ctx, query)
}

// ListByKind retrieves all entities of a specific kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind Kind) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ? ORDER BY name`
	return r.queryEntities(ctx, query, string(kind))
}

// Create inserts a new entity.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entity) error {
	memberJSON, stateJSON, err := marshalEntityFields(e)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO entities (
			id, kind, name, model, host, member_pids, state,
			state_updated_at, health_status, health_last_seen,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		string(e.Kind),
		e.Name,
		nullableString(e.Model),
		nullableString(e.Host),
		memberJSON,
		stateJSON,
		nullableTime(e.StateUpdatedAt),
		string(e.HealthStatus),
		nullableTime(e.HealthLastSeen),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting entity: %w", err)
	}

	return nil
}

// Update modifies an existing entity.
func (r *SQLiteRepository) Update(ctx context.Context, e *Entity) error {
	memberJSON, stateJSON, err := marshalEntityFields(e)
	if err != nil {
		return err
	}

	e.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE entities SET
			kind = ?, name = ?, model = ?, host = ?, member_pids = ?,
			state = ?, state_updated_at = ?, health_status = ?,
			health_last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(e.Kind),
		e.Name,
		nullableString(e.Model),
		nullableString(e.Host),
		memberJSON,
		stateJSON,
		nullableTime(e.StateUpdatedAt),
		string(e.HealthStatus),
		nullableTime(e.HealthLastSeen),
		e.UpdatedAt.Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}

	return requireRowsAffected(result)
}

// Delete removes an entity by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return requireRowsAffected(result)
}

// UpdateState merges the given state fields into the entity's existing state.
// Partial updates preserve keys not present in the patch.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE entities
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(stateJSON), now, now, id)
	if err != nil {
		return fmt.Errorf("updating entity state: %w", err)
	}
	return requireRowsAffected(result)
}

// UpdateHealth updates the health status and last seen timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE entities
		SET health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating entity health: %w", err)
	}
	return requireRowsAffected(result)
}

// queryEntities executes a query and returns the matching entities.
func (r *SQLiteRepository) queryEntities(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return entities, nil
}

// marshalEntityFields marshals the JSON columns of an entity.
func marshalEntityFields(e *Entity) (memberJSON, stateJSON string, err error) {
	members := e.MemberPIDs
	if members == nil {
		members = []string{}
	}
	mb, err := json.Marshal(members)
	if err != nil {
		return "", "", fmt.Errorf("marshalling member_pids: %w", err)
	}

	state := e.State
	if state == nil {
		state = State{}
	}
	sb, err := json.Marshal(state)
	if err != nil {
		return "", "", fmt.Errorf("marshalling state: %w", err)
	}

	return string(mb), string(sb), nil
}

// rowScanner is satisfied by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntityRow scans a row or rows result into an Entity.
func scanEntityRow(scanner rowScanner) (*Entity, error) {
	var e Entity
	var kind, healthStatus string
	var model, host sql.NullString
	var stateUpdatedAt, healthLastSeen sql.NullString
	var memberJSON, stateJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&e.ID,
		&kind,
		&e.Name,
		&model,
		&host,
		&memberJSON,
		&stateJSON,
		&stateUpdatedAt,
		&healthStatus,
		&healthLastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = Kind(kind)
	e.HealthStatus = HealthStatus(healthStatus)

	if model.Valid {
		e.Model = model.String
	}
	if host.Valid {
		e.Host = host.String
	}

	if stateUpdatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, stateUpdatedAt.String); err == nil {
			e.StateUpdatedAt = &t
		}
	}
	if healthLastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, healthLastSeen.String); err == nil {
			e.HealthLastSeen = &t
		}
	}

	var parseErr error
	e.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	e.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(memberJSON), &e.MemberPIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling member_pids: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}

	return &e, nil
}

// requireRowsAffected maps a zero-row result to ErrNotFound.
func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableString returns a sql.NullString that is NULL for empty strings.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (RFC3339).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
