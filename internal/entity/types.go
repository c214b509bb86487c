package entity

import "time"

// Kind discriminates the two entity variants SoundWeave manages.
//
// Dispatch on Kind rather than on concrete types: a player and a group share
// the same lifecycle (discovered, approved, online/offline, removed) and
// differ only in the fields that apply.
type Kind string

const (
	// KindPlayer is a single audio device, identified by its
	// device-assigned pid.
	KindPlayer Kind = "player"

	// KindGroup is a playback group, identified by an order-independent
	// hash of its member pids.
	KindGroup Kind = "group"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	return k == KindPlayer || k == KindGroup
}

// HealthStatus represents an entity's reachability.
type HealthStatus string

const (
	HealthOnline  HealthStatus = "online"
	HealthOffline HealthStatus = "offline"
	HealthUnknown HealthStatus = "unknown"
)

// State holds playback state as loosely-typed key-value pairs
// (volume, mute, play state, now-playing metadata).
type State map[string]any

// Entity is a managed audio entity: a player or a playback group.
//
// For players, ID is the hub-assigned pid and Model/Host are populated.
// For groups, ID is the member hash and MemberPIDs lists the member pids.
type Entity struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	// Player fields.
	Model string `json:"model,omitempty"`
	Host  string `json:"host,omitempty"`

	// Group fields.
	MemberPIDs []string `json:"member_pids,omitempty"`

	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a fully independent copy of the entity.
// Used by the registry so cached entities can never be mutated by callers.
func (e *Entity) DeepCopy() *Entity {
	if e == nil {
		return nil
	}

	cp := *e

	if e.MemberPIDs != nil {
		cp.MemberPIDs = make([]string, len(e.MemberPIDs))
		copy(cp.MemberPIDs, e.MemberPIDs)
	}

	if e.State != nil {
		cp.State = deepCopyState(e.State)
	}

	if e.StateUpdatedAt != nil {
		t := *e.StateUpdatedAt
		cp.StateUpdatedAt = &t
	}
	if e.HealthLastSeen != nil {
		t := *e.HealthLastSeen
		cp.HealthLastSeen = &t
	}

	return &cp
}

// deepCopyState copies a state map, recursing into nested maps and slices.
func deepCopyState(src State) State {
	dst := make(State, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, nested := range val {
			m[k] = deepCopyValue(nested)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, nested := range val {
			s[i] = deepCopyValue(nested)
		}
		return s
	default:
		return v
	}
}
