package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soundweave/soundweave-core/internal/bridges/audionet"
	"github.com/soundweave/soundweave-core/internal/entity"
)

// Sentinel errors for inbox operations.
var (
	// ErrResultNotFound indicates the requested result is not in the inbox.
	ErrResultNotFound = errors.New("discovery: result not found")
)

// EventType identifies an inbox change.
type EventType string

const (
	EventDiscovered EventType = "discovered"
	EventRemoved    EventType = "removed"
	EventApproved   EventType = "approved"
	EventPurged     EventType = "purged"
)

// Event is one inbox change, delivered to subscribers in order.
type Event struct {
	Type   EventType
	Result audionet.Result
}

// Subscriber receives inbox change events. Callbacks run synchronously on
// the mutating goroutine and must not block.
type Subscriber func(Event)

// EntityStore is the registry surface the inbox needs for adoption.
type EntityStore interface {
	Create(ctx context.Context, e *entity.Entity) error
}

// Logger is the minimal logging interface the inbox consumes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// InboxOptions configures an Inbox.
type InboxOptions struct {
	// Store adopts approved results into the entity registry. Required.
	Store EntityStore

	// Logger is optional.
	Logger Logger
}

// Inbox is the in-memory discovery result sink.
//
// Scan passes report discovered and removed entities here; results wait in
// the inbox until approved into the entity registry or purged as stale.
// Re-reporting an existing result reconfirms it, refreshing its timestamp.
// Inbox state is not persisted; a restart starts empty and the next scan
// repopulates it.
type Inbox struct {
	store  EntityStore
	logger Logger

	results map[string]audionet.Result
	mu      sync.RWMutex

	subscribers []Subscriber
	subMu       sync.RWMutex
}

// NewInbox creates a discovery inbox.
func NewInbox(opts InboxOptions) (*Inbox, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("discovery: entity store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Inbox{
		store:   opts.Store,
		logger:  logger,
		results: make(map[string]audionet.Result),
	}, nil
}

// Subscribe registers a callback for inbox change events.
func (i *Inbox) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	i.subMu.Lock()
	i.subscribers = append(i.subscribers, s)
	i.subMu.Unlock()
}

func (i *Inbox) notify(ev Event) {
	i.subMu.RLock()
	subs := make([]Subscriber, len(i.subscribers))
	copy(subs, i.subscribers)
	i.subMu.RUnlock()

	for _, s := range subs {
		s(ev)
	}
}

// EntityDiscovered adds or reconfirms a result. Implements
// audionet.ResultSink.
func (i *Inbox) EntityDiscovered(result audionet.Result) {
	i.mu.Lock()
	_, known := i.results[result.ID]
	i.results[result.ID] = result
	i.mu.Unlock()

	if known {
		i.logger.Debug("discovery result reconfirmed", "id", result.ID)
		return
	}

	i.logger.Info("discovery result added",
		"id", result.ID,
		"kind", result.Kind,
		"label", result.Label,
	)
	i.notify(Event{Type: EventDiscovered, Result: result})
}

// EntityRemoved drops a result. Implements audionet.ResultSink.
// Removing an unknown id is a no-op.
func (i *Inbox) EntityRemoved(id string) {
	i.mu.Lock()
	result, known := i.results[id]
	delete(i.results, id)
	i.mu.Unlock()

	if !known {
		return
	}

	i.logger.Info("discovery result removed", "id", id)
	i.notify(Event{Type: EventRemoved, Result: result})
}

// PurgeResultsOlderThan drops all results whose timestamp is before cutoff.
// Implements audionet.ResultSink.
func (i *Inbox) PurgeResultsOlderThan(cutoff time.Time) {
	i.mu.Lock()
	var purged []audionet.Result
	for id, result := range i.results {
		if result.Timestamp.Before(cutoff) {
			purged = append(purged, result)
			delete(i.results, id)
		}
	}
	i.mu.Unlock()

	for _, result := range purged {
		i.logger.Info("stale discovery result purged", "id", result.ID)
		i.notify(Event{Type: EventPurged, Result: result})
	}
}

// List returns all pending results ordered by label.
func (i *Inbox) List() []audionet.Result {
	i.mu.RLock()
	out := make([]audionet.Result, 0, len(i.results))
	for _, result := range i.results {
		out = append(out, result)
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Label != out[b].Label {
			return out[a].Label < out[b].Label
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Get returns one pending result.
func (i *Inbox) Get(id string) (audionet.Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result, ok := i.results[id]
	if !ok {
		return audionet.Result{}, ErrResultNotFound
	}
	return result, nil
}

// Count returns the number of pending results.
func (i *Inbox) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.results)
}

// Approve adopts a pending result into the entity registry and removes it
// from the inbox. The result stays in the inbox if adoption fails.
func (i *Inbox) Approve(ctx context.Context, id string) (*entity.Entity, error) {
	i.mu.RLock()
	result, ok := i.results[id]
	i.mu.RUnlock()

	if !ok {
		return nil, ErrResultNotFound
	}

	e := entityFromResult(result)
	if err := i.store.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("adopting discovery result %s: %w", id, err)
	}

	i.mu.Lock()
	delete(i.results, id)
	i.mu.Unlock()

	i.logger.Info("discovery result approved", "id", id, "kind", e.Kind)
	i.notify(Event{Type: EventApproved, Result: result})

	return e, nil
}

// entityFromResult maps a discovery result onto an entity record.
func entityFromResult(result audionet.Result) *entity.Entity {
	e := &entity.Entity{
		ID:           result.ID,
		Name:         result.Label,
		HealthStatus: entity.HealthUnknown,
	}

	switch result.Kind {
	case audionet.EntityGroup:
		e.Kind = entity.KindGroup
		e.MemberPIDs = splitMembers(result.Properties["members"])
	default:
		e.Kind = entity.KindPlayer
		e.Model = result.Properties["model"]
		e.Host = result.Properties["host"]
	}

	if e.Name == "" {
		e.Name = result.ID
	}

	return e
}

// splitMembers parses the comma-joined member list property.
func splitMembers(members string) []string {
	if members == "" {
		return nil
	}
	return strings.Split(members, ",")
}
