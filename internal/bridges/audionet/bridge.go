package audionet

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ConnState is the bridge connection state.
//
// Transitions: Disconnected -> Connecting -> Connected -> Disposing.
// A lost connection moves Connected back to Connecting; Disposing is
// terminal until the next Connect.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisposing
)

// String returns the state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisposing:
		return "disposing"
	default:
		return "unknown"
	}
}

// MembershipListener is notified when the hub's membership changes.
// Listeners are invoked in registration order, from the bridge's event
// goroutine; they must not block.
type MembershipListener interface {
	PlayersChanged()
	GroupsChanged()
}

// StatusHandler receives entity online/offline transitions from the bridge.
type StatusHandler interface {
	SetEntityOnline(id string)
	SetEntityOffline(id string)
}

// ReconnectPolicy bounds the connection retry loop.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// MaxAttempts caps connection attempts. Zero means unlimited.
	MaxAttempts int
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// ID identifies this bridge; discovery results are scoped under it.
	ID string

	// Session is the hub wire client. Required.
	Session Session

	Reconnect ReconnectPolicy

	// Username and Password are optional streaming-account credentials.
	// When set, the bridge signs in after connecting and loads playlists
	// and favorites.
	Username string
	Password string

	// StatusHandler receives entity status transitions. Optional.
	StatusHandler StatusHandler

	// Logger is optional.
	Logger Logger
}

// Bridge is the connection facade to the audio hub.
//
// It owns the known-entity cache (pid -> Player, group-hash -> PlayerGroup)
// and the pending new/removed delta sets. Each query method
// (NewPlayers/NewGroups/RemovedGroups/RemovedPlayers) is an atomic
// query-and-clear under one mutex, so two concurrent scans can never
// double-report or drop an entity. A given pid or group hash is reported as
// new at most once until it is reported removed and then reappears.
type Bridge struct {
	id      string
	session Session
	policy  ReconnectPolicy
	logger  Logger

	username string
	password string

	state   ConnState
	stateMu sync.Mutex

	// Membership state. One mutex covers the known cache, the pending
	// deltas, and the validity flags; query-and-clear atomicity depends
	// on it.
	knownPlayers   map[string]Player
	knownGroups    map[string]PlayerGroup
	newPlayers     map[string]Player
	newGroups      map[string]PlayerGroup
	removedPlayers map[string]Player
	removedGroups  map[string]PlayerGroup
	playersValid   bool
	groupsValid    bool
	membershipMu   sync.Mutex

	listeners   []MembershipListener
	listenersMu sync.RWMutex

	statusHandler StatusHandler

	playlists []Playlist
	favorites []Favorite
	libraryMu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBridge creates a bridge over the given session. Call Connect to bring
// it up.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("audionet: session is required")
	}
	if opts.ID == "" {
		return nil, fmt.Errorf("audionet: bridge id is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	policy := opts.Reconnect
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 2 * time.Minute
	}

	return &Bridge{
		id:             opts.ID,
		session:        opts.Session,
		policy:         policy,
		logger:         logger,
		username:       opts.Username,
		password:       opts.Password,
		statusHandler:  opts.StatusHandler,
		state:          StateDisconnected,
		knownPlayers:   make(map[string]Player),
		knownGroups:    make(map[string]PlayerGroup),
		newPlayers:     make(map[string]Player),
		newGroups:      make(map[string]PlayerGroup),
		removedPlayers: make(map[string]Player),
		removedGroups:  make(map[string]PlayerGroup),
		done:           make(chan struct{}),
	}, nil
}

// ID returns the bridge identity.
func (b *Bridge) ID() string {
	return b.id
}

// State returns the current connection state.
func (b *Bridge) State() ConnState {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *Bridge) setState(s ConnState) {
	b.stateMu.Lock()
	prev := b.state
	b.state = s
	b.stateMu.Unlock()

	if prev != s {
		b.logger.Info("bridge state changed", "from", prev, "to", s)
	}
}

// Connect brings the bridge up: opens the session with bounded exponential
// backoff, signs in when an account is configured, seeds the membership
// cache, and starts the event loop.
//
// Returns ErrAlreadyConnected unless the bridge is Disconnected.
func (b *Bridge) Connect(ctx context.Context) error {
	b.stateMu.Lock()
	if b.state != StateDisconnected {
		b.stateMu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyConnected, b.state)
	}
	b.state = StateConnecting
	b.stateMu.Unlock()

	if err := b.openWithBackoff(ctx); err != nil {
		b.setState(StateDisconnected)
		return err
	}

	if b.username != "" {
		b.signIn(ctx)
	}

	b.refreshMembership(ctx)
	b.setState(StateConnected)

	b.wg.Add(1)
	go b.eventLoop()

	return nil
}

// openWithBackoff retries session.Open with exponential backoff until it
// succeeds, the attempt budget is spent, or ctx is cancelled.
func (b *Bridge) openWithBackoff(ctx context.Context) error {
	delay := b.policy.InitialDelay

	for attempt := 1; ; attempt++ {
		err := b.session.Open(ctx)
		if err == nil {
			if attempt > 1 {
				b.logger.Info("hub connection established", "attempt", attempt)
			}
			return nil
		}

		b.logger.Warn("hub connection attempt failed",
			"attempt", attempt,
			"error", err,
			"retry_in", delay,
		)

		if b.policy.MaxAttempts > 0 && attempt >= b.policy.MaxAttempts {
			return fmt.Errorf("%w: %d attempts exhausted: %w", ErrConnectionFailed, attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		case <-b.done:
			return ErrSessionClosed
		case <-time.After(delay):
		}

		delay *= 2
		if delay > b.policy.MaxDelay {
			delay = b.policy.MaxDelay
		}
	}
}

// signIn authenticates the account and loads playlists and favorites.
// Failures are logged, not fatal: discovery works without an account.
func (b *Bridge) signIn(ctx context.Context) {
	if err := b.session.SignIn(ctx, b.username, b.password); err != nil {
		b.logger.Warn("hub sign-in failed", "username", b.username, "error", err)
		return
	}
	b.logger.Info("hub sign-in complete", "username", b.username)
	b.loadLibrary(ctx)
}

// loadLibrary refreshes the cached playlists and favorites.
func (b *Bridge) loadLibrary(ctx context.Context) {
	playlists, err := b.session.Playlists(ctx)
	if err != nil {
		b.logger.Warn("loading playlists failed", "error", err)
	}
	favorites, err := b.session.Favorites(ctx)
	if err != nil {
		b.logger.Warn("loading favorites failed", "error", err)
	}

	b.libraryMu.Lock()
	b.playlists = playlists
	b.favorites = favorites
	b.libraryMu.Unlock()
}

// Playlists returns the cached account playlists.
func (b *Bridge) Playlists() []Playlist {
	b.libraryMu.RLock()
	defer b.libraryMu.RUnlock()
	out := make([]Playlist, len(b.playlists))
	copy(out, b.playlists)
	return out
}

// Favorites returns the cached account favorites.
func (b *Bridge) Favorites() []Favorite {
	b.libraryMu.RLock()
	defer b.libraryMu.RUnlock()
	out := make([]Favorite, len(b.favorites))
	copy(out, b.favorites)
	return out
}

// Close disposes the bridge: stops the event loop and closes the session.
// Safe to call more than once.
func (b *Bridge) Close() error {
	b.stopOnce.Do(func() {
		b.setState(StateDisposing)
		close(b.done)

		if err := b.session.Close(); err != nil {
			// Teardown interruptions are logged, never fatal.
			b.logger.Warn("closing hub session", "error", err)
		}

		b.wg.Wait()
		b.setState(StateDisconnected)
	})
	return nil
}

// eventLoop consumes session events until shutdown.
func (b *Bridge) eventLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case ev, ok := <-b.session.Events():
			if !ok {
				return
			}
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) handleEvent(ev Event) {
	switch ev.Type {
	case EventPlayersChanged:
		b.refreshMembership(context.Background())
		b.notifyPlayersChanged()

	case EventGroupsChanged:
		b.refreshMembership(context.Background())
		b.notifyGroupsChanged()

	case EventConnectionLost:
		b.logger.Warn("hub connection lost", "error", ev.Err)
		b.setState(StateConnecting)
		// Membership is stale until the next push after reconnect.
		b.invalidateMembership()
		b.reconnect()

	case EventConnectionRestored:
		b.setState(StateConnected)
		b.refreshMembership(context.Background())
		b.notifyPlayersChanged()

	case EventSignedIn:
		b.loadLibrary(context.Background())
	}
}

// reconnect re-opens the session after a lost connection. Runs inside the
// event loop; no session events flow while disconnected, so blocking here
// is safe.
func (b *Bridge) reconnect() {
	if err := b.openWithBackoff(context.Background()); err != nil {
		b.logger.Error("hub reconnect failed", "error", err)
		b.setState(StateDisconnected)
		return
	}

	if b.username != "" {
		b.signIn(context.Background())
	}

	b.setState(StateConnected)
	b.refreshMembership(context.Background())
	b.notifyPlayersChanged()
	b.notifyGroupsChanged()
}

// refreshMembership queries the session snapshots and folds the diff against
// the known cache into the pending new/removed sets.
func (b *Bridge) refreshMembership(ctx context.Context) {
	players, playersErr := b.session.Players(ctx)
	groups, groupsErr := b.session.Groups(ctx)

	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	if playersErr != nil {
		b.playersValid = false
		b.logger.Debug("no player data this refresh", "error", playersErr)
	} else {
		b.diffPlayers(players)
		b.playersValid = true
	}

	if groupsErr != nil {
		b.groupsValid = false
		b.logger.Debug("no group data this refresh", "error", groupsErr)
	} else {
		b.diffGroups(groups)
		b.groupsValid = true
	}
}

// invalidateMembership flags both snapshots stale. Callers of
// NewPlayers/NewGroups see the absent sentinel until the next refresh.
func (b *Bridge) invalidateMembership() {
	b.membershipMu.Lock()
	b.playersValid = false
	b.groupsValid = false
	b.membershipMu.Unlock()
}

// diffPlayers updates pending deltas from a fresh player snapshot.
// Caller holds membershipMu.
func (b *Bridge) diffPlayers(players []Player) {
	current := make(map[string]Player, len(players))
	for _, p := range players {
		current[p.PID] = p
	}

	for pid, p := range current {
		if _, known := b.knownPlayers[pid]; !known {
			b.newPlayers[pid] = p
			// A reappearing player cancels its pending removal.
			delete(b.removedPlayers, pid)
		}
	}

	for pid, p := range b.knownPlayers {
		if _, present := current[pid]; !present {
			if _, pendingNew := b.newPlayers[pid]; pendingNew {
				// Appeared and vanished between queries; report neither.
				delete(b.newPlayers, pid)
				continue
			}
			b.removedPlayers[pid] = p
		}
	}

	b.knownPlayers = current
}

// diffGroups updates pending deltas from a fresh group snapshot, keyed by
// the order-independent member hash. Caller holds membershipMu.
func (b *Bridge) diffGroups(groups []PlayerGroup) {
	current := make(map[string]PlayerGroup, len(groups))
	for _, g := range groups {
		current[g.MemberHash()] = g
	}

	for hash, g := range current {
		if _, known := b.knownGroups[hash]; !known {
			b.newGroups[hash] = g
			delete(b.removedGroups, hash)
		}
	}

	for hash, g := range b.knownGroups {
		if _, present := current[hash]; !present {
			if _, pendingNew := b.newGroups[hash]; pendingNew {
				delete(b.newGroups, hash)
				continue
			}
			b.removedGroups[hash] = g
		}
	}

	b.knownGroups = current
}

// NewPlayers atomically takes the pending new-player set.
//
// Returns nil (the absent sentinel) when no valid membership data is
// available; an empty non-nil map means "nothing new". The absent state
// clears on read so the next refresh is retried cleanly.
func (b *Bridge) NewPlayers() map[string]Player {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	if !b.playersValid {
		return nil
	}
	out := b.newPlayers
	b.newPlayers = make(map[string]Player)
	return out
}

// NewGroups atomically takes the pending new-group set, keyed by member
// hash. Returns nil when no valid membership data is available.
func (b *Bridge) NewGroups() map[string]PlayerGroup {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	if !b.groupsValid {
		return nil
	}
	out := b.newGroups
	b.newGroups = make(map[string]PlayerGroup)
	return out
}

// RemovedGroups atomically takes the pending removed-group set. Never nil.
func (b *Bridge) RemovedGroups() map[string]PlayerGroup {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	out := b.removedGroups
	b.removedGroups = make(map[string]PlayerGroup)
	return out
}

// RemovedPlayers atomically takes the pending removed-player set. Never nil.
func (b *Bridge) RemovedPlayers() map[string]Player {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	out := b.removedPlayers
	b.removedPlayers = make(map[string]Player)
	return out
}

// KnownPlayers returns a copy of the current known-player cache.
func (b *Bridge) KnownPlayers() map[string]Player {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	out := make(map[string]Player, len(b.knownPlayers))
	for pid, p := range b.knownPlayers {
		out[pid] = p
	}
	return out
}

// KnownGroups returns a copy of the current known-group cache.
func (b *Bridge) KnownGroups() map[string]PlayerGroup {
	b.membershipMu.Lock()
	defer b.membershipMu.Unlock()

	out := make(map[string]PlayerGroup, len(b.knownGroups))
	for hash, g := range b.knownGroups {
		out[hash] = g
	}
	return out
}

// RegisterMembershipListener appends a listener to the ordered fan-out list.
func (b *Bridge) RegisterMembershipListener(l MembershipListener) {
	if l == nil {
		return
	}
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, l)
	b.listenersMu.Unlock()
}

func (b *Bridge) notifyPlayersChanged() {
	b.listenersMu.RLock()
	listeners := make([]MembershipListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, l := range listeners {
		l.PlayersChanged()
	}
}

func (b *Bridge) notifyGroupsChanged() {
	b.listenersMu.RLock()
	listeners := make([]MembershipListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, l := range listeners {
		l.GroupsChanged()
	}
}

// SetEntityStatusOnline passes an online transition to the status handler.
func (b *Bridge) SetEntityStatusOnline(id string) {
	if b.statusHandler != nil {
		b.statusHandler.SetEntityOnline(id)
	}
}

// SetEntityStatusOffline passes an offline transition to the status handler.
func (b *Bridge) SetEntityStatusOffline(id string) {
	if b.statusHandler != nil {
		b.statusHandler.SetEntityOffline(id)
	}
}
