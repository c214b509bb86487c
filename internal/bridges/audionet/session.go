package audionet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Session is the wire client to the audio hub.
//
// The hub pushes full membership snapshots; Players and Groups return the
// latest cached snapshot, or ErrNoData before the first push arrives.
// Asynchronous hub events (membership changes, connection loss) are
// delivered on the Events channel.
type Session interface {
	// Open establishes the hub connection and starts the read loop.
	Open(ctx context.Context) error

	// Close shuts the session down. Safe to call more than once.
	Close() error

	// Players returns the latest player snapshot.
	Players(ctx context.Context) ([]Player, error)

	// Groups returns the latest group snapshot.
	Groups(ctx context.Context) ([]PlayerGroup, error)

	// SignIn authenticates the streaming account on the hub.
	SignIn(ctx context.Context, username, password string) error

	// Playlists returns the signed-in account's playlists.
	Playlists(ctx context.Context) ([]Playlist, error)

	// Favorites returns the signed-in account's favorites.
	Favorites(ctx context.Context) ([]Favorite, error)

	// Events returns the asynchronous hub event channel. It is closed when
	// the session shuts down.
	Events() <-chan Event
}

// EventType identifies an asynchronous hub event.
type EventType string

const (
	EventPlayersChanged     EventType = "players_changed"
	EventGroupsChanged      EventType = "groups_changed"
	EventConnectionLost     EventType = "connection_lost"
	EventConnectionRestored EventType = "connection_restored"
	EventSignedIn           EventType = "signed_in"
)

// Event is an asynchronous notification from the hub session.
type Event struct {
	Type EventType
	Err  error
}

// Session wire protocol constants.
const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultWriteDeadline  = 5 * time.Second

	// eventBufferSize bounds the event channel. Events beyond the buffer
	// are dropped; membership events are level-triggered (the next scan
	// re-queries the full delta), so a drop costs latency, not data.
	eventBufferSize = 16

	// missedPongLimit is how many unanswered heartbeats signal a dead
	// connection.
	missedPongLimit = 2
)

// wireMessage is one JSON line on the hub connection, in both directions.
type wireMessage struct {
	Type string `json:"type"`

	// Request fields.
	CID      uint64 `json:"cid,omitempty"`
	Command  string `json:"command,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Response / push fields.
	Result    string        `json:"result,omitempty"`
	Message   string        `json:"message,omitempty"`
	Event     string        `json:"event,omitempty"`
	Players   []Player      `json:"players,omitempty"`
	Groups    []PlayerGroup `json:"groups,omitempty"`
	Playlists []Playlist    `json:"playlists,omitempty"`
	Favorites []Favorite    `json:"favorites,omitempty"`
}

// TCPSession implements Session over a line-delimited JSON TCP connection.
type TCPSession struct {
	host      string
	port      int
	heartbeat time.Duration
	logger    Logger

	conn   net.Conn
	connMu sync.Mutex

	// players/groups hold the latest membership push. snapshotValid flips
	// true on the first push.
	players       []Player
	groups        []PlayerGroup
	snapshotValid bool
	snapshotMu    sync.RWMutex

	// pending maps request cid to the channel awaiting its response.
	pending   map[uint64]chan wireMessage
	pendingMu sync.Mutex
	nextCID   uint64

	// missedPongs counts heartbeats without a pong since the last response.
	missedPongs int
	pongMu      sync.Mutex

	// hbActive prevents a duplicate heartbeat loop when Open is called
	// again after a lost connection.
	hbActive bool
	hbMu     sync.Mutex

	events chan Event

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Logger is the minimal logging interface the session and bridge consume.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TCPSessionOptions configures a TCPSession.
type TCPSessionOptions struct {
	Host string
	Port int

	// Heartbeat is the ping interval. Zero disables heartbeats.
	Heartbeat time.Duration

	// Logger is optional.
	Logger Logger
}

// NewTCPSession creates a hub session. Call Open to connect.
func NewTCPSession(opts TCPSessionOptions) (*TCPSession, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("audionet: host is required")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("audionet: invalid port %d", opts.Port)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &TCPSession{
		host:      opts.Host,
		port:      opts.Port,
		heartbeat: opts.Heartbeat,
		logger:    logger,
		pending:   make(map[uint64]chan wireMessage),
		events:    make(chan Event, eventBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// Open dials the hub and starts the read and heartbeat loops.
func (s *TCPSession) Open(ctx context.Context) error {
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ErrConnectionFailed, addr, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.pongMu.Lock()
	s.missedPongs = 0
	s.pongMu.Unlock()

	s.wg.Add(1)
	go s.readLoop(conn)

	if s.heartbeat > 0 {
		s.hbMu.Lock()
		if !s.hbActive {
			s.hbActive = true
			s.wg.Add(1)
			go s.heartbeatLoop()
		}
		s.hbMu.Unlock()
	}

	s.logger.Info("hub session opened", "addr", addr)
	return nil
}

// Close shuts the session down and closes the event channel.
func (s *TCPSession) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()

		s.wg.Wait()
		s.failPending(ErrSessionClosed)
		close(s.events)
	})
	return nil
}

// Events returns the asynchronous event channel.
func (s *TCPSession) Events() <-chan Event {
	return s.events
}

// Players returns the latest pushed player snapshot.
func (s *TCPSession) Players(_ context.Context) ([]Player, error) {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()

	if !s.snapshotValid {
		return nil, ErrNoData
	}
	out := make([]Player, len(s.players))
	copy(out, s.players)
	return out, nil
}

// Groups returns the latest pushed group snapshot.
func (s *TCPSession) Groups(_ context.Context) ([]PlayerGroup, error) {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()

	if !s.snapshotValid {
		return nil, ErrNoData
	}
	out := make([]PlayerGroup, len(s.groups))
	copy(out, s.groups)
	return out, nil
}

// SignIn authenticates the streaming account.
func (s *TCPSession) SignIn(ctx context.Context, username, password string) error {
	resp, err := s.request(ctx, wireMessage{
		Type:     "request",
		Command:  "sign_in",
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}
	if resp.Result != "ok" {
		return fmt.Errorf("%w: %s", ErrSignInFailed, resp.Message)
	}
	return nil
}

// Playlists fetches the account's playlists from the hub.
func (s *TCPSession) Playlists(ctx context.Context) ([]Playlist, error) {
	resp, err := s.request(ctx, wireMessage{Type: "request", Command: "playlists"})
	if err != nil {
		return nil, err
	}
	return resp.Playlists, nil
}

// Favorites fetches the account's favorites from the hub.
func (s *TCPSession) Favorites(ctx context.Context) ([]Favorite, error) {
	resp, err := s.request(ctx, wireMessage{Type: "request", Command: "favorites"})
	if err != nil {
		return nil, err
	}
	return resp.Favorites, nil
}

// request sends one command and waits for its matching response.
func (s *TCPSession) request(ctx context.Context, msg wireMessage) (wireMessage, error) {
	s.pendingMu.Lock()
	s.nextCID++
	cid := s.nextCID
	ch := make(chan wireMessage, 1)
	s.pending[cid] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, cid)
		s.pendingMu.Unlock()
	}()

	msg.CID = cid
	if err := s.send(msg); err != nil {
		return wireMessage{}, err
	}

	timer := time.NewTimer(defaultRequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return wireMessage{}, fmt.Errorf("%w: %s", ErrRequestTimeout, msg.Command)
	case <-ctx.Done():
		return wireMessage{}, ctx.Err()
	case <-s.done:
		return wireMessage{}, ErrSessionClosed
	}
}

// send writes one JSON line to the hub.
func (s *TCPSession) send(msg wireMessage) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}
	payload = append(payload, '\n')

	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("writing to hub: %w", err)
	}
	return nil
}

// readLoop consumes JSON lines until the connection drops or Close is called.
func (s *TCPSession) readLoop(conn net.Conn) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg wireMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Warn("dropping malformed hub message", "error", err)
			continue
		}
		s.handleMessage(msg)
	}

	select {
	case <-s.done:
		// Shutdown path; connection closed by Close.
	default:
		err := scanner.Err()
		s.logger.Error("hub connection lost", "error", err)
		s.emit(Event{Type: EventConnectionLost, Err: err})
	}
}

// handleMessage dispatches one inbound message.
func (s *TCPSession) handleMessage(msg wireMessage) {
	switch msg.Type {
	case "players":
		s.snapshotMu.Lock()
		s.players = msg.Players
		s.snapshotValid = true
		s.snapshotMu.Unlock()
		s.emit(Event{Type: EventPlayersChanged})

	case "groups":
		s.snapshotMu.Lock()
		s.groups = msg.Groups
		s.snapshotValid = true
		s.snapshotMu.Unlock()
		s.emit(Event{Type: EventGroupsChanged})

	case "event":
		s.handleHubEvent(msg.Event)

	case "pong":
		s.pongMu.Lock()
		s.missedPongs = 0
		s.pongMu.Unlock()

	case "response":
		s.pendingMu.Lock()
		ch, ok := s.pending[msg.CID]
		s.pendingMu.Unlock()
		if ok {
			ch <- msg
		} else {
			s.logger.Debug("response for unknown request", "cid", msg.CID)
		}

	default:
		s.logger.Debug("ignoring unknown hub message", "type", msg.Type)
	}
}

// handleHubEvent maps a hub event name to a session event.
func (s *TCPSession) handleHubEvent(name string) {
	switch name {
	case "players_changed":
		s.emit(Event{Type: EventPlayersChanged})
	case "groups_changed":
		s.emit(Event{Type: EventGroupsChanged})
	case "signed_in":
		s.emit(Event{Type: EventSignedIn})
	default:
		s.logger.Debug("ignoring unknown hub event", "event", name)
	}
}

// heartbeatLoop pings the hub and flags the connection dead after
// missedPongLimit unanswered pings.
func (s *TCPSession) heartbeatLoop() {
	defer func() {
		s.hbMu.Lock()
		s.hbActive = false
		s.hbMu.Unlock()
		s.wg.Done()
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.pongMu.Lock()
			s.missedPongs++
			missed := s.missedPongs
			s.pongMu.Unlock()

			if missed > missedPongLimit {
				s.logger.Error("hub heartbeat lost", "missed", missed)
				s.emit(Event{Type: EventConnectionLost, Err: ErrRequestTimeout})
				return
			}

			if err := s.send(wireMessage{Type: "ping"}); err != nil {
				s.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}

// emit delivers an event without blocking the read loop.
func (s *TCPSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		s.logger.Warn("event channel full, dropping event", "type", ev.Type)
	}
}

// failPending unblocks all in-flight requests with err.
func (s *TCPSession) failPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for cid, ch := range s.pending {
		select {
		case ch <- wireMessage{Type: "response", Result: "error", Message: err.Error(), CID: cid}:
		default:
		}
		delete(s.pending, cid)
	}
}
