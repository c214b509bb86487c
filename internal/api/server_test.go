package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soundweave/soundweave-core/internal/bridges/audionet"
	"github.com/soundweave/soundweave-core/internal/discovery"
	"github.com/soundweave/soundweave-core/internal/entity"
	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
	"github.com/soundweave/soundweave-core/internal/infrastructure/logging"
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

// testServer creates a Server with a real entity registry backed by SQLite
// and a live discovery inbox. No hub connection is wired; hub endpoints
// report unavailable.
func testServer(t *testing.T) (*Server, *entity.Registry, *discovery.Inbox) {
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

	registry := entity.NewRegistry(entity.NewSQLiteRepository(db))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	inbox, err := discovery.NewInbox(discovery.InboxOptions{Store: registry})
	if err != nil {
		t.Fatalf("NewInbox: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret-key-at-least-32-characters-long",
				AccessTokenTTL: 15,
			},
		},
		Logger:   log,
		Registry: registry,
		Inbox:    inbox,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, registry, inbox
}

// doRequest performs a request against the server's router.
func doRequest(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

// loginToken logs in as the dev user and returns the access token.
func loginToken(t *testing.T, srv *Server) string {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login",
		`{"username":"admin","password":"admin"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("login returned empty access token")
	}
	return resp.AccessToken
}

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")

	if _, err := New(Deps{}); err == nil {
		t.Error("New() accepted missing logger")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() accepted missing registry")
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleLogin_RejectsBadCredentials(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login",
		`{"username":"admin","password":"wrong"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "not json", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for invalid body, want 400", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _, _ := testServer(t)

	// No token
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/entities/", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}

	// Garbage token
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/", "", "not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", rec.Code)
	}

	// Valid token
	token := loginToken(t, srv)
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/", "", token)
	if rec.Code != http.StatusOK {
		t.Errorf("status with valid token = %d, want 200", rec.Code)
	}
}

func TestEntityEndpoints(t *testing.T) {
	srv, registry, _ := testServer(t)
	token := loginToken(t, srv)
	ctx := context.Background()

	err := registry.Create(ctx, &entity.Entity{
		ID:           "847291563",
		Kind:         entity.KindPlayer,
		Name:         "Kitchen",
		Model:        "SW Speaker 5",
		Host:         "10.0.1.20",
		HealthStatus: entity.HealthOnline,
	})
	if err != nil {
		t.Fatalf("seeding entity: %v", err)
	}

	// List
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/entities/", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listBody struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if listBody.Count != 1 {
		t.Errorf("count = %d, want 1", listBody.Count)
	}

	// Filter by kind
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/?kind=group", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("kind filter status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("decoding filtered list: %v", err)
	}
	if listBody.Count != 0 {
		t.Errorf("group count = %d, want 0", listBody.Count)
	}

	// Invalid kind
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/?kind=toaster", "", token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid kind status = %d, want 400", rec.Code)
	}

	// Get
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/847291563", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got entity.Entity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding entity: %v", err)
	}
	if got.Name != "Kitchen" {
		t.Errorf("name = %q, want Kitchen", got.Name)
	}

	// Get unknown
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/ghost", "", token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entity status = %d, want 404", rec.Code)
	}

	// Stats
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/entities/stats", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	// Delete
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/entities/847291563", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/entities/847291563", "", token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

func TestDiscoveryEndpoints(t *testing.T) {
	srv, registry, inbox := testServer(t)
	token := loginToken(t, srv)

	inbox.EntityDiscovered(audionet.Result{
		ID:    "12345",
		Kind:  audionet.EntityPlayer,
		Label: "Lounge",
		Properties: map[string]string{
			"name":  "Lounge",
			"pid":   "12345",
			"model": "SW Soundbar",
			"host":  "10.0.1.30",
		},
		BridgeID:  "hub-1",
		Timestamp: time.Now(),
	})

	// List results
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/discovery/results", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("list results status = %d", rec.Code)
	}
	var listBody struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if listBody.Count != 1 {
		t.Errorf("pending results = %d, want 1", listBody.Count)
	}

	// Approve
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/discovery/results/12345/approve", "", token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("approve status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, err := registry.Get(context.Background(), "12345"); err != nil {
		t.Errorf("approved entity missing from registry: %v", err)
	}

	// Approve unknown
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/discovery/results/ghost/approve", "", token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("approve unknown status = %d, want 404", rec.Code)
	}

	// Scan without a coordinator
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/discovery/scan", "", token)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("scan status = %d, want 503", rec.Code)
	}
}

func TestHubEndpointsUnavailableWithoutBridge(t *testing.T) {
	srv, _, _ := testServer(t)
	token := loginToken(t, srv)

	for _, path := range []string{
		"/api/v1/hub/status",
		"/api/v1/hub/playlists",
		"/api/v1/hub/favorites",
	} {
		rec := doRequest(t, srv, http.MethodGet, path, "", token)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	for _, key := range []string{"uptime_seconds", "entities_total", "discovery_pending"} {
		if _, ok := body[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
}

func TestWSTicketFlow(t *testing.T) {
	srv, _, _ := testServer(t)
	token := loginToken(t, srv)

	// Ticket requires auth
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ticket without auth status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket status = %d", rec.Code)
	}

	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding ticket: %v", err)
	}
	if body.Ticket == "" {
		t.Fatal("empty ticket")
	}

	// Ticket is single-use
	entry, ok := srv.validateTicket(body.Ticket)
	if !ok {
		t.Fatal("fresh ticket rejected")
	}
	if entry.userID != "admin" {
		t.Errorf("ticket user = %q, want admin", entry.userID)
	}
	if _, ok := srv.validateTicket(body.Ticket); ok {
		t.Error("ticket accepted twice")
	}

	// WebSocket upgrade without a ticket is rejected
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/ws", "", token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ws without ticket status = %d, want 401", rec.Code)
	}
}

func TestInboxEventsReachSubscribedClients(t *testing.T) {
	srv, _, inbox := testServer(t)
	srv.relayInboxEvents()

	// Simulate a subscribed client by checking hub broadcast plumbing
	// through a directly-registered client.
	client := &WSClient{
		hub:           srv.hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelDiscovery: {}},
	}
	srv.hub.Register(client)
	defer srv.hub.Unregister(client)

	inbox.EntityDiscovered(audionet.Result{
		ID:        "99",
		Kind:      audionet.EntityPlayer,
		Label:     "Hall",
		BridgeID:  "hub-1",
		Timestamp: time.Now(),
	})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding broadcast: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelDiscovery {
			t.Errorf("broadcast = %+v", msg)
		}
	default:
		t.Fatal("no broadcast delivered to subscribed client")
	}
}
