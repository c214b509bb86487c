package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "soundweave-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "soundweave/system/status"},
		{"hub status", topics.HubStatus(), "soundweave/hub/status"},
		{"entity state", topics.EntityState("abc123"), "soundweave/entity/abc123/state"},
		{"entity health", topics.EntityHealth("abc123"), "soundweave/entity/abc123/health"},
		{"discovery event", topics.DiscoveryEvent(), "soundweave/discovery/event"},
		{"all entities wildcard", topics.AllEntities(), "soundweave/entity/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	broker := opts.Servers[0].String()
	if broker != "tcp://localhost:1883" {
		t.Errorf("broker = %q, want tcp://localhost:1883", broker)
	}
	if opts.ClientID != "soundweave-test" {
		t.Errorf("client ID = %q, want soundweave-test", opts.ClientID)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	broker := opts.Servers[0].String()
	if !strings.HasPrefix(broker, "ssl://") {
		t.Errorf("broker = %q, want ssl:// scheme", broker)
	}
	if opts.TLSConfig == nil {
		t.Error("expected TLS config to be set")
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("sw"), "online", ""},
		{"graceful offline", buildOfflinePayload("sw"), "offline", "graceful_shutdown"},
		{"lwt", buildLWTPayload("sw"), "offline", "connection_lost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded struct {
				ClientID  string `json:"client_id"`
				Status    string `json:"status"`
				Reason    string `json:"reason"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal(tt.payload, &decoded); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if decoded.ClientID != "sw" {
				t.Errorf("client_id = %q, want sw", decoded.ClientID)
			}
			if decoded.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", decoded.Status, tt.wantStatus)
			}
			if decoded.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", decoded.Reason, tt.wantReason)
			}
			if decoded.Timestamp == "" {
				t.Error("timestamp is empty")
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	if err := c.Publish("", []byte("x"), false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("soundweave/test", []byte("x"), false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{
		cfg:           testMQTTConfig(),
		subscriptions: make(map[string]subscription),
	}
	handler := func(_ string, _ []byte) error { return nil }

	if err := c.Subscribe("", handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("soundweave/test", nil); !errors.Is(err, ErrInvalidHandler) {
		t.Errorf("nil handler error = %v, want ErrInvalidHandler", err)
	}
	if err := c.Subscribe("soundweave/test", handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe error = %v, want ErrNotConnected", err)
	}
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error: %v", err)
	}
}
