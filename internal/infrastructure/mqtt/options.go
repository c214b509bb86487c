package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
)

// Connection and protocol constants.
const (
	// defaultConnectTimeout is how long to wait for the initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is how long to wait for a publish to complete.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout is how long to wait for a subscribe to complete.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the graceful disconnect window (milliseconds).
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the MQTT keep-alive interval.
	defaultKeepAlive = 60 * time.Second

	// defaultPingTimeout is how long to wait for a ping response.
	defaultPingTimeout = 10 * time.Second

	// maxQoS is the highest valid MQTT quality of service level.
	maxQoS = 2
)

// buildClientOptions constructs paho client options from config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(broker)

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetPingTimeout(defaultPingTimeout)
	opts.SetConnectTimeout(defaultConnectTimeout)

	// Reconnection with exponential backoff handled by paho. InitialDelay is
	// applied via ConnectRetryInterval, MaxDelay caps the backoff.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	// Clean session: subscriptions are tracked client-side and restored on
	// reconnect, so broker-side session state is not needed.
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	return opts
}

// configureLWT sets up the Last Will and Testament message.
//
// The broker publishes this retained message if the client disconnects
// unexpectedly, so subscribers can detect an ungraceful Core crash.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	topic := Topics{}.SystemStatus()
	payload := buildLWTPayload(clientID)
	opts.SetWill(topic, string(payload), 1, true)
}

// buildOnlinePayload creates the online status message.
func buildOnlinePayload(clientID string) []byte {
	return statusPayload(clientID, "online", "")
}

// buildOfflinePayload creates the graceful offline status message.
func buildOfflinePayload(clientID string) []byte {
	return statusPayload(clientID, "offline", "graceful_shutdown")
}

// buildLWTPayload creates the ungraceful offline status message.
func buildLWTPayload(clientID string) []byte {
	return statusPayload(clientID, "offline", "connection_lost")
}

func statusPayload(clientID, status, reason string) []byte {
	ts := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return []byte(fmt.Sprintf(`{"client_id":%q,"status":%q,"timestamp":%q}`,
			clientID, status, ts))
	}
	return []byte(fmt.Sprintf(`{"client_id":%q,"status":%q,"reason":%q,"timestamp":%q}`,
		clientID, status, reason, ts))
}
