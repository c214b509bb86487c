// Package mqtt provides the SoundWeave MQTT client built on
// paho.mqtt.golang.
//
// The client publishes Core lifecycle status, hub connection state, entity
// state and health transitions, and discovery events under the soundweave/
// topic namespace. A retained Last Will and Testament marks Core offline if
// the process dies without a graceful shutdown.
//
// Subscriptions are tracked client-side and restored automatically after a
// reconnect. Message handlers run with panic recovery so a misbehaving
// handler cannot take down the connection loop.
package mqtt
