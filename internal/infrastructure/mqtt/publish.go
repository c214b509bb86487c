package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Publish sends a message to the specified topic.
//
// The message is published with the configured QoS level. Retained messages
// are stored by the broker and delivered to new subscribers.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidTopic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: publish to %s timed out", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON marshals v to JSON and publishes it to the topic.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshaling payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, retained)
}

// DiscoveryEvent is published on soundweave/discovery/event when an entity
// appears in or disappears from the discovery inbox.
type DiscoveryEvent struct {
	// Event is "discovered" or "removed".
	Event string `json:"event"`

	// Kind is "player" or "group".
	Kind string `json:"kind"`

	EntityID  string    `json:"entity_id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDiscoveryEvent publishes a discovery event (not retained; events
// are transient).
func (c *Client) PublishDiscoveryEvent(event DiscoveryEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return c.PublishJSON(Topics{}.DiscoveryEvent(), event, false)
}

// EntityHealthEvent is published on soundweave/entity/{id}/health when an
// entity transitions between online and offline.
type EntityHealthEvent struct {
	EntityID  string    `json:"entity_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishEntityHealth publishes an entity health transition (retained, so
// late subscribers see the current state).
func (c *Client) PublishEntityHealth(entityID, status string) error {
	event := EntityHealthEvent{
		EntityID:  entityID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	return c.PublishJSON(Topics{}.EntityHealth(entityID), event, true)
}

// HubStatusEvent is published on soundweave/hub/status when the hub
// connection state changes.
type HubStatusEvent struct {
	State     string    `json:"state"`
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishHubStatus publishes the hub connection state (retained).
func (c *Client) PublishHubStatus(state, host string) error {
	event := HubStatusEvent{
		State:     state,
		Host:      host,
		Timestamp: time.Now().UTC(),
	}
	return c.PublishJSON(Topics{}.HubStatus(), event, true)
}
