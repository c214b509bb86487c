package mqtt

import "fmt"

// Topic namespace constants.
const (
	// topicPrefix is the root of the SoundWeave topic namespace.
	topicPrefix = "soundweave"
)

// Topics provides the SoundWeave MQTT topic scheme.
//
// The namespace is organised as:
//
//	soundweave/system/status            Core online/offline status (retained)
//	soundweave/hub/status               hub connection state (retained)
//	soundweave/entity/{id}/state        playback state changes
//	soundweave/entity/{id}/health       entity online/offline transitions
//	soundweave/discovery/event          discovery additions and removals
//
// The zero value is ready to use.
type Topics struct{}

// SystemStatus returns the topic for Core online/offline status.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// HubStatus returns the topic for the audio hub connection state.
func (Topics) HubStatus() string {
	return topicPrefix + "/hub/status"
}

// EntityState returns the playback state topic for an entity.
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/entity/%s/state", topicPrefix, entityID)
}

// EntityHealth returns the health topic for an entity.
func (Topics) EntityHealth(entityID string) string {
	return fmt.Sprintf("%s/entity/%s/health", topicPrefix, entityID)
}

// DiscoveryEvent returns the topic for discovery additions and removals.
func (Topics) DiscoveryEvent() string {
	return topicPrefix + "/discovery/event"
}

// AllEntities returns a wildcard matching every entity subtopic.
func (Topics) AllEntities() string {
	return topicPrefix + "/entity/#"
}
