// Package discovery holds the inbox of discovered-but-not-yet-adopted audio
// entities.
//
// The scan coordinator reports additions and removals into the inbox;
// operators (or automation) approve results to adopt them into the entity
// registry. Results not reconfirmed by the latest scan are purged as stale.
// Subscribers observe inbox changes, feeding the WebSocket event stream and
// MQTT discovery topic.
package discovery
