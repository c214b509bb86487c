// Package audionet connects SoundWeave Core to the audio hub and drives
// player and group discovery.
//
// The hub is the authoritative source of network membership: players joining
// or leaving, playback groups forming or dissolving. The Bridge maintains the
// session to the hub, mirrors membership into a known-entity cache, and
// exposes atomic query-and-clear access to the new/removed deltas. The
// Coordinator schedules scan passes over those deltas and reports additions
// and removals to a discovery result sink.
//
// Players are identified by their hub-assigned pid. Groups are identified by
// an order-independent hash of their member pids, so a group keeps its
// identity when the hub reports members in a different order.
package audionet
