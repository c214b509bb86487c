// Package entity manages SoundWeave's audio entities: players and playback
// groups.
//
// The two kinds share one lifecycle and are distinguished by a Kind tag
// rather than separate types. Players are identified by their hub-assigned
// pid; groups by an order-independent hash of their member pids, so group
// identity survives membership reordering.
//
// A Registry fronts a Repository with an in-memory cache. All reads return
// deep copies so callers can never mutate cached state.
package entity
