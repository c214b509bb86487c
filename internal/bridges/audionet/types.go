package audionet

import (
	"hash/fnv"
	"sort"
	"strconv"
)

// EntityKind tags a discovered entity as a player or a group.
// Dispatch switches on this tag, never on concrete types.
type EntityKind string

const (
	EntityPlayer EntityKind = "player"
	EntityGroup  EntityKind = "group"
)

// Player is one networked audio endpoint as reported by the hub.
// Identity is the hub-assigned pid. Snapshots are immutable per scan; a
// changed player surfaces as remove+add.
type Player struct {
	PID   string `json:"pid"`
	Name  string `json:"name"`
	Model string `json:"model"`
	IP    string `json:"ip"`
}

// PlayerGroup is a synchronized playback cluster of players.
//
// The hub reports members in arbitrary order. Logical identity is the
// order-independent MemberHash, not the member list as given.
type PlayerGroup struct {
	Name       string   `json:"name"`
	MemberPIDs []string `json:"member_pids"`
	LeaderPID  string   `json:"leader_pid,omitempty"`
}

// MemberHash returns the group's stable identifier.
func (g PlayerGroup) MemberHash() string {
	return GroupMemberHash(g.MemberPIDs)
}

// GroupMemberHash derives a stable, order-independent identifier from a set
// of member pids. The same members in any order produce the same hash.
//
// FNV-1a over the sorted pid list, rendered as an unsigned decimal string.
// Collision resistance only needs to hold for cluster sizes of tens of
// members on one installation.
func GroupMemberHash(memberPIDs []string) string {
	sorted := make([]string, len(memberPIDs))
	copy(sorted, memberPIDs)
	sort.Strings(sorted)

	h := fnv.New32a()
	for _, pid := range sorted {
		h.Write([]byte(pid))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// Playlist is a saved playlist on the signed-in hub account.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Favorite is a favorited station or stream on the signed-in hub account.
type Favorite struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}
