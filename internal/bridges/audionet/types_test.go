package audionet

import "testing"

func TestGroupMemberHash_StableUnderReordering(t *testing.T) {
	a := GroupMemberHash([]string{"111", "222", "333"})
	b := GroupMemberHash([]string{"333", "111", "222"})
	c := GroupMemberHash([]string{"222", "333", "111"})

	if a != b || b != c {
		t.Errorf("hash not stable under reordering: %q, %q, %q", a, b, c)
	}
}

func TestGroupMemberHash_DistinctMemberSets(t *testing.T) {
	a := GroupMemberHash([]string{"111", "222"})
	b := GroupMemberHash([]string{"111", "333"})
	c := GroupMemberHash([]string{"111"})

	if a == b {
		t.Errorf("different member sets hashed equal: %q", a)
	}
	if a == c {
		t.Errorf("subset hashed equal to superset: %q", a)
	}
}

func TestGroupMemberHash_SeparatorPreventsConcatenationCollision(t *testing.T) {
	// ["1","23"] and ["12","3"] concatenate identically; the separator must
	// keep them distinct.
	a := GroupMemberHash([]string{"1", "23"})
	b := GroupMemberHash([]string{"12", "3"})

	if a == b {
		t.Errorf("boundary collision: %q", a)
	}
}

func TestGroupMemberHash_InputNotMutated(t *testing.T) {
	members := []string{"333", "111", "222"}
	GroupMemberHash(members)

	if members[0] != "333" || members[1] != "111" || members[2] != "222" {
		t.Errorf("input slice reordered: %v", members)
	}
}

func TestPlayerGroup_MemberHash(t *testing.T) {
	g1 := PlayerGroup{Name: "Downstairs", MemberPIDs: []string{"1", "2", "3"}}
	g2 := PlayerGroup{Name: "Renamed", MemberPIDs: []string{"3", "2", "1"}}

	if g1.MemberHash() != g2.MemberHash() {
		t.Error("group identity changed with member order or name")
	}
}
