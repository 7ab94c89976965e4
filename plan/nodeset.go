package plan

import (
	"cmp"
	"slices"
)

// NodeSet is a duplicate-free set of node handles with a stable total order.
//
// Members are ordered by node path and then by handle, so iteration (and
// anything derived from it, such as successor views and health reports) is
// reproducible across runs regardless of the order edges were added in.
//
// A NodeSet is not safe for concurrent mutation. The plan only mutates sets
// during the single-writer construction phase; afterwards they are read-only.
type NodeSet struct {
	keys []nodeKey
}

// nodeKey carries the sort key alongside the handle so ordering never has to
// consult the arena.
type nodeKey struct {
	path string
	id   NodeID
}

func keyOf(n Identity) nodeKey {
	return nodeKey{path: n.Path(), id: n.ID()}
}

func compareKeys(a, b nodeKey) int {
	if c := cmp.Compare(a.path, b.path); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

func (s *NodeSet) search(k nodeKey) (int, bool) {
	return slices.BinarySearchFunc(s.keys, k, compareKeys)
}

// Add inserts n, reporting whether the set changed.
func (s *NodeSet) Add(n Identity) bool {
	k := keyOf(n)
	i, found := s.search(k)
	if found {
		return false
	}
	s.keys = slices.Insert(s.keys, i, k)
	return true
}

// Remove deletes n, reporting whether the set changed. Removing a node that
// is not a member is a no-op.
func (s *NodeSet) Remove(n Identity) bool {
	i, found := s.search(keyOf(n))
	if !found {
		return false
	}
	s.keys = slices.Delete(s.keys, i, i+1)
	return true
}

// Contains reports whether n is a member.
func (s *NodeSet) Contains(n Identity) bool {
	_, found := s.search(keyOf(n))
	return found
}

// Len returns the number of members.
func (s *NodeSet) Len() int {
	return len(s.keys)
}

// Empty reports whether the set has no members.
func (s *NodeSet) Empty() bool {
	return len(s.keys) == 0
}

// IDs returns the members in ascending order. The slice is a copy.
func (s *NodeSet) IDs() []NodeID {
	ids := make([]NodeID, len(s.keys))
	for i, k := range s.keys {
		ids[i] = k.id
	}
	return ids
}

// Descending returns the members in descending order. The slice is a copy.
func (s *NodeSet) Descending() []NodeID {
	ids := make([]NodeID, len(s.keys))
	for i, k := range s.keys {
		ids[len(s.keys)-1-i] = k.id
	}
	return ids
}

// Paths returns the member paths in ascending order.
func (s *NodeSet) Paths() []string {
	paths := make([]string, len(s.keys))
	for i, k := range s.keys {
		paths[i] = k.path
	}
	return paths
}
