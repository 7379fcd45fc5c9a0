// Package ring implements the consistent hash ring used for key placement.
//
// Each physical node contributes V virtual positions to the ring so that
// ownership is spread evenly rather than in a handful of large arcs. The
// ring is built once from the fixed node set at startup and never mutated
// afterward (the node set is fixed — see spec Non-goals on dynamic
// membership), so lookups never need to take a lock.
//
// This is the direct descendant of ppriyankuu-godkv's
// internal/cluster/ring.go: same SHA-based virtual-node ring, generalized
// from a 32-bit position space to the spec's 64-bit hash and from an
// AddNode/RemoveNode mutable ring to an immutable one built once from the
// full node set (no dynamic membership in this core).
package ring

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"
)

// NodeID is a stable identifier for a cluster peer, conventionally
// "host:port".
type NodeID string

type vnode struct {
	hash uint64
	node NodeID
}

// Ring is an immutable consistent hash ring built from a fixed node set.
type Ring struct {
	vnodes    int
	positions []vnode
	nodes     []NodeID // distinct physical nodes, sorted
}

// New builds a ring over nodes with v virtual positions per physical node.
// Two rings built from the same node set and v produce bit-identical
// preference lists for every key, on every node, because hashKey/hashVnode
// are pure functions of their inputs.
func New(nodes []NodeID, v int) *Ring {
	if v < 1 {
		v = 1
	}
	r := &Ring{vnodes: v}

	seen := make(map[NodeID]bool, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		r.nodes = append(r.nodes, n)

		for i := 0; i < v; i++ {
			r.positions = append(r.positions, vnode{
				hash: hashVnode(n, i),
				node: n,
			})
		}
	}

	sort.Slice(r.nodes, func(i, j int) bool { return r.nodes[i] < r.nodes[j] })
	sort.Slice(r.positions, func(i, j int) bool {
		if r.positions[i].hash != r.positions[j].hash {
			return r.positions[i].hash < r.positions[j].hash
		}
		// Ties on position are broken by NodeID lex order (spec §3).
		return r.positions[i].node < r.positions[j].node
	})

	return r
}

// NodeCount returns the number of distinct physical nodes in the ring.
func (r *Ring) NodeCount() int {
	return len(r.nodes)
}

// VNodes returns the number of virtual positions each physical node
// contributes to the ring.
func (r *Ring) VNodes() int {
	return r.vnodes
}

// Nodes returns all distinct physical nodes, sorted.
func (r *Ring) Nodes() []NodeID {
	out := make([]NodeID, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// PreferenceList returns the first n distinct NodeIDs encountered walking
// the ring clockwise from key's hash position. If fewer than n distinct
// nodes exist, it returns what is available. The result is deterministic:
// identical ring construction yields identical lists for every key.
func (r *Ring) PreferenceList(key string, n int) []NodeID {
	if len(r.positions) == 0 || n <= 0 {
		return nil
	}
	if n > len(r.nodes) {
		n = len(r.nodes)
	}

	h := hashKey(key)
	start := r.search(h)

	out := make([]NodeID, 0, n)
	seen := make(map[NodeID]bool, n)

	for i := 0; i < len(r.positions) && len(out) < n; i++ {
		p := r.positions[(start+i)%len(r.positions)]
		if seen[p.node] {
			continue
		}
		seen[p.node] = true
		out = append(out, p.node)
	}
	return out
}

// search returns the index of the first position whose hash is >= h,
// wrapping to 0 if no such position exists.
func (r *Ring) search(h uint64) int {
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].hash >= h
	})
	if idx == len(r.positions) {
		idx = 0
	}
	return idx
}

// hashVnode hashes the i-th virtual position of a physical node.
func hashVnode(node NodeID, i int) uint64 {
	return hashKey(fmt.Sprintf("%s:%d", node, i))
}

// hashKey hashes an arbitrary key to a 64-bit ring position using the first
// 8 bytes of its SHA-1 digest. The same function must be used by every node
// for the ring to agree on placement; this is the single authoritative
// implementation in the process.
func hashKey(key string) uint64 {
	sum := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}
