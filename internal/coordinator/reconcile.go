package coordinator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

// Reconcile is the pure function at the center of the read path (spec
// §4.4.2 step 6). Given a pool of versions flattened from every replica
// that responded, it returns the set of pairwise-concurrent survivors:
//
//  1. Any candidate strictly dominated by another candidate is removed.
//  2. Candidates with equal value and equal clock collapse to one.
//
// The result depends only on the multiset of input versions, never on
// arrival order — Reconcile(shuffle(pool)) always returns the same set,
// which is what makes it safe to call with responses gathered from
// goroutines that race in an arbitrary order.
func Reconcile(pool []storage.Version) []storage.Version {
	survivors := make([]storage.Version, 0, len(pool))

outer:
	for i, v := range pool {
		for j, other := range pool {
			if i == j {
				continue
			}
			if vclock.Compare(other.Clock, v.Clock) == vclock.ADominates {
				continue outer // v is strictly dominated — discard it
			}
		}
		survivors = append(survivors, v)
	}

	out := make([]storage.Version, 0, len(survivors))
	for _, v := range survivors {
		dup := false
		for _, kept := range out {
			if vclock.EqualClocks(v.Clock, kept.Clock) && v.Value.Equal(kept.Value) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return canonicalKey(out[i]) < canonicalKey(out[j])
	})
	return out
}

// canonicalKey gives Reconcile's output a deterministic order so that
// identical inputs, regardless of arrival order, produce byte-identical
// output slices — useful for tests and for idempotent repair replay.
func canonicalKey(v storage.Version) string {
	keys := make([]string, 0, len(v.Clock))
	for k := range v.Clock {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%d;", k, v.Clock[k])
	}
	sb.WriteByte('|')
	if v.Value.Tombstone {
		sb.WriteString("T")
	}
	sb.Write(v.Value.Data)
	return sb.String()
}

// NonTombstones filters tombstones out of a reconciled set. If every
// surviving version was a tombstone, the result is empty — "not found".
func NonTombstones(versions []storage.Version) []storage.Version {
	out := make([]storage.Version, 0, len(versions))
	for _, v := range versions {
		if !v.Value.Tombstone {
			out = append(out, v)
		}
	}
	return out
}

// isStale reports whether a replica that returned `returned` is stale with
// respect to the reconciled set `siblings`: stale if any reconciled
// version strictly dominates every version the replica returned, or if the
// replica returned nothing while reconciliation yielded something.
func isStale(siblings, returned []storage.Version) bool {
	if len(returned) == 0 {
		return len(siblings) > 0
	}
	for _, s := range siblings {
		dominatesAll := true
		for _, r := range returned {
			if vclock.Compare(s.Clock, r.Clock) != vclock.ADominates {
				dominatesAll = false
				break
			}
		}
		if dominatesAll {
			return true
		}
	}
	return false
}
