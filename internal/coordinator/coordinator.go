// Package coordinator implements the per-request fan-out, quorum wait, and
// reconciliation algorithm that makes every node able to coordinate any
// client request (put, get, delete) against the fixed replica set.
//
// Grounded on ppriyankuu-godkv's internal/cluster/replicator.go — the
// channel-based producer/collector fan-out and async read-repair dispatch
// are generalized here from last-write-wins-by-timestamp to vector-clock
// dominance and sibling preservation per the spec, and from a fixed 5s
// internal timeout to the spec's configurable per-peer/overall deadlines.
// The fan-out shape is cross-checked against
// other_examples/a96507bf_iSwiin-mini-dynamo's coordinator.go, which uses
// the same "collect until quorum or deadline over a buffered channel"
// pattern.
package coordinator

import (
	"context"
	"time"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/kverr"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/peer"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/repair"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/ring"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

// Coordinator is the per-node object that can coordinate a put/get/delete
// for any key, computing the preference list and fanning out to replicas.
// It holds no per-request state between calls — every Put/Get/Delete is
// independent and safe to call concurrently for different (or the same)
// keys.
type Coordinator struct {
	self  ring.NodeID
	addrs map[ring.NodeID]string

	ring    *ring.Ring
	store   *storage.Storage
	peers   *peer.Client
	metrics *metrics.Metrics
	repairQ *repair.Queue

	requestTimeout time.Duration
}

// New constructs a Coordinator. addrs must map every remote NodeID in r to
// its host:port address; self is served from local storage and is never
// looked up in addrs.
func New(self ring.NodeID, addrs map[ring.NodeID]string, r *ring.Ring, store *storage.Storage, peers *peer.Client, m *metrics.Metrics, repairQ *repair.Queue, requestTimeout time.Duration) *Coordinator {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}
	return &Coordinator{
		self:           self,
		addrs:          addrs,
		ring:           r,
		store:          store,
		peers:          peers,
		metrics:        m,
		repairQ:        repairQ,
		requestTimeout: requestTimeout,
	}
}

// resolveN clamps the requested replication factor to the ring's node
// count and rejects anything below 1.
func (c *Coordinator) resolveN(n int) (int, error) {
	if n < 1 {
		return 0, kverr.New(kverr.BadRequest, "N must be >= 1")
	}
	if max := c.ring.NodeCount(); n > max {
		n = max
	}
	return n, nil
}

func validateQuorum(label string, q, n int) error {
	if q < 1 || q > n {
		return kverr.Newf(kverr.BadRequest, "%s must satisfy 1 <= %s <= N(%d), got %d", label, label, n, q)
	}
	return nil
}

// replicaPut dispatches a single put to node, short-circuiting to local
// storage when node is this coordinator itself (spec §4.3: "the local node
// ... is invoked via the same coordinator pathway but short-circuits to
// the local Storage contract without going over the transport").
func (c *Coordinator) replicaPut(ctx context.Context, node ring.NodeID, key string, v storage.Version) error {
	if node == c.self {
		c.store.LocalPut(key, v)
		return nil
	}
	addr, ok := c.addrs[node]
	if !ok {
		return kverr.Newf(kverr.Internal, "no address known for node %s", node)
	}
	return c.peers.ReplicaPut(ctx, string(node), addr, key, v)
}

// replicaGet dispatches a single get to node, short-circuiting to local
// storage for self.
func (c *Coordinator) replicaGet(ctx context.Context, node ring.NodeID, key string) ([]storage.Version, error) {
	if node == c.self {
		return c.store.LocalGet(key), nil
	}
	addr, ok := c.addrs[node]
	if !ok {
		return nil, kverr.Newf(kverr.Internal, "no address known for node %s", node)
	}
	return c.peers.ReplicaGet(ctx, string(node), addr, key)
}

// Put writes value under key with the given N/W parameters and optional
// client-supplied causal context, returning the clock the write was
// committed under. Put(ctx, key, value, n, w, nil) constructs a fresh
// clock rooted at this coordinator.
func (c *Coordinator) Put(ctx context.Context, key string, value storage.Value, n, w int, clientCtx vclock.Clock) (vclock.Clock, error) {
	v, err := c.put(ctx, key, value, n, w, clientCtx)
	if err != nil {
		return nil, err
	}
	return v.Clock, nil
}

// Delete writes a tombstone for key — a put of a distinguished deletion
// marker, replicated exactly like any other value.
func (c *Coordinator) Delete(ctx context.Context, key string, n, w int, clientCtx vclock.Clock) error {
	_, err := c.put(ctx, key, storage.Value{Tombstone: true}, n, w, clientCtx)
	return err
}

func (c *Coordinator) put(ctx context.Context, key string, value storage.Value, n, w int, clientCtx vclock.Clock) (storage.Version, error) {
	start := time.Now()

	n, err := c.resolveN(n)
	if err != nil {
		return storage.Version{}, err
	}
	if err := validateQuorum("W", w, n); err != nil {
		return storage.Version{}, err
	}

	prefList := c.ring.PreferenceList(key, n)

	clock := vclock.New()
	if clientCtx != nil {
		clock = vclock.Merge(clock, clientCtx)
	}
	clock = clock.Increment(string(c.self))
	version := storage.Version{Value: value, Clock: clock}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	type result struct{ err error }
	results := make(chan result, len(prefList))

	for _, node := range prefList {
		node := node
		go func() {
			// Detached from reqCtx: a replica op that completes after the
			// overall deadline still gets applied — best-effort
			// replication beyond W is desirable and never an error. The
			// per-peer deadline inside replicaPut still bounds it.
			err := c.replicaPut(context.Background(), node, key, version)
			results <- result{err}
		}()
	}

	successes, failures := 0, 0
	total := len(prefList)

collect:
	for i := 0; i < total; i++ {
		select {
		case r := <-results:
			if r.err == nil {
				successes++
				if successes >= w {
					break collect
				}
			} else {
				failures++
				if total-failures < w {
					break collect // quorum now impossible
				}
			}
		case <-reqCtx.Done():
			break collect
		}
	}

	if value.Tombstone {
		c.metrics.IncDeletes()
		c.metrics.Observe(metrics.OpDelete, time.Since(start))
	} else {
		c.metrics.IncWrites()
		c.metrics.Observe(metrics.OpWrite, time.Since(start))
	}

	if successes < w {
		c.metrics.IncQuorumFailures()
		return storage.Version{}, kverr.Newf(kverr.QuorumFailed, "write quorum not reached: %d/%d", successes, w)
	}
	return version, nil
}
