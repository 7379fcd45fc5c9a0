// Package repair implements the bounded, asynchronous read-repair queue
// described in spec §4.7 and §5's back-pressure requirement: a small pool
// of workers drains tasks enqueued by the coordinator and pushes the
// reconciled version(s) to replicas observed to be stale during a read,
// without ever blocking the read that triggered it.
//
// Grounded on other_examples/76a4dc34_ismaiel54-kvstore's ReadRepairer
// (detached context, fire-and-forget, per-key success/failure counters,
// panic recovery) generalized from one goroutine per read to a bounded
// worker pool with drop-oldest overflow, since the teacher's own
// read-repair (ppriyankuu-godkv's Replicator.readRepair) and
// ismaiel54-kvstore's both spawn unbounded goroutines with no queue depth
// limit, which spec §5 explicitly requires here.
package repair

import (
	"context"
	"sync"
	"time"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/peer"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
)

// Task is one unit of repair work: push versions to every peer in Peers
// for key.
type Task struct {
	Key      string
	Versions []storage.Version
	Peers    []string // node IDs observed to be stale
}

// AddrResolver looks up a node ID's address. It returns ok=false for a node
// ID the repair worker no longer knows about (e.g. never configured).
type AddrResolver func(nodeID string) (addr string, ok bool)

// LocalPutter is the subset of storage.Storage repair needs to fix up this
// node's own copy when self is the stale replica.
type LocalPutter interface {
	LocalPut(key string, v storage.Version)
}

// Queue is a bounded FIFO of repair tasks drained by a fixed worker pool.
// Enqueue never blocks: on overflow the oldest pending task is dropped and
// a counter is incremented, per spec §5's back-pressure requirement.
type Queue struct {
	selfID  string
	tasks   chan Task
	peers   *peer.Client
	resolve AddrResolver
	local   LocalPutter
	metrics *metrics.Metrics
	timeout time.Duration

	workers int
	wg      sync.WaitGroup
}

// NewQueue creates a Queue with the given capacity (spec recommends 1024)
// and worker count.
func NewQueue(selfID string, capacity, workers int, peers *peer.Client, resolve AddrResolver, local LocalPutter, m *metrics.Metrics, peerTimeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		selfID:  selfID,
		tasks:   make(chan Task, capacity),
		peers:   peers,
		resolve: resolve,
		local:   local,
		metrics: m,
		timeout: peerTimeout,
		workers: workers,
	}
}

// Start launches the worker pool; workers run until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Wait blocks until all workers have exited (call after cancelling the
// context passed to Start).
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Enqueue adds t to the queue without blocking the caller. If the queue is
// full, the oldest pending task is dropped to make room and the
// dropped-repair counter is incremented; correctness does not depend on
// guaranteed delivery since a subsequent read will re-discover staleness.
func (q *Queue) Enqueue(t Task) {
	select {
	case q.tasks <- t:
		return
	default:
	}

	select {
	case <-q.tasks:
		q.metrics.IncDroppedRepairs()
	default:
	}

	select {
	case q.tasks <- t:
	default:
		q.metrics.IncDroppedRepairs()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.process(t)
		}
	}
}

// process pushes every version in t to every stale peer in t.Peers.
// Errors are swallowed but counted — repair is best-effort, and storage's
// idempotent merge makes repeated or reordered pushes safe to retry on the
// next read.
func (q *Queue) process(t Task) {
	defer func() {
		_ = recover() // a panicking repair must never crash the node
	}()

	for _, nodeID := range t.Peers {
		if nodeID == q.selfID {
			for _, v := range t.Versions {
				q.local.LocalPut(t.Key, v)
			}
			q.metrics.IncReadRepairs()
			continue
		}

		addr, ok := q.resolve(nodeID)
		if !ok {
			q.metrics.IncReadRepairFailures()
			continue
		}

		ok = true
		for _, v := range t.Versions {
			ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
			err := q.peers.ReplicaPut(ctx, nodeID, addr, t.Key, v)
			cancel()
			if err != nil {
				ok = false
			}
		}
		if ok {
			q.metrics.IncReadRepairs()
		} else {
			q.metrics.IncReadRepairFailures()
		}
	}
}
