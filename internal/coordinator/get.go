package coordinator

import (
	"context"
	"time"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/kverr"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/repair"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/ring"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
)

type replicaReply struct {
	node     ring.NodeID
	versions []storage.Version
	err      error
}

// Get fans out to the preference list, waits for R successes (draining any
// already-completed late replies before returning), reconciles the
// collected version sets, and enqueues read repair for any replica found
// stale relative to the reconciled result. The returned slice never
// contains tombstones; an empty slice means "not found or deleted".
func (c *Coordinator) Get(ctx context.Context, key string, n, r int) ([]storage.Version, error) {
	start := time.Now()

	n, err := c.resolveN(n)
	if err != nil {
		return nil, err
	}
	if err := validateQuorum("R", r, n); err != nil {
		return nil, err
	}

	prefList := c.ring.PreferenceList(key, n)

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	results := make(chan replicaReply, len(prefList))
	for _, node := range prefList {
		node := node
		go func() {
			versions, err := c.replicaGet(reqCtx, node, key)
			results <- replicaReply{node: node, versions: versions, err: err}
		}()
	}

	collected := make([]replicaReply, 0, len(prefList))
	successes := 0
	total := len(prefList)

collect:
	for i := 0; i < total; i++ {
		select {
		case rep := <-results:
			collected = append(collected, rep)
			if rep.err == nil {
				successes++
				if successes >= r {
					break collect
				}
			}
		case <-reqCtx.Done():
			break collect
		}
	}

	// Drain any replies that had already completed without waiting for
	// them — these "late" arrivals are folded into reconciliation for
	// free; anything not yet ready is left to finish or be abandoned.
drain:
	for {
		select {
		case rep := <-results:
			collected = append(collected, rep)
		default:
			break drain
		}
	}

	successes = 0
	for _, rep := range collected {
		if rep.err == nil {
			successes++
		}
	}

	c.metrics.IncReads()
	c.metrics.Observe(metrics.OpRead, time.Since(start))

	if successes < r {
		c.metrics.IncQuorumFailures()
		return nil, kverr.Newf(kverr.QuorumFailed, "read quorum not reached: %d/%d", successes, r)
	}

	var pool []storage.Version
	for _, rep := range collected {
		if rep.err == nil {
			pool = append(pool, rep.versions...)
		}
	}

	siblings := Reconcile(pool)

	c.scheduleRepair(key, siblings, collected)

	result := NonTombstones(siblings)
	if len(result) >= 2 {
		c.metrics.IncConflictsReturned()
	}
	return result, nil
}

// scheduleRepair compares every replica's returned set against the
// reconciled result and enqueues a repair task for each stale replica.
func (c *Coordinator) scheduleRepair(key string, siblings []storage.Version, collected []replicaReply) {
	var stale []string
	for _, rep := range collected {
		if rep.err != nil {
			continue
		}
		if isStale(siblings, rep.versions) {
			stale = append(stale, string(rep.node))
		}
	}
	if len(stale) == 0 {
		return
	}
	c.repairQ.Enqueue(repair.Task{
		Key:      key,
		Versions: siblings,
		Peers:    stale,
	})
}
