// Package metrics holds per-node counters, latency samples, and per-peer
// health, updated atomically from the coordinator's hot path and exposed as
// a read-only snapshot for GET /metrics.
//
// Grounded on johnjansen-torua's internal/coordinator/health_monitor.go for
// the peer-health shape (total/success/failure counts with a derived rate),
// generalized here from periodic active probing to passive accounting of
// every replica RPC the peer client actually makes.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// reservoirSize bounds the number of recent latency samples kept per
// operation type; a fixed-size reservoir is explicitly acceptable per spec
// §4.6.
const reservoirSize = 256

// OpKind names an operation whose latency is tracked.
type OpKind string

const (
	OpRead   OpKind = "read"
	OpWrite  OpKind = "write"
	OpDelete OpKind = "delete"
)

type reservoir struct {
	mu      sync.Mutex
	samples [reservoirSize]time.Duration
	count   int // number of samples ever recorded
}

func (r *reservoir) record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.count%reservoirSize] = d
	r.count++
}

func (r *reservoir) snapshot() LatencySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if n > reservoirSize {
		n = reservoirSize
	}
	if n == 0 {
		return LatencySnapshot{}
	}

	vals := make([]time.Duration, n)
	copy(vals, r.samples[:n])
	// Simple insertion sort — n is bounded by reservoirSize and this runs
	// only when a snapshot is requested, never on the write hot path.
	for i := 1; i < n; i++ {
		for j := i; j > 0 && vals[j] < vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}

	var sum time.Duration
	for _, v := range vals {
		sum += v
	}
	p95idx := (n * 95) / 100
	if p95idx >= n {
		p95idx = n - 1
	}

	return LatencySnapshot{
		Count: r.count,
		Min:   vals[0],
		Max:   vals[n-1],
		Mean:  sum / time.Duration(n),
		P95:   vals[p95idx],
	}
}

// LatencySnapshot is a point-in-time read of a reservoir.
type LatencySnapshot struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Mean  time.Duration `json:"mean_ns"`
	P95   time.Duration `json:"p95_ns"`
}

// peerHealth tracks a single peer's observed call outcomes.
type peerHealth struct {
	total      atomic.Uint64
	successes  atomic.Uint64
	timeouts   atomic.Uint64
}

// PeerHealthSnapshot is a point-in-time read of a peer's health counters.
type PeerHealthSnapshot struct {
	TotalRequests uint64  `json:"total_requests"`
	Successes     uint64  `json:"successes"`
	Timeouts      uint64  `json:"timeouts"`
	SuccessRate   float64 `json:"success_rate"`
	TimeoutRate   float64 `json:"timeout_rate"`
}

// Metrics is the process-wide mutable metrics state, owned by the node and
// updated from the coordinator, peer client, and repair queue.
type Metrics struct {
	reads            atomic.Uint64
	writes           atomic.Uint64
	deletes          atomic.Uint64
	readRepairs      atomic.Uint64
	readRepairFails  atomic.Uint64
	conflictsReturned atomic.Uint64
	quorumFailures   atomic.Uint64
	droppedRepairs   atomic.Uint64

	latencies map[OpKind]*reservoir

	peersMu sync.RWMutex
	peers   map[string]*peerHealth
}

// New creates an empty Metrics.
func New() *Metrics {
	return &Metrics{
		latencies: map[OpKind]*reservoir{
			OpRead:   {},
			OpWrite:  {},
			OpDelete: {},
		},
		peers: make(map[string]*peerHealth),
	}
}

func (m *Metrics) IncReads()             { m.reads.Add(1) }
func (m *Metrics) IncWrites()            { m.writes.Add(1) }
func (m *Metrics) IncDeletes()           { m.deletes.Add(1) }
func (m *Metrics) IncQuorumFailures()    { m.quorumFailures.Add(1) }
func (m *Metrics) IncReadRepairs()       { m.readRepairs.Add(1) }
func (m *Metrics) IncReadRepairFailures() { m.readRepairFails.Add(1) }
func (m *Metrics) IncDroppedRepairs()    { m.droppedRepairs.Add(1) }

// IncConflictsReturned is called once per read whose reconciled set has two
// or more non-tombstone siblings.
func (m *Metrics) IncConflictsReturned() { m.conflictsReturned.Add(1) }

// Observe records a latency sample for the given operation kind.
func (m *Metrics) Observe(op OpKind, d time.Duration) {
	if r, ok := m.latencies[op]; ok {
		r.record(d)
	}
}

func (m *Metrics) peer(nodeID string) *peerHealth {
	m.peersMu.RLock()
	p, ok := m.peers[nodeID]
	m.peersMu.RUnlock()
	if ok {
		return p
	}

	m.peersMu.Lock()
	defer m.peersMu.Unlock()
	if p, ok := m.peers[nodeID]; ok {
		return p
	}
	p = &peerHealth{}
	m.peers[nodeID] = p
	return p
}

// RecordPeerCall updates nodeID's health counters for one replica RPC
// outcome. Every peer-client invocation calls this exactly once.
func (m *Metrics) RecordPeerCall(nodeID string, success, timeout bool) {
	p := m.peer(nodeID)
	p.total.Add(1)
	if success {
		p.successes.Add(1)
	}
	if timeout {
		p.timeouts.Add(1)
	}
}

// Snapshot is the read-only view of Metrics exposed via GET /metrics.
type Snapshot struct {
	Reads             uint64                         `json:"reads"`
	Writes            uint64                         `json:"writes"`
	Deletes           uint64                         `json:"deletes"`
	ReadRepairs       uint64                         `json:"read_repairs"`
	ReadRepairFailures uint64                        `json:"read_repair_failures"`
	ConflictsReturned uint64                         `json:"conflicts_returned"`
	QuorumFailures    uint64                         `json:"quorum_failures"`
	DroppedRepairs    uint64                         `json:"dropped_repairs"`
	Latency           map[OpKind]LatencySnapshot      `json:"latency"`
	Peers             map[string]PeerHealthSnapshot   `json:"peers"`
}

// Snapshot takes a read-only point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	lat := make(map[OpKind]LatencySnapshot, len(m.latencies))
	for k, r := range m.latencies {
		lat[k] = r.snapshot()
	}

	m.peersMu.RLock()
	peers := make(map[string]PeerHealthSnapshot, len(m.peers))
	for id, p := range m.peers {
		total := p.total.Load()
		successes := p.successes.Load()
		timeouts := p.timeouts.Load()
		snap := PeerHealthSnapshot{
			TotalRequests: total,
			Successes:     successes,
			Timeouts:      timeouts,
		}
		if total > 0 {
			snap.SuccessRate = float64(successes) / float64(total)
			snap.TimeoutRate = float64(timeouts) / float64(total)
		}
		peers[id] = snap
	}
	m.peersMu.RUnlock()

	return Snapshot{
		Reads:              m.reads.Load(),
		Writes:             m.writes.Load(),
		Deletes:            m.deletes.Load(),
		ReadRepairs:        m.readRepairs.Load(),
		ReadRepairFailures: m.readRepairFails.Load(),
		ConflictsReturned:  m.conflictsReturned.Load(),
		QuorumFailures:     m.quorumFailures.Load(),
		DroppedRepairs:     m.droppedRepairs.Load(),
		Latency:            lat,
		Peers:              peers,
	}
}
