package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/kverr"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/peer"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/repair"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/ring"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

// replicaServer is a minimal stand-in for another node's internal replica
// API, backed by a real storage.Storage so that coordinator tests exercise
// genuine network round-trips rather than mocked interfaces.
type replicaServer struct {
	store *storage.Storage
	srv   *httptest.Server
}

func newReplicaServer() *replicaServer {
	rs := &replicaServer{store: storage.New()}
	mux := http.NewServeMux()
	mux.HandleFunc("/_replica/put", rs.handlePut)
	mux.HandleFunc("/_replica/get", rs.handleGet)
	rs.srv = httptest.NewServer(mux)
	return rs
}

func (rs *replicaServer) addr() string {
	return rs.srv.Listener.Addr().String()
}

func (rs *replicaServer) close() { rs.srv.Close() }

func (rs *replicaServer) handlePut(w http.ResponseWriter, r *http.Request) {
	var req peer.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rs.store.LocalPut(req.Key, storage.Version{
		Value: storage.Value{Data: req.Value, Tombstone: req.Tombstone},
		Clock: req.Clock,
	})
	json.NewEncoder(w).Encode(peer.PutResponse{OK: true})
}

func (rs *replicaServer) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	versions := rs.store.LocalGet(key)
	out := peer.GetResponse{Versions: make([]peer.VersionDTO, len(versions))}
	for i, v := range versions {
		out.Versions[i] = peer.VersionDTO{Value: v.Value.Data, Clock: v.Clock, Tombstone: v.Value.Tombstone}
	}
	json.NewEncoder(w).Encode(out)
}

// cluster wires up a self node plus a configurable number of httptest-backed
// remote replicas behind one Coordinator, all sharing the same ring.
type cluster struct {
	coord    *Coordinator
	self     *storage.Storage
	remotes  []*replicaServer
	metrics  *metrics.Metrics
	repairQ  *repair.Queue
}

func newCluster(t *testing.T, remoteCount int) *cluster {
	t.Helper()

	selfID := ring.NodeID("self:0")
	nodes := []ring.NodeID{selfID}
	addrs := map[ring.NodeID]string{}

	remotes := make([]*replicaServer, remoteCount)
	for i := 0; i < remoteCount; i++ {
		rs := newReplicaServer()
		t.Cleanup(rs.close)
		remotes[i] = rs

		id := ring.NodeID(rs.addr())
		nodes = append(nodes, id)
		addrs[id] = rs.addr()
	}

	r := ring.New(nodes, 8)
	selfStore := storage.New()
	m := metrics.New()
	pc := peer.New(200*time.Millisecond, m)

	resolve := func(nodeID string) (string, bool) {
		addr, ok := addrs[ring.NodeID(nodeID)]
		return addr, ok
	}
	rq := repair.NewQueue(string(selfID), 64, 2, pc, resolve, selfStore, m, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rq.Start(ctx)

	c := New(selfID, addrs, r, selfStore, pc, m, rq, 500*time.Millisecond)

	return &cluster{coord: c, self: selfStore, remotes: remotes, metrics: m, repairQ: rq}
}

func jsonVal(s string) storage.Value {
	return storage.Value{Data: json.RawMessage(`"` + s + `"`)}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	_, err := cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 2, nil)
	require.NoError(t, err)

	versions, err := cl.coord.Get(ctx, "k1", 3, 2)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].Value.Equal(jsonVal("v1")))
}

func TestPutFailsQuorumWithTooFewNodes(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	// Kill one remote so only 2/3 replicas are reachable, and demand W=3.
	cl.remotes[0].close()

	_, err := cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 3, nil)
	require.Error(t, err)
	assert.True(t, kverr.Is(err, kverr.QuorumFailed))
}

func TestPutRejectsInvalidW(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	_, err := cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 0, nil)
	require.Error(t, err)
	assert.True(t, kverr.Is(err, kverr.BadRequest))

	_, err = cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 4, nil)
	require.Error(t, err)
	assert.True(t, kverr.Is(err, kverr.BadRequest))
}

func TestGetRejectsInvalidR(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	_, err := cl.coord.Get(ctx, "k1", 3, 0)
	require.Error(t, err)
	assert.True(t, kverr.Is(err, kverr.BadRequest))
}

func TestDeleteWritesTombstoneInvisibleToGet(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	_, err := cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 2, nil)
	require.NoError(t, err)

	err = cl.coord.Delete(ctx, "k1", 3, 2, nil)
	require.NoError(t, err)

	versions, err := cl.coord.Get(ctx, "k1", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestConcurrentPutsWithoutSharedContextProduceSiblings(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	// Two context-less writes through the same coordinator would both get
	// the clock {self:1} and collapse to one version, so each write carries
	// its own unrelated context instead; the resulting clocks are concurrent.
	_, err := cl.coord.Put(ctx, "k1", jsonVal("a"), 3, 3, vclock.Clock{"writer-a": 1})
	require.NoError(t, err)
	_, err = cl.coord.Put(ctx, "k1", jsonVal("b"), 3, 3, vclock.Clock{"writer-b": 1})
	require.NoError(t, err)

	versions, err := cl.coord.Get(ctx, "k1", 3, 3)
	require.NoError(t, err)
	assert.Len(t, versions, 2, "two writes with unrelated contexts to the same key are concurrent siblings")
}

func TestReadYourWriteWithClientContextConverges(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	clock1, err := cl.coord.Put(ctx, "k1", jsonVal("a"), 3, 3, nil)
	require.NoError(t, err)

	// The client read clock1 back and now issues a write carrying it
	// forward as causal context, so the new write dominates the old one.
	_, err = cl.coord.Put(ctx, "k1", jsonVal("b"), 3, 3, clock1)
	require.NoError(t, err)

	versions, err := cl.coord.Get(ctx, "k1", 3, 3)
	require.NoError(t, err)
	require.Len(t, versions, 1, "a write carrying the prior clock as context dominates it, no sibling")
	assert.True(t, versions[0].Value.Equal(jsonVal("b")))
}

func TestGetOnMissingKeyIsEmptyNotError(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	versions, err := cl.coord.Get(ctx, "never-written", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestReadRepairConvergesStaleReplica(t *testing.T) {
	cl := newCluster(t, 2)
	ctx := context.Background()

	// Write with W=1 so only one replica (possibly a remote, possibly
	// self) actually receives the value synchronously.
	_, err := cl.coord.Put(ctx, "k1", jsonVal("v1"), 3, 1, nil)
	require.NoError(t, err)

	// A subsequent read with R=1 may or may not see it immediately, but a
	// read demanding all 3 replicas should trigger repair once the
	// stale-but-reachable replicas are consulted, and a later read should
	// see the converged value everywhere.
	require.Eventually(t, func() bool {
		versions, err := cl.coord.Get(ctx, "k1", 3, 3)
		if err != nil || len(versions) != 1 || !versions[0].Value.Equal(jsonVal("v1")) {
			return false
		}
		stores := []*storage.Storage{cl.self}
		for _, rs := range cl.remotes {
			stores = append(stores, rs.store)
		}
		for _, s := range stores {
			local := s.LocalGet("k1")
			if len(local) != 1 || !local[0].Value.Equal(jsonVal("v1")) {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)
}
