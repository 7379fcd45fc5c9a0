// Package api wires up the Gin HTTP router: the public /kv/{key} client
// API, the internal /_replica/* API used only by other nodes, and the
// node's introspection endpoints (/health, /metrics, /debug/ring).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/coordinator"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/kverr"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/ring"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

// Defaults holds the N/W/R values used when a request omits them.
type Defaults struct {
	N int
	W int
	R int
}

// Handler holds all dependencies injected from cmd/kvnode.
type Handler struct {
	coord    *coordinator.Coordinator
	store    *storage.Storage
	ring     *ring.Ring
	metrics  *metrics.Metrics
	selfID   ring.NodeID
	defaults Defaults
}

// NewHandler creates a Handler.
func NewHandler(c *coordinator.Coordinator, store *storage.Storage, r *ring.Ring, m *metrics.Metrics, selfID ring.NodeID, d Defaults) *Handler {
	return &Handler{coord: c, store: store, ring: r, metrics: m, selfID: selfID, defaults: d}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	kv := r.Group("/kv")
	kv.GET("/:key", h.Get)
	kv.PUT("/:key", h.Put)
	kv.DELETE("/:key", h.Delete)

	replica := r.Group("/_replica")
	replica.POST("/put", h.ReplicaPut)
	replica.GET("/get", h.ReplicaGet)

	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.GET("/debug/ring", h.DebugRing)
}

// versionDTO is the wire shape of one sibling version returned to a client,
// matching §6.1: `{"value": <any>, "vector_clock": {<nodeID>: <int>, ...}}`.
type versionDTO struct {
	Value       interface{}  `json:"value,omitempty"`
	VectorClock vclock.Clock `json:"vector_clock"`
	Tombstone   bool         `json:"tombstone,omitempty"`
}

func toVersionDTOs(versions []storage.Version) []versionDTO {
	out := make([]versionDTO, len(versions))
	for i, v := range versions {
		dto := versionDTO{VectorClock: v.Clock, Tombstone: v.Value.Tombstone}
		if len(v.Value.Data) > 0 {
			dto.Value = v.Value.Data
		}
		out[i] = dto
	}
	return out
}

// queryInt reads an integer query parameter, falling back to def if absent
// or unparseable.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// writeError maps a kverr.Kind to the HTTP status and body shape §7 assigns
// it. PeerTimeout/PeerError are never expected to escape the coordinator (it
// folds them into QuorumFailed before returning), but are mapped defensively
// in case a future caller bypasses the coordinator.
func writeError(c *gin.Context, err error) {
	kind := kverr.Internal
	if ke, ok := err.(*kverr.Error); ok {
		kind = ke.Kind
	}

	switch kind {
	case kverr.BadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case kverr.QuorumFailed:
		setOutcome(c, "quorum_failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "reason": "quorum"})
	case kverr.PeerTimeout, kverr.PeerError:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// writeGetError is Get's quorum-failure response, which §7's table gives a
// distinct body shape from Put/Delete's ({"error":"quorum"} rather than
// {"success":false,"reason":"quorum"}).
func writeGetError(c *gin.Context, err error) {
	kind := kverr.Internal
	if ke, ok := err.(*kverr.Error); ok {
		kind = ke.Kind
	}

	switch kind {
	case kverr.BadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case kverr.QuorumFailed:
		setOutcome(c, "quorum_failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quorum"})
	case kverr.PeerTimeout, kverr.PeerError:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// putRequestBody is the JSON body accepted by PUT /kv/:key, per §6.1:
// `{ "value": <any>, "N": <int>, "W": <int>, "context"?: {...} }`. Value is
// bound as a json.RawMessage rather than interface{} so an absent "value"
// key (nil) can be told apart from a present JSON null ("null", non-nil);
// only the former is a BAD_REQUEST.
type putRequestBody struct {
	Value   json.RawMessage `json:"value"`
	N       int             `json:"N"`
	W       int             `json:"W"`
	Context vclock.Clock    `json:"context,omitempty"`
}

func (h *Handler) resolveN(body int, query string, c *gin.Context) int {
	if body > 0 {
		return body
	}
	return queryInt(c, query, h.defaults.N)
}

// Put handles PUT /kv/:key.
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body putRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, kverr.Wrap(kverr.BadRequest, "invalid request body", err))
		return
	}
	if body.Value == nil {
		writeError(c, kverr.New(kverr.BadRequest, "missing value"))
		return
	}

	data := normalizeValue(body.Value)

	n := h.resolveN(body.N, "N", c)
	w := body.W
	if w <= 0 {
		w = h.defaults.W
	}

	if _, err := h.coord.Put(c.Request.Context(), key, storage.Value{Data: data}, n, w, body.Context); err != nil {
		writeError(c, err)
		return
	}

	setOutcome(c, "ok")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Get handles GET /kv/:key?R=<int>&N=<int>. A missing key is not an error:
// the client sees an empty siblings list with 200, never 404.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")

	n := queryInt(c, "N", h.defaults.N)
	r := queryInt(c, "R", h.defaults.R)

	versions, err := h.coord.Get(c.Request.Context(), key, n, r)
	if err != nil {
		writeGetError(c, err)
		return
	}

	setOutcome(c, "ok")
	c.JSON(http.StatusOK, gin.H{"versions": toVersionDTOs(versions)})
}

// Delete handles DELETE /kv/:key, body `{"N": <int>, "W": <int>, "context"?:
// {...}}`, same response shape as Put.
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")

	var body struct {
		N       int          `json:"N"`
		W       int          `json:"W"`
		Context vclock.Clock `json:"context,omitempty"`
	}
	// A body is optional on delete; ignore a malformed/empty one rather
	// than rejecting the request.
	_ = c.ShouldBindJSON(&body)

	n := h.resolveN(body.N, "N", c)
	w := body.W
	if w <= 0 {
		w = h.defaults.W
	}

	if err := h.coord.Delete(c.Request.Context(), key, n, w, body.Context); err != nil {
		writeError(c, err)
		return
	}
	setOutcome(c, "ok")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ReplicaPut handles POST /_replica/put — the internal API another node's
// coordinator calls to push one version into this node's local storage. It
// never fans out, never reconciles, never computes a clock: it is a direct
// Storage.LocalPut.
func (h *Handler) ReplicaPut(c *gin.Context) {
	var req struct {
		Key         string       `json:"key" binding:"required"`
		Value       interface{}  `json:"value"`
		VectorClock vclock.Clock `json:"vector_clock"`
		Tombstone   bool         `json:"tombstone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := marshalValue(req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.store.LocalPut(req.Key, storage.Version{
		Value: storage.Value{Data: data, Tombstone: req.Tombstone},
		Clock: req.VectorClock,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ReplicaGet handles GET /_replica/get?key=... — returns this node's entire
// local version set for key, tombstones included, so the calling
// coordinator can reconcile and detect staleness.
func (h *Handler) ReplicaGet(c *gin.Context) {
	key := c.Query("key")
	versions := h.store.LocalGet(key)
	c.JSON(http.StatusOK, gin.H{"versions": toVersionDTOs(versions)})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node": h.selfID, "node_count": h.ring.NodeCount()})
}

// Metrics handles GET /metrics, returning a point-in-time snapshot of this
// node's counters, latencies, and peer health.
func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// DebugRing handles GET /debug/ring, a read-only introspection endpoint
// supplementing the spec's dynamic-membership surface (there is none — the
// node set is fixed at startup) with visibility into the resulting
// placement: every configured node and, for a key given as ?key=, its
// computed preference list.
func (h *Handler) DebugRing(c *gin.Context) {
	resp := gin.H{"nodes": h.ring.Nodes(), "vnode_count": h.ring.VNodes()}
	if key := c.Query("key"); key != "" {
		resp["key"] = key
		resp["preference_list"] = h.ring.PreferenceList(key, h.ring.NodeCount())
	}
	c.JSON(http.StatusOK, resp)
}
