// cmd/kvnode is the main entrypoint for a single store node.
//
// Configuration is entirely via flags so a single binary can serve any role
// in a fixed cluster — there is no dynamic join/leave: every node is started
// with the full peer list, identical on every node. A node finds its own
// identity by matching --port against one entry of --peers; there is no
// separate --id flag, because a node's ID is simply its host:port.
//
// Example — 3-node cluster, run once per host with that host's --port:
//
//	./kvnode --port 8080 --peers localhost:8080,localhost:8081,localhost:8082
//	./kvnode --port 8081 --peers localhost:8080,localhost:8081,localhost:8082
//	./kvnode --port 8082 --peers localhost:8080,localhost:8081,localhost:8082
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/api"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/coordinator"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/metrics"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/peer"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/repair"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/ring"
	"github.com/RAAHUL-tech/Mini-Dynamo/internal/storage"
)

func main() {
	port := flag.Int("port", 0, "this node's listen port (required)")
	peersFlag := flag.String("peers", "", "comma-separated host:port cluster members, including self, identical on every node")
	vnodes := flag.Int("vnodes", 128, "virtual nodes per physical node on the hash ring")
	defaultN := flag.Int("default-n", 3, "default replication factor (N)")
	defaultW := flag.Int("default-w", 2, "default write quorum (W)")
	defaultR := flag.Int("default-r", 2, "default read quorum (R)")
	peerTimeoutMs := flag.Int("peer-timeout-ms", 1000, "per-peer RPC deadline in milliseconds")
	requestTimeoutMs := flag.Int("request-timeout-ms", 2000, "overall per-request deadline in milliseconds")
	repairQueueSize := flag.Int("repair-queue-size", 1024, "bounded read-repair queue capacity")
	repairWorkers := flag.Int("repair-workers", 4, "read-repair worker pool size")
	flag.Parse()

	if *port == 0 {
		log.Fatal("FATAL: --port is required")
	}
	if *peersFlag == "" {
		log.Fatal("FATAL: --peers must include every cluster member, including self")
	}

	var nodes []ring.NodeID
	addrs := make(map[ring.NodeID]string)
	for _, entry := range strings.Split(*peersFlag, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id := ring.NodeID(entry)
		nodes = append(nodes, id)
		addrs[id] = entry
	}

	self, ok := findSelf(nodes, *port)
	if !ok {
		log.Fatalf("FATAL: no entry in --peers ends with :%d (this node's --port)", *port)
	}
	log.SetPrefix(fmt.Sprintf("[%s] ", self))

	r := ring.New(nodes, *vnodes)
	store := storage.New()
	m := metrics.New()
	peerClient := peer.New(time.Duration(*peerTimeoutMs)*time.Millisecond, m)

	resolve := func(id string) (string, bool) {
		addr, ok := addrs[ring.NodeID(id)]
		return addr, ok
	}
	repairQ := repair.NewQueue(string(self), *repairQueueSize, *repairWorkers, peerClient, resolve, store, m, time.Duration(*peerTimeoutMs)*time.Millisecond)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	repairQ.Start(bgCtx)

	coord := coordinator.New(self, addrs, r, store, peerClient, m, repairQ, time.Duration(*requestTimeoutMs)*time.Millisecond)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(coord, store, r, m, self, api.Defaults{N: *defaultN, W: *defaultW, R: *defaultR})
	handler.Register(engine)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("node %s listening on :%d (N=%d W=%d R=%d, %d peers)",
			self, *port, *defaultN, *defaultW, *defaultR, r.NodeCount())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down node %s", self)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	cancelBg()
	repairQ.Wait()
}

// findSelf returns the peer entry that names this node: the one whose
// host:port suffix matches --port. Every node in a cluster is started with
// the same --peers list, so --port is the only thing that distinguishes one
// node's identity from another's.
func findSelf(nodes []ring.NodeID, port int) (ring.NodeID, bool) {
	suffix := ":" + strconv.Itoa(port)
	for _, id := range nodes {
		if strings.HasSuffix(string(id), suffix) {
			return id, true
		}
	}
	return "", false
}
