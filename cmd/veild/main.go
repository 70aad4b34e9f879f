// Command veild runs a long-lived veil node: it loads configuration, wires
// the shard cache and trust store (no transport lanes are wired), then
// drives the node's tick loop until terminated. A debug HTTP server exposes node occupancy and
// pprof profiles for veil-inspect.
//
// © 2025 veil authors. MIT License.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veil-project/veil/internal/config"
	"github.com/veil-project/veil/pkg/cache"
	"github.com/veil-project/veil/pkg/node"
	"github.com/veil-project/veil/pkg/policy"
	"github.com/veil-project/veil/pkg/snapshot"
)

func main() {
	debugAddr := flag.String("debug-addr", "127.0.0.1:9190", "address for the /debug/veil/snapshot, /debug/pprof and /metrics endpoints")
	cacheCapMiB := flag.Int64("cache-capacity-mib", 64, "shard cache capacity in MiB")
	stateDir := flag.String("state-dir", "./veild-state", "directory for the persisted subscription/cache/trust state")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "veild: logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	cfg, err := config.New(
		config.WithLogger(logger),
		config.WithMetrics(registry),
		config.WithCache(*cacheCapMiB<<20, 30*time.Minute),
	)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	shardCache := cache.New(cfg.CacheCapacityBytes,
		cache.WithLogger(logger),
		cache.WithMetrics(registry),
		cache.WithWeights(cfg.WeightRarity, cfg.WeightTrust, cfg.WeightAge),
	)
	trust := policy.NewStore(cfg.KnownEndorserMin, 30*24*time.Hour)

	// No lanes are wired by default; operators register transport adapters
	// (e.g. a QUIC lane) by extending this binary for
	// their deployment rather than configuring one generically here.
	n := node.New(cfg, shardCache, trust, nil)

	priorState, store, err := snapshot.LoadOrDefault(context.Background(), *stateDir)
	if err != nil {
		logger.Fatal("opening state store", zap.Error(err))
	}
	defer store.Close()
	if err := snapshot.Apply(n, priorState); err != nil {
		logger.Warn("discarding unreadable prior state", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	go serveDebug(*debugAddr, n, registry, logger)

	reason := n.RunUntil(ctx)
	logger.Info("node stopped", zap.String("reason", reason.String()))

	st, err := snapshot.Capture(n)
	if err != nil {
		logger.Error("capturing state at shutdown", zap.Error(err))
		return
	}
	if err := store.Save(context.Background(), st); err != nil {
		logger.Error("saving state at shutdown", zap.Error(err))
	}
}

func serveDebug(addr string, n *node.Node, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/veil/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := n.DebugSnapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"cache_entries":      snap.CacheEntries,
			"cache_bytes_used":   snap.CacheBytesUsed,
			"publish_queue_len":  snap.PublishQueueLen,
			"inbox_len":          snap.InboxLen,
			"dedupe_len":         snap.DedupeLen,
			"inbound_received":   snap.InboundReceived,
			"inbound_dropped":    snap.InboundDropped,
		})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))

	logger.Info("debug server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("debug server stopped", zap.Error(err))
	}
}
