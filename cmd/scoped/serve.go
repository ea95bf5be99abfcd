package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/clusterscope/clusterscope/internal/builder"
	"github.com/clusterscope/clusterscope/internal/network"
	"github.com/clusterscope/clusterscope/internal/obs"
	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

type serveOptions struct {
	self       uint64
	nodeUUID   string
	listenAddr string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the processor registry and its /metrics and /events endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(root, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.self, "worker", 1, "this process's worker id")
	cmd.Flags().StringVar(&opts.nodeUUID, "node", "", "this process's node uuid (generated if empty)")
	cmd.Flags().StringVar(&opts.listenAddr, "listen-addr", ":9090", "HTTP address for /metrics and /events")

	return cmd
}

func runServe(root *rootOptions, opts *serveOptions) error {
	logger := obs.DefaultLogger("scoped")
	obs.SetGlobalLogger(logger)

	selfNode := uuid.New()
	if opts.nodeUUID != "" {
		parsed, err := uuid.Parse(opts.nodeUUID)
		if err != nil {
			return err
		}
		selfNode = parsed
	}
	self := processor.WorkerId(opts.self)

	var node *network.Node
	remoteChildren := func(ctx context.Context, wid processor.WorkerId) ([]processor.Processor, error) {
		return node.Query(ctx, wid)
	}

	reg := processor.NewRegistry(remoteChildren)

	var topo *Topology
	if root.topologyPath != "" {
		var err error
		topo, err = LoadTopology(root.topologyPath)
		if err != nil {
			return err
		}
		if err := topo.Apply(reg); err != nil {
			return err
		}
		for _, w := range topo.Workers {
			if w.ID == opts.self && w.Node != "" {
				if parsed, err := uuid.Parse(w.Node); err == nil {
					selfNode = parsed
				}
			}
		}
	} else {
		reg.WorkerJoined(self, selfNode, nil)
	}

	provider := func(wid processor.WorkerId) ([]processor.Processor, error) {
		return reg.Children(context.Background(), processor.OSProc{WorkerID: wid})
	}

	var err error
	node, err = network.NewNode(self, selfNode, provider, reg.WorkerJoined)
	if err != nil {
		return err
	}
	logger.Info("network node started", obs.String("addr", node.Addr()), obs.Uint64("worker", uint64(self)))

	if topo != nil {
		for _, w := range topo.Workers {
			if w.Addr != "" {
				if err := node.RegisterPeer(processor.WorkerId(w.ID), w.Addr); err != nil {
					logger.Warn("failed to register peer address", obs.Uint64("worker", w.ID), obs.Err(err))
				}
			}
		}
	}

	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)
	reg.SetHooks(processor.Hooks{
		CacheHit:    metrics.IncCacheHit,
		CacheMiss:   metrics.IncCacheMiss,
		RemoteError: metrics.IncRemoteError,
	})

	b := builder.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/events", eventsHandler(logger))
	mux.HandleFunc("/build", buildHandler(b, metrics))

	server := &http.Server{Addr: opts.listenAddr, Handler: mux}

	// Registered in dependency order — network node, then the HTTP
	// server that calls through the registry into that node, then the
	// registry itself — so GracefulShutdown's LIFO teardown runs the
	// reverse: quiesce the registry first (refuse new remote calls),
	// stop the HTTP server next, and only then close the network
	// transport nothing is left depending on.
	shutdown := obs.NewGracefulShutdown(10*time.Second, logger)
	shutdown.Register("network-node", func() error { return node.Close() })
	shutdown.Register("http-server", func() error { return server.Close() })
	shutdown.Register("registry", func() error { reg.Quiesce(); return nil })

	go func() {
		logger.Info("http server listening", obs.String("addr", opts.listenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", obs.Err(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return shutdown.Shutdown(context.Background())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// buildHandler exposes the Scope Builder's keyword constructor over HTTP,
// so an operator (or the scheduler itself) can resolve a scope
// specification without linking against internal/builder directly. Every
// construction failure is counted by code on scoped_build_errors_total.
func buildHandler(b *builder.Builder, metrics *obs.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields builder.NamedFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			metrics.IncBuildError("DECODE_FAILED")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s, err := b.Keyword(r.Context(), fields)
		if err != nil {
			var buildErr *builder.BuildError
			code := "UNKNOWN"
			if errors.As(err, &buildErr) {
				code = buildErr.Code
			}
			metrics.IncBuildError(code)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"scope": scope.Describe(s)})
	}
}

// eventsHandler streams live meet-call counters to an operator dashboard
// over a websocket, the supplemental live event stream SPEC_FULL.md adds
// beyond the polled /metrics endpoint.
func eventsHandler(logger *obs.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", obs.Err(err))
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			meets, invalids := scope.Stats()
			payload, _ := json.Marshal(map[string]uint64{"meets": meets, "invalids": invalids})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
