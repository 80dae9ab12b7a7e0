// Command resolverd runs the recursive DNS resolver as a standalone
// UDP daemon: load config, bind the listener, serve until signaled.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-dns/resolverd/internal/config"
	"github.com/kestrel-dns/resolverd/internal/ratelimit"
	"github.com/kestrel-dns/resolverd/internal/rrl"
	"github.com/kestrel-dns/resolverd/internal/server"
)

// scanConfigPath pulls -config/--config out of the raw argument list
// ahead of the main flag.Parse pass, since the config file (if any)
// must be loaded and merged before the rest of the flags are
// registered with their file-aware defaults.
func scanConfigPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func main() {
	cfg := config.Default()
	if path := scanConfigPath(os.Args[1:]); path != "" {
		f, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("resolverd: %v", err)
		}
		cfg, err = cfg.Merge(f)
		if err != nil {
			log.Fatalf("resolverd: %v", err)
		}
	}
	flag.String("config", "", "path to YAML config file (optional)")

	result, applyFlags := config.Flags(flag.CommandLine, cfg)
	flag.Parse()
	applyFlags()
	cfg = *result

	logger := log.New(os.Stderr, "resolverd: ", log.LstdFlags)

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.QueriesPerSecond = cfg.RateLimitQPS
	rlCfg.BurstSize = cfg.RateLimitBurst

	rrlCfg := rrl.DefaultConfig()
	rrlCfg.Enabled = cfg.RRLEnabled

	srv, err := server.New(server.Config{
		Listen:             cfg.Listen,
		MaxDelegationDepth: cfg.MaxDelegationDepth,
		QueryTimeout:       cfg.QueryTimeout,
		Workers:            cfg.Workers,
		QueueSize:          cfg.QueueSize,
		RateLimit:          rlCfg,
		ACLAllow:           cfg.ACLAllow,
		ACLDeny:            cfg.ACLDeny,
		ACLDefault:         cfg.ACLDefaultAllow,
		RRL:                rrlCfg,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatalf("building server: %v", err)
	}

	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Printf("metrics listener stopped: %v", err)
			}
		}()
		logger.Printf("metrics on %s/metrics", cfg.MetricsListen)
	}

	if err := srv.Start(); err != nil {
		logger.Fatalf("starting server: %v", err)
	}
	fmt.Printf("resolverd listening on %s\n", cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := srv.Stop(); err != nil {
		logger.Fatalf("stopping server: %v", err)
	}
}
