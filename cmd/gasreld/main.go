// Package main is the gasreld daemon: a durable, per-actor transaction
// dispatcher that submits chain transactions on behalf of a sponsor account.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chesschain/gasreld/internal/chain"
	"github.com/chesschain/gasreld/internal/config"
	"github.com/chesschain/gasreld/internal/dispatcher"
	"github.com/chesschain/gasreld/internal/events"
	"github.com/chesschain/gasreld/internal/health"
	"github.com/chesschain/gasreld/internal/intake"
	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/internal/reward"
	"github.com/chesschain/gasreld/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "set-authorized-minter":
			runSetAuthorizedMinter(os.Args[2:])
			return
		case "reclaim-stuck":
			runReclaimStuck(os.Args[2:])
			return
		case "-version", "--version":
			fmt.Printf("gasreld %s (commit: %s)\n", version, commit)
			return
		}
	}
	runDaemon()
}

func runDaemon() {
	var (
		dataDir     = flag.String("data-dir", "~/.gasreld", "Data directory (holds config.yaml)")
		configFile  = flag.String("config", "", "Config file path; only its directory is used and config.yaml is read from there (default: <data-dir>/config.yaml)")
		logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("gasreld %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(*dataDir, *configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := queue.New(queue.Config{DSN: cfg.Store.DSN()})
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer store.Close()
	log.Info("store initialized", "host", cfg.Store.Host, "database", cfg.Store.Database)

	sponsor, err := chain.NewSponsor(cfg.Sponsor.Secret)
	if err != nil {
		log.Fatal("failed to decode sponsor secret", "error", err)
	}
	if cfg.Sponsor.Address != "" && cfg.Sponsor.Address != sponsor.Address() {
		log.Fatal("sponsor address mismatch",
			"configured", cfg.Sponsor.Address, "decoded", sponsor.Address())
	}
	log.Info("sponsor keypair loaded", "address", sponsor.Address())

	rpcClient := chain.NewRPCClient(chainRPCURL(cfg.Chain))
	gateway := chain.NewGateway(rpcClient, sponsor, cfg.Chain.PackageID, cfg.Chain.RegistryID, cfg.Chain.GasBudget)

	engine := reward.NewEngine(store)

	hub := events.NewHub(nil)
	go hub.Run()

	in := intake.New(store, engine, hub)
	hub.SetHandler(intake.NewHandler(in).Handle)

	processor := dispatcher.NewProcessor(store, gateway, hub)
	worker := dispatcher.NewWorker(store, processor, hub, dispatcher.WorkerConfig{
		MaxRetries: cfg.Dispatcher.MaxRetries,
		BaseDelay:  cfg.Dispatcher.RetryBaseDelay(),
	})
	d := dispatcher.New(store, worker, cfg.Dispatcher.ProcessingInterval())

	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler())
	mux.Handle(cfg.Server.EventPath, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: corsMiddleware(cfg.Server.CORSOrigin, mux)}

	go func() {
		log.Info("http server listening", "addr", addr, "event_path", cfg.Server.EventPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(dispatcherDone)
	}()
	log.Info("dispatcher started", "interval", cfg.Dispatcher.ProcessingInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	cancel()
	<-dispatcherDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping http server", "error", err)
	}

	log.Info("goodbye")
}

func runSetAuthorizedMinter(args []string) {
	fs := flag.NewFlagSet("set-authorized-minter", flag.ExitOnError)
	var (
		dataDir    = fs.String("data-dir", "~/.gasreld", "Data directory (holds config.yaml)")
		configFile = fs.String("config", "", "Config file path; only its directory is used and config.yaml is read from there")
		newMinter  = fs.String("new-minter", "", "Address to authorize as the new minter")
	)
	fs.Parse(args)

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *newMinter == "" {
		log.Fatal("set-authorized-minter requires -new-minter")
	}

	cfg, err := loadConfig(*dataDir, *configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	sponsor, err := chain.NewSponsor(cfg.Sponsor.Secret)
	if err != nil {
		log.Fatal("failed to decode sponsor secret", "error", err)
	}

	rpcClient := chain.NewRPCClient(chainRPCURL(cfg.Chain))
	gateway := chain.NewGateway(rpcClient, sponsor, cfg.Chain.PackageID, cfg.Chain.RegistryID, cfg.Chain.GasBudget)

	tx := gateway.BuildSetAuthorizedMinter(cfg.Chain.RegistryID, *newMinter)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := gateway.Submit(ctx, tx)
	if err != nil {
		log.Fatal("set-authorized-minter failed", "error", err)
	}
	log.Info("set-authorized-minter submitted", "digest", result.Digest, "new_minter", *newMinter)
}

func runReclaimStuck(args []string) {
	fs := flag.NewFlagSet("reclaim-stuck", flag.ExitOnError)
	var (
		dataDir    = fs.String("data-dir", "~/.gasreld", "Data directory (holds config.yaml)")
		configFile = fs.String("config", "", "Config file path; only its directory is used and config.yaml is read from there")
		olderThan  = fs.Duration("older-than", 10*time.Minute, "Reclaim Processing rows stuck longer than this")
	)
	fs.Parse(args)

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := loadConfig(*dataDir, *configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	store, err := queue.New(queue.Config{DSN: cfg.Store.DSN()})
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := store.ReclaimStuck(ctx, *olderThan)
	if err != nil {
		log.Fatal("reclaim-stuck failed", "error", err)
	}
	log.Info("reclaimed stuck rows", "count", n, "older_than", *olderThan)
}

func loadConfig(dataDir, configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfig(dirOf(configFile))
	}
	return config.LoadConfig(dataDir)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// corsMiddleware adds CORS headers permitting origin (or every origin, if
// origin is "*") ahead of next.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowOrigin := origin
		if allowOrigin == "*" {
			if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" {
				allowOrigin = reqOrigin
			}
		}
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func chainRPCURL(cfg config.ChainConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	switch cfg.Network {
	case "testnet":
		return "https://fullnode.testnet.sui.io:443"
	case "devnet":
		return "https://fullnode.devnet.sui.io:443"
	default:
		return "https://fullnode.mainnet.sui.io:443"
	}
}
