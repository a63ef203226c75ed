package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"mudgate.gg/internal/persistence/synclog"
	"mudgate.gg/internal/persistence/worlddb"
	"mudgate.gg/internal/platform"
	"mudgate.gg/internal/platform/discord"
	"mudgate.gg/internal/recon"
	"mudgate.gg/internal/sched"
	"mudgate.gg/internal/transport/console"
	"mudgate.gg/internal/world"
)

// envConfig carries the secrets and deployment identifiers that should not
// appear on a command line.
type envConfig struct {
	Token   string `env:"MUDGATE_TOKEN"`
	GuildID string `env:"MUDGATE_GUILD_ID"`
	Console string `env:"MUDGATE_CONSOLE_CHANNEL" envDefault:"console"`
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8080", "operator http listen address")
		worldDir = flag.String("worlds", "./configs/worlds", "world definition directory")
		dataDir  = flag.String("data", "./data", "runtime data directory")
		interval = flag.Duration("interval", sched.DefaultInterval, "periodic sync interval")
		dryRun   = flag.Bool("dry_run", false, "reconcile against an in-memory guild instead of Discord")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	syncLogger := log.New(os.Stdout, "[sync] ", log.LstdFlags|log.Lmicroseconds)

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Fatalf("parse env: %v", err)
	}

	// Fail fast on an unloadable world before touching anything live.
	if _, err := world.Load(*worldDir); err != nil {
		logger.Fatalf("load world: %v", err)
	}

	db, err := worlddb.Open(filepath.Join(*dataDir, "mudgate.db"))
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	passLog := synclog.NewWriter(filepath.Join(*dataDir, "synclog"))
	defer passLog.Close()

	var client platform.Client
	if *dryRun {
		logger.Printf("dry run: using in-memory guild")
		client = platform.NewFake()
	} else {
		if cfg.Token == "" || cfg.GuildID == "" {
			logger.Fatalf("MUDGATE_TOKEN and MUDGATE_GUILD_ID are required (or pass -dry_run)")
		}
		dc, err := discord.New(cfg.Token, cfg.GuildID)
		if err != nil {
			logger.Fatalf("connect discord: %v", err)
		}
		defer dc.Close()
		client = dc
	}

	engine := &recon.Engine{
		Load:      func() (*world.Definition, error) { return world.Load(*worldDir) },
		Mirror:    db,
		Locations: db,
		Topology: &recon.TopologyReconciler{
			Client:  client,
			Orphans: db.Orphans(),
			Console: cfg.Console,
			Log:     syncLogger,
		},
		Visibility: &recon.VisibilityReconciler{
			Client:    client,
			Locations: db,
			Console:   cfg.Console,
			Log:       syncLogger,
		},
		Client: client,
		Log:    syncLogger,
	}

	scheduler := sched.New(engine.RunPass, *interval, syncLogger)
	operator := console.NewServer(scheduler.WaitUntilReady, engine.Directory, logger)

	engine.OnReport = func(rep recon.PassReport) {
		if err := passLog.Write(rep); err != nil {
			logger.Printf("sync log: %v", err)
		}
		operator.Broadcast(rep)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/console", operator.StreamHandler())
	mux.HandleFunc("/v1/resolve", operator.ResolveHandler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"state": scheduler.State().String(),
			"rooms": engine.Directory().Len(),
		})
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("operator endpoint on http://%s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("starting sync (interval %s)", *interval)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("scheduler: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Printf("bye")
}
