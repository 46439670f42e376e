package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/config"
	"neighborhood.land/internal/ledger"
	persistlog "neighborhood.land/internal/persistence/log"
	"neighborhood.land/internal/persistence/offsite"
	"neighborhood.land/internal/persistence/postgres"
	"neighborhood.land/internal/persistence/sqlite"
	"neighborhood.land/internal/transport/httpapi"
	"neighborhood.land/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "server config path")
		configDir  = flag.String("configs", "", "config directory (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		dbPath     = flag.String("db", "", "sqlite database path (overrides config)")
		pgDSN      = flag.String("postgres", "", "postgres mirror dsn (overrides config; empty disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", *configPath)
			cfg = config.Defaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *configDir != "" {
		cfg.ConfigDir = *configDir
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *pgDSN != "" {
		cfg.PostgresDSN = *pgDSN
	}

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	_ = os.MkdirAll(cfg.DataDir, 0o755)
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := ledger.NewStore(db, cats, logger)

	audit := persistlog.NewAuditLogger(cfg.DataDir)
	defer audit.Close()
	store.SetAuditSink(audit)

	feed := ws.NewFeed(store, cats, logger, cfg.WS.QueueSize)
	store.SetNotifier(feed.Broadcast)

	ctx, cancel := signalContext()
	defer cancel()

	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		mirror, err := postgres.Open(ctx, dsn, store, logger)
		if err != nil {
			logger.Fatalf("open postgres mirror: %v", err)
		}
		defer mirror.Close()
		go mirror.Run(ctx, time.Duration(cfg.MirrorIntervalSec)*time.Second)
		logger.Printf("postgres mirror enabled (every %ds)", cfg.MirrorIntervalSec)
	}

	var archiver *offsite.Archiver
	if endpoint := strings.TrimSpace(os.Getenv("NL_S3_ENDPOINT")); endpoint != "" {
		client, err := offsite.NewClient(endpoint,
			os.Getenv("NL_S3_BUCKET"),
			os.Getenv("NL_S3_ACCESS_KEY_ID"),
			os.Getenv("NL_S3_SECRET_ACCESS_KEY"))
		if err != nil {
			logger.Fatalf("offsite client: %v", err)
		}
		archiver = offsite.NewArchiver(client, cfg.DataDir, os.Getenv("NL_S3_PREFIX"), logger)
		go archiver.Run(ctx, 5*time.Minute)
		logger.Printf("offsite audit archive enabled")
	}

	mux := http.NewServeMux()

	api := httpapi.NewServer(store, cats, logger)
	api.SetHistoryLimits(cfg.History.DefaultLimit, cfg.History.MaxLimit)
	api.Register(mux)

	mux.HandleFunc("/v1/ws", feed.Handler())

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		m := store.Metrics()
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP neighborhood_purchases_total Total committed plot purchases.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_purchases_total counter\n")
		fmt.Fprintf(rw, "neighborhood_purchases_total %d\n", m.Purchases)
		fmt.Fprintf(rw, "# HELP neighborhood_sales_total Total committed plot sales.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_sales_total counter\n")
		fmt.Fprintf(rw, "neighborhood_sales_total %d\n", m.Sales)
		fmt.Fprintf(rw, "# HELP neighborhood_conflicts_total Ownership attempts rejected by invariants.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_conflicts_total counter\n")
		fmt.Fprintf(rw, "neighborhood_conflicts_total %d\n", m.Conflicts)
		fmt.Fprintf(rw, "# HELP neighborhood_adjacency_queries_total Adjacency lookups served.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_adjacency_queries_total counter\n")
		fmt.Fprintf(rw, "neighborhood_adjacency_queries_total %d\n", m.AdjacencyQueries)
		fmt.Fprintf(rw, "# HELP neighborhood_storage_faults_total Storage layer failures.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_storage_faults_total counter\n")
		fmt.Fprintf(rw, "neighborhood_storage_faults_total %d\n", m.StorageFaults)
		fmt.Fprintf(rw, "# HELP neighborhood_ws_clients Connected live feed viewers.\n")
		fmt.Fprintf(rw, "# TYPE neighborhood_ws_clients gauge\n")
		fmt.Fprintf(rw, "neighborhood_ws_clients %d\n", feed.ClientCount())

		if archiver != nil {
			s := archiver.Stats()
			fmt.Fprintf(rw, "# HELP neighborhood_offsite_upload_success_total Audit files uploaded offsite.\n")
			fmt.Fprintf(rw, "# TYPE neighborhood_offsite_upload_success_total counter\n")
			fmt.Fprintf(rw, "neighborhood_offsite_upload_success_total %d\n", s.UploadSuccessTotal)
			fmt.Fprintf(rw, "# HELP neighborhood_offsite_upload_fail_total Audit uploads failed after retry.\n")
			fmt.Fprintf(rw, "# TYPE neighborhood_offsite_upload_fail_total counter\n")
			fmt.Fprintf(rw, "neighborhood_offsite_upload_fail_total %d\n", s.UploadFailTotal)
			fmt.Fprintf(rw, "# HELP neighborhood_offsite_last_success_unix Unix timestamp of last successful offsite upload.\n")
			fmt.Fprintf(rw, "# TYPE neighborhood_offsite_last_success_unix gauge\n")
			fmt.Fprintf(rw, "neighborhood_offsite_last_success_unix %d\n", s.LastSuccessUnix)
		}
	})

	if envBool("NL_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (db=%s)", cfg.Addr, filepath.Clean(cfg.DBPath))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
