package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	persistlog "tappytrade.io/internal/persistence/log"
	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/farms"
	"tappytrade.io/internal/sim/tuning"
	"tappytrade.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (catalog overrides + tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		storeKind  = flag.String("store", "file", "save store: file|sqlite|redis|memory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite audit/catch-up index")
		noAuditLog = flag.Bool("disable_audit_log", false, "disable zstd JSONL audit and catch-up logs")
		origins    = flag.String("cors_origins", "*", "comma-separated allowed origins")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file, using process environment")
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openSaveBackend(ctx, *storeKind, *dataDir, os.Getenv("TT_REDIS_URL"), *disableDB)
	if err != nil {
		logger.Fatalf("open save store: %v", err)
	}
	defer backend.Close()
	if backend.index != nil {
		if err := backend.index.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	mirror, err := buildSaveMirror(ctx, backend.name, log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("init redis mirror: %v", err)
	}
	defer mirror.Close()

	var audits persistlog.MultiAudit
	var catchUps persistlog.MultiCatchUp
	if !*noAuditLog {
		auditLog := persistlog.NewAuditLog(*dataDir)
		catchUpLog := persistlog.NewCatchUpLog(*dataDir)
		defer auditLog.Close()
		defer catchUpLog.Close()
		audits = append(audits, auditLog)
		catchUps = append(catchUps, catchUpLog)
	}
	if backend.index != nil {
		audits = append(audits, backend.index)
		catchUps = append(catchUps, backend.index)
	}

	clk := clock.RealClock{}
	gw := save.NewGateway(backend.store, farm.Rules{Cat: cats, Tune: tune}, clk, log.New(os.Stdout, "[save] ", log.LstdFlags|log.Lmicroseconds))
	if mirror != nil {
		gw.AddReplicator(mirror.mirror)
	}

	book := exchange.NewBook()
	cfg := farms.Config{
		Catalogs:   cats,
		Tuning:     tune,
		Gateway:    gw,
		Book:       book,
		Clock:      clk,
		Logger:     log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		ArchiveDir: *dataDir,
	}
	if len(audits) > 0 {
		cfg.Audit = audits
	}
	if len(catchUps) > 0 {
		cfg.CatchUps = catchUps
	}
	manager, err := farms.NewManager(cfg)
	if err != nil {
		logger.Fatalf("farms: %v", err)
	}

	allowed := splitOrigins(*origins)
	wsSrv := ws.NewServer(manager, book, clk, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	wsSrv.AllowOrigins(allowed)
	enableAdminHTTP := envBool("TT_ENABLE_ADMIN_HTTP", true)
	enablePprofHTTP := envBool("TT_ENABLE_PPROF_HTTP", false)
	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (TT_ENABLE_ADMIN_HTTP=false)")
	}
	srv := &http.Server{
		Addr: *addr,
		Handler: newHandler(handlerDeps{
			farms:   manager,
			ws:      wsSrv.Handler(),
			index:   backend.index,
			mirror:  mirror,
			origins: allowed,
			admin:   enableAdminHTTP,
			pprof:   enablePprofHTTP,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s store=%s protocol=%s", *addr, backend.name, tune.ProtocolVersion)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	manager.Close()
	logger.Printf("stopped")
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
