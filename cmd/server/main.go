package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"medledger/internal/access"
	auditHandler "medledger/internal/audit/handler"
	"medledger/internal/blobstore"
	"medledger/internal/cache"
	"medledger/internal/consent"
	consentHandler "medledger/internal/consent/handler"
	consentService "medledger/internal/consent/service"
	"medledger/internal/identity"
	"medledger/internal/ledger"
	"medledger/internal/platform/config"
	"medledger/internal/platform/httpserver"
	"medledger/internal/platform/logger"
	"medledger/internal/platform/metrics"
	"medledger/internal/platform/redis"
	"medledger/internal/records"
	recordHandler "medledger/internal/records/handler"
	"medledger/internal/signing"
	httptransport "medledger/internal/transport/http"
	"medledger/pkg/platform/audit"
	auditLevelDB "medledger/pkg/platform/audit/store/leveldb"
	auditMemory "medledger/pkg/platform/audit/store/memory"
	auditPostgres "medledger/pkg/platform/audit/store/postgres"
)

// main wires the dependency graph and owns the server lifecycle. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	m := metrics.New()
	checks := map[string]httptransport.HealthCheck{}

	hmac := signing.NewHMACSigner([]byte(cfg.AuditSigningKey))
	auditKey := signing.KeyRef("audit-ledger")

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		checks["postgres"] = db.PingContext
	}

	// Audit chain: Postgres when available, LevelDB for single-node durable
	// runs, memory otherwise.
	var auditStore audit.Store
	switch {
	case db != nil:
		auditStore = auditPostgres.New(db)
	case cfg.AuditPath != "":
		store, err := auditLevelDB.Open(cfg.AuditPath)
		if err != nil {
			return err
		}
		defer store.Close()
		auditStore = store
	default:
		log.Warn("audit chain is in-memory, entries do not survive restarts")
		auditStore = auditMemory.NewInMemoryStore()
	}
	auditWriter := audit.NewWriter(auditStore, hmac)

	// Consent store and its transaction boundary.
	var (
		consentStore consent.Store
		consentTx    consentService.ConsentTx
	)
	if db != nil {
		consentStore = consent.NewPostgres(db)
		consentTx = newConsentPostgresTx(db)
	} else {
		memStore := consent.NewInMemoryStore()
		consentStore = memStore
		consentTx = consentService.NewShardedTx(memStore)
	}

	// Grant cache: Redis when configured, in-process otherwise.
	var backend cache.Backend
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		backend = cache.NewRedis(redisClient)
	} else {
		backend = cache.NewMemory()
	}
	grantCache := cache.NewGrantCache(consentStore, backend, cfg.GrantCacheTTL, m, log)

	// Blob store for encrypted payloads.
	var blobs blobstore.Store
	if cfg.BlobPath != "" {
		store, err := blobstore.OpenLevelDB(cfg.BlobPath)
		if err != nil {
			return err
		}
		defer store.Close()
		blobs = store
	} else {
		blobs = blobstore.NewInMemoryStore()
	}

	// Record metadata on the dev ledger.
	var ledgerClient ledger.Client
	if cfg.LedgerPath != "" {
		client, err := ledger.OpenLevelDB(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer client.Close()
		ledgerClient = client
	} else {
		ledgerClient = ledger.NewInMemoryClient()
	}

	jwtValidator := identity.NewJWTService(cfg.JWTSigningKey, "medledger", "medledger-api")

	evaluator := access.NewEvaluator(grantCache)
	consentSvc := consentService.NewService(consentTx, consentStore, auditWriter, auditKey, hmac, grantCache, m, log)
	metadataStore := cache.NewMetadataCache(records.NewLedgerStore(ledgerClient), backend, cfg.GrantCacheTTL, m, log)
	recordSvc := records.NewService(metadataStore, blobs, evaluator, auditWriter, auditKey, m, log)

	router := httptransport.NewRouter(checks,
		consentHandler.New(consentSvc, log, m, jwtValidator),
		recordHandler.New(recordSvc, log, m, jwtValidator),
		auditHandler.New(audit.NewReader(auditStore), audit.NewVerifier(auditStore, hmac), log, m, jwtValidator),
	)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting medledger", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
