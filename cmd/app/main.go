// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"expert-assistant/internal/config"
	"expert-assistant/internal/domain/model"
	"expert-assistant/internal/domain/ports/repository"
	aiAdapters "expert-assistant/internal/infra/adapters/ai"
	"expert-assistant/internal/infra/api"
	"expert-assistant/internal/infra/db/memory"
	pg "expert-assistant/internal/infra/db/postgres"
	"expert-assistant/internal/infra/logging"
	"expert-assistant/internal/infra/metrics"
	red "expert-assistant/internal/infra/redis"
	"expert-assistant/internal/infra/security"
	"expert-assistant/internal/infra/worker"
	"expert-assistant/internal/persona"
	"expert-assistant/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to YAML config file (optional)")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI without a key, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
		metrics.SetBuildInfo(version, commit, cfg.AI.Provider)
	}

	// ---- Personas ----
	catalog, err := loadCatalog(cfg.Persona, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("persona catalog")
	}

	// ---- AI client ----
	client, err := aiAdapters.NewFromConfig(cfg.AI)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai client")
	}
	logger.Info().
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Str("api_key", logging.Redact(cfg.AI.APIKey, cfg.Runtime.Dev)).
		Msg("AI adapter ready")

	// ---- Encryption ----
	var sealer security.Sealer
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
		sealer = enc
	}

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, sealer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	defer st.close()

	// ---- Worker pool ----
	pool := worker.NewPool(cfg.Worker.Workers, logger)
	pool.Start(ctx)

	// ---- Sessions ----
	registry := usecase.NewSessionRegistry(
		usecase.RegistryConfig{MaxPerOwner: cfg.Session.MaxPerOwner, PersistTimeout: cfg.Session.PersistTimeout},
		catalog, client,
		usecase.WithSnapshots(st.snapshots),
		usecase.WithRegistryExecutor(pool),
		usecase.WithRegistryLogger(logger),
		usecase.WithSessionListener(func(ev usecase.Event) {
			metrics.IncSessionEvent(string(ev.Type), string(ev.Snapshot.Mode))
		}),
		usecase.WithLiveGauge(metrics.SetLiveSessions),
	)

	// ---- HTTP ----
	opts := []api.Option{}
	if cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetricsHandler(promhttp.Handler()))
	}
	if st.limiter != nil {
		opts = append(opts, api.WithRateLimiter(st.limiter))
	}
	srv := api.NewServer(cfg.Server, model.Mode(cfg.Session.DefaultMode), registry, catalog,
		st.credentials, api.NewClientAuth(cfg.Security), logger, opts...)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Sessions first so in-flight completions are discarded, then the pool.
	if err := registry.Close(shCtx); err != nil {
		logger.Error().Err(err).Msg("close sessions")
	}
	pool.Stop()
	cancel()
}

func loadCatalog(cfg config.PersonaConfig, logger *zerolog.Logger) (*persona.Catalog, error) {
	var (
		products persona.StaticProducts
		err      error
	)
	if cfg.ProductsFile != "" {
		products, err = persona.LoadProducts(os.DirFS(filepath.Dir(cfg.ProductsFile)), filepath.Base(cfg.ProductsFile))
	} else {
		products, err = persona.DefaultProducts()
	}
	if err != nil {
		return nil, err
	}
	opts := []persona.Option{persona.WithLogger(logger)}
	if cfg.DefinitionsFile != "" {
		defs, err := persona.LoadDefinitions(os.DirFS(filepath.Dir(cfg.DefinitionsFile)), filepath.Base(cfg.DefinitionsFile))
		if err != nil {
			return nil, err
		}
		opts = append(opts, persona.WithDefinitions(defs))
	}
	logger.Info().Int("products", len(products)).Msg("persona catalog loaded")
	return persona.NewCatalog(products, opts...)
}

type storage struct {
	snapshots   repository.SessionSnapshotRepository
	credentials repository.CredentialStore
	limiter     api.Limiter
	closers     []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

const messagesPerMinute = 30

func openStorage(ctx context.Context, cfg *config.Config, sealer security.Sealer, logger *zerolog.Logger) (*storage, error) {
	st := &storage{
		snapshots:   memory.NewSnapshotRepo(),
		credentials: memory.NewCredentialStore(),
	}

	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		redisClient = c
		st.closers = append(st.closers, func() { _ = c.Close() })
		st.limiter = red.NewRateLimiter(c, messagesPerMinute, time.Minute)
		if sealer != nil {
			creds, err := red.NewCredentialStore(c, sealer, cfg.Security.TokenTTL)
			if err != nil {
				return nil, err
			}
			st.credentials = creds
		} else {
			logger.Warn().Msg("security.encryption_key not set; api keys are kept in memory only")
		}
	}

	switch cfg.Session.Store {
	case "redis":
		if sealer == nil {
			logger.Warn().Msg("security.encryption_key not set; chat history stored unencrypted")
		}
		st.snapshots = red.NewSnapshotRepo(redisClient, red.NewSnapshotCache(redisClient, sealer, cfg.Redis.TTL))
	case "postgres":
		if cfg.Database.MigrateOnStart {
			if err := pg.RunMigrations(cfg.Database.URL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

		var cache *red.SnapshotCache
		if redisClient != nil {
			cache = red.NewSnapshotCache(redisClient, sealer, cfg.Redis.TTL)
		}
		if sealer == nil {
			logger.Warn().Msg("security.encryption_key not set; chat history stored unencrypted")
		}
		st.snapshots = pg.NewSnapshotRepo(pool, cache, sealer)
	}
	logger.Info().Str("store", cfg.Session.Store).Bool("redis", redisClient != nil).Msg("storage ready")
	return st, nil
}
