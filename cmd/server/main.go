package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/restohub/ingest/internal/backend"
	"github.com/restohub/ingest/internal/breaker"
	"github.com/restohub/ingest/internal/ingest"
	"github.com/restohub/ingest/internal/notify"
	"github.com/restohub/ingest/internal/provider"
	"github.com/restohub/ingest/internal/retry"
	"github.com/restohub/ingest/internal/signature"
	"github.com/restohub/ingest/internal/storage"
	"github.com/restohub/ingest/internal/storage/pgstore"
	"github.com/restohub/ingest/pkg/config"
	"github.com/restohub/ingest/pkg/httpserver"
	"github.com/restohub/ingest/pkg/logger"
	"github.com/restohub/ingest/pkg/pg"
	"github.com/restohub/ingest/pkg/ratelimiter"
	"github.com/restohub/ingest/pkg/redis"
)

// breakerEnv mirrors the millisecond-based circuit breaker settings.
type breakerEnv struct {
	TimeoutMS         int64 `env:"CIRCUIT_BREAKER_TIMEOUT_MS" envDefault:"5000"`
	ErrorThresholdPct int   `env:"CIRCUIT_BREAKER_ERROR_THRESHOLD_PCT" envDefault:"50"`
	ResetTimeoutMS    int64 `env:"CIRCUIT_BREAKER_RESET_TIMEOUT_MS" envDefault:"30000"`
}

// rateLimitEnv configures the per-(provider, IP) token bucket.
type rateLimitEnv struct {
	Capacity     int `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`
	RefillPerSec int `env:"RATE_LIMIT_REFILL_PER_SEC" envDefault:"1"`
}

// providerEnv holds one provider's signature settings, loaded with the
// provider name as env prefix (CAREEM_WEBHOOK_SECRET, ...).
type providerEnv struct {
	Secret            string   `env:"WEBHOOK_SECRET"`
	IPWhitelist       []string `env:"IP_WHITELIST" envSeparator:","`
	SignatureHeader   string   `env:"SIGNATURE_HEADER"`
	SignatureEncoding string   `env:"SIGNATURE_ENCODING" envDefault:"hex"`
}

func main() {
	ctx := context.Background()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.New(logCfg, ingest.ServiceName, os.Stdout)
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	registry := provider.NewRegistry(
		provider.NewCareemAdapter(),
		provider.NewTalabatAdapter(),
	)

	validator := signature.NewValidator(loadProviderConfigs(registry, log))

	var breakerCfg breakerEnv
	config.MustLoad(&breakerCfg)
	cb := breaker.New(breaker.Config{
		CallTimeout:       time.Duration(breakerCfg.TimeoutMS) * time.Millisecond,
		ErrorThresholdPct: breakerCfg.ErrorThresholdPct,
		ResetTimeout:      time.Duration(breakerCfg.ResetTimeoutMS) * time.Millisecond,
	})

	var backendCfg backend.Config
	config.MustLoad(&backendCfg)
	client := backend.NewClient(backendCfg, cb)

	store, cleanup, err := buildStore(ctx, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var retryCfg retry.Config
	config.MustLoad(&retryCfg)
	queue := retry.NewQueue(store, retry.PolicyFromConfig(retryCfg), retryCfg.MaxAttempts)

	hub := notify.NewHub()
	defer hub.Close()
	notifier := notify.Multi{notify.Slog{Log: log}, hub}

	processor := retry.NewProcessor(queue, store, client, notifier, log, retryCfg)
	processor.Start(ctx)
	defer processor.Stop()

	orchestrator := ingest.NewOrchestrator(registry, validator, client, queue, store, notifier, log)

	limiter, limiterCleanup, err := buildLimiter(ctx, log)
	if err != nil {
		return err
	}
	defer limiterCleanup()

	handler := ingest.NewHandler(orchestrator, cb, queue, limiter, log)

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	return httpserver.New(httpCfg, log).Run(ctx, handler.Router())
}

// loadProviderConfigs reads signature settings for every registered adapter.
// Providers without a secret stay unconfigured and fail signature validation
// until one is supplied.
func loadProviderConfigs(registry *provider.Registry, log *slog.Logger) map[string]signature.Config {
	configs := make(map[string]signature.Config)
	for _, name := range registry.Names() {
		prefix := strings.ToUpper(name) + "_"

		var cfg providerEnv
		if err := config.LoadPrefixed(&cfg, prefix); err != nil {
			log.Warn("provider config unreadable, provider disabled",
				slog.String("provider", name),
				slog.String("error", err.Error()))
			continue
		}
		if cfg.Secret == "" {
			log.Warn("provider has no webhook secret, provider disabled",
				slog.String("provider", name))
			continue
		}

		header := cfg.SignatureHeader
		if header == "" {
			header = "x-" + name + "-signature"
		}
		configs[name] = signature.Config{
			Secret:     cfg.Secret,
			Header:     header,
			Encoding:   signature.Encoding(cfg.SignatureEncoding),
			AllowedIPs: cfg.IPWhitelist,
		}
		log.Info("provider configured",
			slog.String("provider", name),
			slog.String("signature_header", header),
			slog.Int("allowed_ips", len(cfg.IPWhitelist)))
	}
	return configs
}

// buildStore picks Postgres when PG_CONN_URL is set, otherwise the
// in-memory store for local development.
func buildStore(ctx context.Context, log *slog.Logger) (storage.Store, func(), error) {
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	if pgCfg.ConnectionString == "" {
		log.Warn("PG_CONN_URL not set, using in-memory storage; retry state will not survive restarts")
		return storage.NewMemoryStore(), func() {}, nil
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("postgres storage ready")
	return pgstore.New(pool), pool.Close, nil
}

// buildLimiter uses the Redis store when REDIS_URL is set so limits hold
// across instances, otherwise a per-process memory store.
func buildLimiter(ctx context.Context, log *slog.Logger) (*ratelimiter.Limiter, func(), error) {
	var rlCfg rateLimitEnv
	config.MustLoad(&rlCfg)
	limitCfg := ratelimiter.Config{
		Capacity:       rlCfg.Capacity,
		RefillRate:     rlCfg.RefillPerSec,
		RefillInterval: time.Second,
	}

	var redisCfg redis.Config
	config.MustLoad(&redisCfg)

	if redisCfg.URL == "" {
		memStore := ratelimiter.NewMemoryStore()
		limiter, err := ratelimiter.New(memStore, limitCfg)
		if err != nil {
			memStore.Close()
			return nil, nil, err
		}
		return limiter, memStore.Close, nil
	}

	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := ratelimiter.New(ratelimiter.NewRedisStore(client), limitCfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("redis rate limit store ready")
	return limiter, func() { _ = client.Close() }, nil
}
