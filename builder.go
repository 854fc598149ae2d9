package chaindonate

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/vitwit/chaindonate/catalog"
	"github.com/vitwit/chaindonate/config"
	"github.com/vitwit/chaindonate/events"
	"github.com/vitwit/chaindonate/intents"
	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/store/gormstore"
	"github.com/vitwit/chaindonate/store/mongostore"
	"github.com/vitwit/chaindonate/types"
)

// NewFromConfig opens the configured store, seed, oracle and event
// publisher, and connects a client for every enabled network that has an
// endpoint. opts are applied before the config, so WithLogger and
// WithMetrics take effect for the whole build.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrConfig, "config is required")
	}

	cfgOpts := []Option{
		WithRPCTimeout(cfg.RPCTimeout),
		WithAllocationCurrency(cfg.Ledger.AllocationCurrency),
		WithIntentConfig(intents.Config{
			TTL:          cfg.Intents.TTL,
			VerifyGrace:  cfg.Intents.VerifyGrace,
			DisableNonce: cfg.Intents.DisableNonce,
		}),
	}
	e := newEngine(append(cfgOpts, opts...))

	cat, err := catalog.New(cfg.CatalogNetworks(), cfg.CatalogAssets())
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	keyEngine, err := loadKeys(ctx, cfg.Keys, e.logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	rates, err := buildOracle(cfg.Oracle, e)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			_ = s.Close()
			return nil, types.NewError(types.ErrConfig, "connect nats: %v", err)
		}
		e.publisher = pub
	}

	e.wire(s, cat, keyEngine, rates)

	for _, n := range cfg.Networks {
		if n.Enabled != nil && !*n.Enabled {
			continue
		}
		endpoint, _ := cfg.Endpoint(n.ID)
		if endpoint == "" {
			e.logger.Warn("network has no endpoint, verification unavailable", map[string]any{"network": n.ID})
			continue
		}
		if err := e.AddNetwork(ctx, n.ID, endpoint); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return e, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		s, err := mongostore.Open(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, "open mongo store: %v", err)
		}
		return s, nil
	default:
		s, err := gormstore.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, "open %s store: %v", cfg.Driver, err)
		}
		return s, nil
	}
}

func loadKeys(ctx context.Context, cfg config.KeysConfig, log logger.Logger) (*keys.Engine, error) {
	var sealer keys.Sealer
	aes, err := keys.SealerFromEnv(cfg.KeyEnv, cfg.IVEnv)
	switch {
	case err == nil:
		sealer = aes
	case !errors.Is(err, keys.ErrNoSealKey):
		return nil, types.NewError(types.ErrConfig, "seal key: %v", err)
	}
	return keys.LoadOrCreate(ctx, &keys.FileSeedStore{Path: cfg.SeedFile}, sealer, log)
}

func buildOracle(cfg config.OracleConfig, e *Engine) (*oracle.RateOracle, error) {
	root := &config.Config{Oracle: cfg}
	static, err := root.StaticPrices()
	if err != nil {
		return nil, err
	}
	inr, err := root.INRPerUSD()
	if err != nil {
		return nil, err
	}

	var cache oracle.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.closers = append(e.closers, client)
		cache = oracle.NewRedisCache(client, cfg.Redis.Prefix)
	}

	providers := oracle.DefaultProviders(cfg.CoinGeckoURL, cfg.BinanceURL, cfg.CoinbaseURL, cfg.Timeout)
	return oracle.New(providers, cache, oracle.Config{
		TTL:       cfg.CacheTTL,
		Timeout:   cfg.Timeout,
		Static:    static,
		INRPerUSD: inr,
	}, e.logger, e.metrics), nil
}
