// Package oracle resolves USD prices for assets through an ordered list of
// providers with a short-lived cache and a static fallback table.
package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/types"
)

const (
	DefaultTTL     = 30 * time.Second
	DefaultTimeout = 5 * time.Second
	usdPlaces      = 2
	SourceStatic   = "static"
	SourceCache    = "cache"
)

// Rate is a USD price and where it came from.
type Rate struct {
	USD    decimal.Decimal
	Source string
}

type RateOracle struct {
	providers []Provider
	cache     Cache
	ttl       time.Duration
	timeout   time.Duration
	static    map[string]decimal.Decimal
	inrPerUSD decimal.Decimal
	log       logger.Logger
	metrics   metrics.Recorder
}

// Config tunes a RateOracle. Static is keyed by asset symbol.
type Config struct {
	TTL       time.Duration
	Timeout   time.Duration
	Static    map[string]decimal.Decimal
	INRPerUSD decimal.Decimal
}

// New builds an oracle that tries providers in order. A nil cache uses
// an in-memory one.
func New(providers []Provider, cache Cache, cfg Config, log logger.Logger, rec metrics.Recorder) *RateOracle {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	static := make(map[string]decimal.Decimal, len(cfg.Static))
	for sym, price := range cfg.Static {
		static[strings.ToUpper(sym)] = price
	}
	return &RateOracle{
		providers: providers,
		cache:     cache,
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
		static:    static,
		inrPerUSD: cfg.INRPerUSD,
		log:       logger.Component(log, "oracle"),
		metrics:   rec,
	}
}

// GetRate returns the USD price of one native unit of the asset. Provider
// failures fall through to the next provider and finally to the static
// table; only a missing static entry is an error.
func (o *RateOracle) GetRate(ctx context.Context, asset types.Asset) (Rate, error) {
	if price, ok := o.cache.Get(ctx, asset.AssetID); ok {
		o.metrics.IncCounter(metrics.OracleCacheHit, map[string]string{"network": asset.NetworkID})
		return Rate{USD: price, Source: SourceCache}, nil
	}

	q := Quote{AssetID: asset.AssetID, Symbol: asset.Symbol, OracleID: asset.PriceOracleID}
	for i, p := range o.providers {
		fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
		price, err := p.FetchUSD(fetchCtx, q)
		cancel()
		if err != nil {
			o.log.Warn("rate provider failed, falling back", map[string]any{
				"provider": p.Name(),
				"asset":    asset.AssetID,
				"err":      err,
			})
			o.metrics.IncCounter(metrics.OracleFallback, map[string]string{"network": asset.NetworkID, "reason": p.Name()})
			continue
		}
		if i > 0 {
			o.log.Warn("rate served by fallback provider", map[string]any{"provider": p.Name(), "asset": asset.AssetID})
		}
		o.cache.Set(ctx, asset.AssetID, price, o.ttl)
		return Rate{USD: price, Source: p.Name()}, nil
	}

	price, ok := o.static[strings.ToUpper(asset.Symbol)]
	if !ok || !price.IsPositive() {
		return Rate{}, types.NewError(types.ErrConfig, "no rate available for %s", asset.Symbol)
	}
	o.log.Warn("all rate providers failed, using static rate", map[string]any{"asset": asset.AssetID, "usd": price.String()})
	o.metrics.IncCounter(metrics.OracleFallback, map[string]string{"network": asset.NetworkID, "reason": SourceStatic})
	return Rate{USD: price, Source: SourceStatic}, nil
}

// USDToNative converts a USD amount into native units rounded to the
// asset's decimals.
func (o *RateOracle) USDToNative(ctx context.Context, asset types.Asset, usd decimal.Decimal) (decimal.Decimal, Rate, error) {
	rate, err := o.GetRate(ctx, asset)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return USDToNative(usd, rate.USD, asset.Decimals), rate, nil
}

// NativeToUSD converts native units into USD rounded to cents.
func (o *RateOracle) NativeToUSD(ctx context.Context, asset types.Asset, native decimal.Decimal) (decimal.Decimal, Rate, error) {
	rate, err := o.GetRate(ctx, asset)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return NativeToUSD(native, rate.USD), rate, nil
}

// USDToINR converts with the configured reference rate. Without one the
// INR figure is zero.
func (o *RateOracle) USDToINR(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(o.inrPerUSD).Round(usdPlaces)
}

// USDToNative divides at asset precision.
func USDToNative(usd, price decimal.Decimal, decimals int32) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return usd.DivRound(price, decimals+4).Round(decimals)
}

// NativeToUSD multiplies and rounds to cents.
func NativeToUSD(native, price decimal.Decimal) decimal.Decimal {
	return native.Mul(price).Round(usdPlaces)
}
