package chaindonate

import (
	"time"

	"github.com/vitwit/chaindonate/events"
	"github.com/vitwit/chaindonate/intents"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
)

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithTimeout bounds a whole verification call.
func WithTimeout(t time.Duration) Option {
	return func(e *Engine) {
		e.timeout = t
	}
}

// WithRPCTimeout bounds each chain client call.
func WithRPCTimeout(t time.Duration) Option {
	return func(e *Engine) {
		e.rpcTimeout = t
	}
}

// WithPublisher receives ledger events after each commit. The engine
// closes it on Close.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithIntentConfig(cfg intents.Config) Option {
	return func(e *Engine) {
		e.intentCfg = cfg
	}
}

// WithAllocationCurrency selects INR, USD or NATIVE milestone allocation.
func WithAllocationCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = currency
	}
}
