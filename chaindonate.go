// Package chaindonate accepts donations in many cryptocurrencies. It
// derives per-campaign deposit addresses, negotiates payment intents,
// verifies transfers against chain truth and posts them into a
// milestone-allocating ledger.
package chaindonate

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/vitwit/chaindonate/catalog"
	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/clients"
	"github.com/vitwit/chaindonate/deposits"
	"github.com/vitwit/chaindonate/events"
	"github.com/vitwit/chaindonate/intents"
	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/settlement"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/verification"
)

const (
	Version = "1.0.0"

	DefaultTimeout    = 30 * time.Second
	DefaultRPCTimeout = 5 * time.Second
)

// Engine is the entry point to every donation operation.
type Engine struct {
	store    store.Store
	catalog  *catalog.Catalog
	families *chains.Registry
	keys     *keys.Engine
	rates    intents.Rates

	deposits *deposits.Registry
	intents  *intents.Manager
	verifier *verification.VerificationService

	publisher  events.Publisher
	logger     logger.Logger
	metrics    metrics.Recorder
	timeout    time.Duration
	rpcTimeout time.Duration
	intentCfg  intents.Config
	currency   string

	mu      sync.Mutex
	clients []clients.Client
	closers []io.Closer
}

// SupportedNetwork reports whether a catalog network can verify transfers.
type SupportedNetwork struct {
	NetworkID  string            `json:"networkId"`
	Family     types.ChainFamily `json:"family"`
	Enabled    bool              `json:"enabled"`
	Verifiable bool              `json:"verifiable"`
}

// New wires an engine over s. Every catalog network starts without a
// client, so addresses can be issued but verification reports
// UNIMPLEMENTED until AddNetwork or AddFamily binds one.
func New(s store.Store, cat *catalog.Catalog, keyEngine *keys.Engine, rates intents.Rates, opts ...Option) (*Engine, error) {
	if s == nil || cat == nil || keyEngine == nil || rates == nil {
		return nil, types.NewError(types.ErrConfig, "store, catalog, key engine and rates are required")
	}
	e := newEngine(opts)
	e.wire(s, cat, keyEngine, rates)
	return e, nil
}

func newEngine(opts []Option) *Engine {
	e := &Engine{
		timeout:    DefaultTimeout,
		rpcTimeout: DefaultRPCTimeout,
		currency:   settlement.CurrencyINR,
		intentCfg:  intents.Config{TTL: intents.DefaultTTL},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.NoopLogger{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NoopRecorder{}
	}
	if e.publisher == nil {
		e.publisher = events.Noop{}
	}
	return e
}

func (e *Engine) wire(s store.Store, cat *catalog.Catalog, keyEngine *keys.Engine, rates intents.Rates) {
	e.store, e.catalog, e.keys, e.rates = s, cat, keyEngine, rates

	e.families = chains.NewRegistry()
	for _, n := range cat.Networks() {
		e.families.Add(chains.NewUnimplemented(n))
	}

	e.deposits = deposits.NewRegistry(s, cat, e.families, keyEngine, e.logger, e.metrics)
	e.intents = intents.NewManager(s, cat, e.families, e.deposits, rates, e.publisher, e.intentCfg, e.logger, e.metrics)
	poster := settlement.NewPoster(s, settlement.NewAllocator(), rates, e.publisher, e.currency, e.logger, e.metrics)
	e.verifier = verification.NewVerificationService(s, e.families, cat, rates, poster,
		e.intentCfg.VerifyGrace, e.timeout, e.logger, e.metrics)
}

// AddNetwork connects a chain client for a catalog network. EVM and SOL
// networks take a JSON-RPC URL, UTXO networks an esplora API base URL.
func (e *Engine) AddNetwork(ctx context.Context, networkID, endpoint string) error {
	n, err := e.catalog.Network(networkID)
	if err != nil {
		return err
	}
	if endpoint == "" {
		return types.NewError(types.ErrConfig, "network %s has no endpoint", networkID)
	}

	var (
		client clients.Client
		family chains.Family
	)
	switch n.Family {
	case types.FamilyEVM:
		c, err := clients.NewEVMClient(ctx, n.NetworkID, endpoint)
		if err != nil {
			return types.NewError(types.ErrConfig, "connect %s: %v", networkID, err)
		}
		client, family = c, chains.NewEVM(n, c, e.rpcTimeout)
	case types.FamilyUTXO:
		c := clients.NewExplorerClient(n.NetworkID, endpoint, e.rpcTimeout)
		client, family = c, chains.NewUTXO(n, c, e.rpcTimeout)
	case types.FamilySOL:
		c := clients.NewSolanaClient(n.NetworkID, endpoint)
		client, family = c, chains.NewSolana(n, c, e.rpcTimeout)
	default:
		return types.NewError(types.ErrUnimplemented, "network %s has unsupported family %s", networkID, n.Family)
	}

	e.mu.Lock()
	e.clients = append(e.clients, client)
	e.mu.Unlock()
	e.families.Add(family)
	e.logger.Info("network added", map[string]any{"network": networkID, "family": n.Family})
	return nil
}

// AddFamily registers a prepared chain family, replacing the network's
// current one.
func (e *Engine) AddFamily(f chains.Family) error {
	if _, err := e.catalog.Network(f.Network().NetworkID); err != nil {
		return err
	}
	e.families.Add(f)
	return nil
}

func (e *Engine) CreateIntent(ctx context.Context, req intents.CreateRequest) (*types.PaymentIntentView, error) {
	return e.intents.CreateIntent(ctx, req)
}

func (e *Engine) GetIntent(ctx context.Context, intentID string) (*types.PaymentIntentView, error) {
	return e.intents.GetIntent(ctx, intentID)
}

// VerifyIntentTransaction checks txRef, a hash or explorer URL, against the
// intent and posts it on success.
func (e *Engine) VerifyIntentTransaction(ctx context.Context, intentID, txRef string) (*types.VerificationResult, error) {
	return e.verifier.VerifyIntentTransaction(ctx, intentID, txRef)
}

// ExpireIntents expires open intents whose verify window closed before now.
func (e *Engine) ExpireIntents(ctx context.Context, now time.Time) (int, error) {
	return e.intents.ExpireIntents(ctx, now)
}

// DeriveAddress computes the deposit address a campaign would get for an
// asset without storing it.
func (e *Engine) DeriveAddress(campaignID, networkID, assetID string) (*keys.DerivedKey, error) {
	n, a, err := e.catalog.Resolve(networkID, assetID)
	if err != nil {
		return nil, err
	}
	f, err := e.families.Get(n.NetworkID)
	if err != nil {
		return nil, err
	}
	return f.DeriveAddress(e.keys, campaignID, a.Symbol, 0)
}

// Deposit returns the campaign's deposit for an asset, creating it on first use.
func (e *Engine) Deposit(ctx context.Context, key types.DepositKey) (*types.Deposit, error) {
	return e.deposits.GetOrCreate(ctx, key)
}

func (e *Engine) Supported() []SupportedNetwork {
	var out []SupportedNetwork
	for _, n := range e.catalog.Networks() {
		f, err := e.families.Get(n.NetworkID)
		_, stub := f.(*chains.Unimplemented)
		out = append(out, SupportedNetwork{
			NetworkID:  n.NetworkID,
			Family:     n.Family,
			Enabled:    n.Enabled,
			Verifiable: err == nil && !stub,
		})
	}
	return out
}

// Close releases chain clients, the publisher and the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.clients {
		c.Close()
	}
	e.clients = nil

	errs := []error{e.publisher.Close()}
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// GetVersion returns version information.
func GetVersion() map[string]any {
	return map[string]any{
		"library_version":    Version,
		"supported_families": []types.ChainFamily{types.FamilyEVM, types.FamilyUTXO, types.FamilySOL},
		"supported_assets":   []types.AssetType{types.AssetNative, types.AssetFungibleToken},
	}
}
