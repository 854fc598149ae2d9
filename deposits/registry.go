// Package deposits hands out the single deposit address of every
// campaign, asset and network combination.
package deposits

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

// Resolver looks up an enabled network and asset pair.
type Resolver interface {
	Resolve(networkID, assetID string) (types.Network, types.Asset, error)
}

// FamilyLookup returns the chain family strategy of a network.
type FamilyLookup interface {
	Get(networkID string) (chains.Family, error)
}

type Registry struct {
	store    store.Store
	catalog  Resolver
	families FamilyLookup
	engine   *keys.Engine
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewRegistry(s store.Store, catalog Resolver, families FamilyLookup, engine *keys.Engine, log logger.Logger, rec metrics.Recorder) *Registry {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Registry{
		store:    s,
		catalog:  catalog,
		families: families,
		engine:   engine,
		log:      logger.Component(log, "deposits"),
		metrics:  rec,
		now:      time.Now,
	}
}

// GetOrCreate returns the deposit for key, deriving and storing it on first
// use. Concurrent callers converge on whichever deposit was stored first.
func (r *Registry) GetOrCreate(ctx context.Context, key types.DepositKey) (*types.Deposit, error) {
	network, asset, err := r.catalog.Resolve(key.NetworkID, key.AssetID)
	if err != nil {
		return nil, err
	}

	existing, campaign, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	d, err := r.newDeposit(key, network, asset, campaign)
	if err != nil {
		return nil, err
	}

	var winner *types.Deposit
	err = r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		created, err := tx.CreateDepositIfAbsent(ctx, d)
		if err != nil {
			return err
		}
		if created {
			winner = d
			return nil
		}
		winner, err = tx.GetDeposit(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	if winner == d {
		r.metrics.IncCounter(metrics.DepositCreated, map[string]string{"network": key.NetworkID})
		fields := map[string]any{
			"deposit":     key.String(),
			"address":     d.Address,
			"source":      d.Source,
			"path":        d.DerivationPath,
			"recoverable": d.Recoverable,
		}
		if !d.Recoverable {
			logger.Critical(r.log, "deposit derived from ephemeral seed", fields)
		} else {
			r.log.Info("deposit created", fields)
		}
	}
	return winner, nil
}

// Get returns a stored deposit without creating one.
func (r *Registry) Get(ctx context.Context, key types.DepositKey) (*types.Deposit, error) {
	d, err := store.Read(ctx, r.store, func(ctx context.Context, tx store.Tx) (*types.Deposit, error) {
		return tx.GetDeposit(ctx, key)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound, "no deposit for %s", key)
	}
	return d, err
}

func (r *Registry) lookup(ctx context.Context, key types.DepositKey) (*types.Deposit, *types.Campaign, error) {
	var (
		deposit  *types.Deposit
		campaign *types.Campaign
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.GetDeposit(ctx, key)
		switch {
		case err == nil:
			deposit = d
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		c, err := tx.GetCampaign(ctx, key.CampaignID, false)
		switch {
		case err == nil:
			campaign = c
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return nil
	})
	return deposit, campaign, err
}

func (r *Registry) newDeposit(key types.DepositKey, network types.Network, asset types.Asset, campaign *types.Campaign) (*types.Deposit, error) {
	d := &types.Deposit{
		CampaignID: key.CampaignID,
		AssetID:    key.AssetID,
		NetworkID:  key.NetworkID,
		CreatedAt:  r.now().UTC(),
	}

	if network.IsEVM() && campaign != nil && campaign.VaultAddress != "" {
		if !utils.IsEVMAddress(campaign.VaultAddress) {
			return nil, types.NewError(types.ErrConfig, "campaign %s vault %q is not an EVM address",
				key.CampaignID, campaign.VaultAddress)
		}
		d.Address = utils.ChecksumEVMAddress(campaign.VaultAddress)
		d.Source = types.DepositVault
		d.Recoverable = true
		return d, nil
	}

	family, err := r.families.Get(key.NetworkID)
	if err != nil {
		return nil, err
	}
	derived, err := family.DeriveAddress(r.engine, key.CampaignID, asset.Symbol, 0)
	if err != nil {
		return nil, err
	}

	d.Address = derived.Address
	d.DerivationPath = derived.Path
	d.AddressIndex = derived.AddressIndex
	d.PublicKey = derived.PublicKey
	d.SealedKey = derived.SealedKey
	d.Source = types.DepositDerived
	d.Recoverable = derived.Recoverable
	return d, nil
}
