package deposits

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/chaindonate/catalog"
	"github.com/vitwit/chaindonate/chains"
	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/store/gormstore"
	"github.com/vitwit/chaindonate/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fixture struct {
	store    *gormstore.Store
	registry *Registry
}

func newFixture(t *testing.T, engine *keys.Engine) *fixture {
	t.Helper()
	networks := []types.Network{
		{NetworkID: "ethereum", Family: types.FamilyEVM, ConfirmationsRequired: 2, Enabled: true},
		{NetworkID: "litecoin", Family: types.FamilyUTXO, AddressFamily: types.AddressLitecoin, Enabled: true},
	}
	assets := []types.Asset{
		{AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum", Symbol: "ETH", Decimals: 18, AssetType: types.AssetNative, Enabled: true},
		{AssetID: "ltc", NetworkID: "litecoin", Symbol: "LTC", Decimals: 8, AssetType: types.AssetNative, Enabled: true},
	}
	cat, err := catalog.New(networks, assets)
	require.NoError(t, err)

	reg := chains.NewRegistry()
	for _, n := range cat.Networks() {
		reg.Add(chains.NewUnimplemented(n))
	}

	s, err := gormstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	if engine == nil {
		engine, err = keys.NewEngine(testMnemonic, nil)
		require.NoError(t, err)
	}
	return &fixture{store: s, registry: NewRegistry(s, cat, reg, engine, logger.NoopLogger{}, nil)}
}

func TestGetOrCreateReusesAddress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	key := types.DepositKey{CampaignID: "camp-1", AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum"}

	first, err := f.registry.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Address, "0x"))
	assert.Equal(t, types.DepositDerived, first.Source)
	assert.True(t, first.Recoverable)
	assert.Equal(t, keys.DerivationIndex("camp-1", "ETH", 0), first.AddressIndex)

	second, err := f.registry.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.DerivationPath, second.DerivationPath)

	other, err := f.registry.GetOrCreate(ctx, types.DepositKey{CampaignID: "camp-2", AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)

	ltc, err := f.registry.GetOrCreate(ctx, types.DepositKey{CampaignID: "camp-1", AssetID: "ltc", NetworkID: "litecoin"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ltc.Address, "ltc1"), ltc.Address)
}

func TestStoredDepositKeyCanBeRecovered(t *testing.T) {
	sealer, err := keys.NewAESSealer(make([]byte, 32), make([]byte, 16))
	require.NoError(t, err)
	engine, err := keys.NewEngine(testMnemonic, sealer)
	require.NoError(t, err)
	f := newFixture(t, engine)
	ctx := context.Background()
	key := types.DepositKey{CampaignID: "camp-1", AssetID: "ltc", NetworkID: "litecoin"}

	_, err = f.registry.GetOrCreate(ctx, key)
	require.NoError(t, err)

	stored, err := store.Read(ctx, f.store, func(ctx context.Context, tx store.Tx) (*types.Deposit, error) {
		return tx.GetDeposit(ctx, key)
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.PublicKey)
	require.NotEmpty(t, stored.SealedKey)

	priv, err := keys.OpenSecpKey(sealer, stored.SealedKey, stored.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, stored.PublicKey, hex.EncodeToString(priv.PubKey().SerializeCompressed()))
}

func TestGetOrCreateUsesEVMVault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	vault := "0x52908400098527886e0f7030069857d2e4169ee7"

	require.NoError(t, f.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveCampaign(ctx, &types.Campaign{CampaignID: "camp-v", VaultAddress: vault})
	}))

	d, err := f.registry.GetOrCreate(ctx, types.DepositKey{CampaignID: "camp-v", AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, types.DepositVault, d.Source)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", d.Address)
	assert.Empty(t, d.SealedKey)

	// vaults only apply to EVM networks
	ltc, err := f.registry.GetOrCreate(ctx, types.DepositKey{CampaignID: "camp-v", AssetID: "ltc", NetworkID: "litecoin"})
	require.NoError(t, err)
	assert.Equal(t, types.DepositDerived, ltc.Source)
}

func TestGetOrCreateConcurrentCallersConverge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	key := types.DepositKey{CampaignID: "camp-race", AssetID: "eth_ethereum_mainnet", NetworkID: "ethereum"}

	const n = 8
	addrs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := f.registry.GetOrCreate(ctx, key)
			if assert.NoError(t, err) {
				addrs[i] = d.Address
			}
		}(i)
	}
	wg.Wait()

	for _, a := range addrs {
		assert.Equal(t, addrs[0], a)
	}
}

func TestGetOrCreateEphemeralSeedIsNotRecoverable(t *testing.T) {
	engine, err := keys.NewEphemeralEngine(nil)
	require.NoError(t, err)
	f := newFixture(t, engine)

	d, err := f.registry.GetOrCreate(context.Background(), types.DepositKey{CampaignID: "c", AssetID: "ltc", NetworkID: "litecoin"})
	require.NoError(t, err)
	assert.False(t, d.Recoverable)
}

func TestGetOrCreateRejectsUnknownAsset(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.registry.GetOrCreate(context.Background(), types.DepositKey{CampaignID: "c", AssetID: "doge", NetworkID: "ethereum"})
	assert.True(t, types.IsCode(err, types.ErrNotFound), "got %v", err)

	_, err = f.registry.Get(context.Background(), types.DepositKey{CampaignID: "c", AssetID: "ltc", NetworkID: "litecoin"})
	assert.True(t, types.IsCode(err, types.ErrNotFound), "got %v", err)
}
