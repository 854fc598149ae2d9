package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/chaindonate/types"
)

func testNetworks() []types.Network {
	return []types.Network{
		{NetworkID: "eth", Family: types.FamilyEVM, ConfirmationsRequired: 2, Enabled: true},
		{NetworkID: "polygon", Family: types.FamilyEVM, Enabled: false},
		{NetworkID: "ltc", Family: types.FamilyUTXO, AddressFamily: types.AddressLitecoin, Enabled: true},
		{NetworkID: "sol", Family: types.FamilySOL, Enabled: true},
	}
}

func testAssets() []types.Asset {
	return []types.Asset{
		{AssetID: "eth-native", NetworkID: "eth", Symbol: "eth", Decimals: 18, AssetType: types.AssetNative, Enabled: true},
		{AssetID: "eth-usdc", NetworkID: "eth", Symbol: "USDC", Decimals: 6, AssetType: types.AssetFungibleToken,
			ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Enabled: false},
		{AssetID: "ltc-native", NetworkID: "ltc", Symbol: "LTC", Decimals: 8, AssetType: types.AssetNative, Enabled: true},
	}
}

func TestNewResolvesAddressFamilies(t *testing.T) {
	c, err := New(testNetworks(), testAssets())
	require.NoError(t, err)

	eth, err := c.Network("eth")
	require.NoError(t, err)
	assert.Equal(t, types.AddressEVM, eth.AddressFamily)

	sol, err := c.Network("sol")
	require.NoError(t, err)
	assert.Equal(t, types.AddressSolana, sol.AddressFamily)

	a, err := c.Asset("eth-native")
	require.NoError(t, err)
	assert.Equal(t, "ETH", a.Symbol)
}

func TestNewRejectsUTXOWithoutAddressFamily(t *testing.T) {
	nets := []types.Network{{NetworkID: "btc", Family: types.FamilyUTXO, Enabled: true}}
	_, err := New(nets, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestNewRejectsMismatchedAddressFamily(t *testing.T) {
	nets := []types.Network{{NetworkID: "btc", Family: types.FamilyUTXO, AddressFamily: types.AddressEVM}}
	_, err := New(nets, nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestNewRejectsTokenWithoutContract(t *testing.T) {
	assets := []types.Asset{{AssetID: "x", NetworkID: "eth", Symbol: "X", Decimals: 6, AssetType: types.AssetFungibleToken}}
	_, err := New(testNetworks(), assets)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestResolve(t *testing.T) {
	c, err := New(testNetworks(), testAssets())
	require.NoError(t, err)

	n, a, err := c.Resolve("eth", "eth-native")
	require.NoError(t, err)
	assert.Equal(t, "eth", n.NetworkID)
	assert.Equal(t, "eth-native", a.AssetID)

	_, _, err = c.Resolve("eth", "eth-usdc")
	assert.True(t, types.IsCode(err, types.ErrConfig), "disabled asset")

	_, _, err = c.Resolve("ltc", "eth-native")
	assert.True(t, types.IsCode(err, types.ErrValidation), "asset on another network")

	_, _, err = c.Resolve("btc", "eth-native")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestEnabledNetworks(t *testing.T) {
	c, err := New(testNetworks(), testAssets())
	require.NoError(t, err)

	evm := c.EnabledNetworks(types.FamilyEVM)
	require.Len(t, evm, 1)
	assert.Equal(t, "eth", evm[0].NetworkID)
	assert.Len(t, c.Networks(), 4)
	assert.Len(t, c.Assets(), 3)
}
