package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/gagliardetto/solana-go"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
	"github.com/vitwit/chaindonate/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testMnemonic, nil)
	require.NoError(t, err)
	return e
}

func TestDeriveKnownEVMVector(t *testing.T) {
	e := testEngine(t)

	key, err := e.DeriveAt(types.AddressEVM, 0)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", key.Address)
	assert.Equal(t, "m/44'/60'/0'/0/0", key.Path)
	assert.True(t, key.Recoverable)
	assert.Empty(t, key.SealedKey, "no sealer configured")
}

func TestPathFor(t *testing.T) {
	cases := map[types.AddressFamily]string{
		types.AddressEVM:             "m/44'/60'/0'/0/7",
		types.AddressBitcoin:         "m/44'/0'/0'/0/7",
		types.AddressBitcoinTestnet:  "m/44'/1'/0'/0/7",
		types.AddressLitecoin:        "m/44'/2'/0'/0/7",
		types.AddressLitecoinTestnet: "m/44'/1'/0'/0/7",
		types.AddressSolana:          "m/44'/501'/0'/7'",
	}
	for family, want := range cases {
		got, err := PathFor(family, 7)
		require.NoError(t, err)
		assert.Equal(t, want, got, family)
	}

	_, err := PathFor("dogecoin", 1)
	assert.True(t, types.IsCode(err, types.ErrDerivation))
}

func TestDerivationIndex(t *testing.T) {
	a := DerivationIndex("campaign-1", "eth", 0)
	b := DerivationIndex("campaign-1", "ETH", 0)
	assert.Equal(t, a, b, "symbol is case insensitive")
	assert.Less(t, a, uint32(1<<31))
	assert.NotEqual(t, a, DerivationIndex("campaign-1", "ETH", 1))
	assert.NotEqual(t, a, DerivationIndex("campaign-2", "ETH", 0))
}

func TestDeriveRequiresCampaignAndSymbol(t *testing.T) {
	e := testEngine(t)
	_, err := e.Derive(DeriveRequest{AssetSymbol: "ETH", Family: types.AddressEVM})
	assert.True(t, types.IsCode(err, types.ErrDerivation))
}

func TestDeriveDeterministicProperty(t *testing.T) {
	e := testEngine(t)
	again := testEngine(t)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	families := gen.OneConstOf(types.AddressEVM, types.AddressBitcoin, types.AddressLitecoin, types.AddressSolana)

	properties.Property("same inputs give the same address and path", prop.ForAll(
		func(campaign string, family types.AddressFamily, index uint32) bool {
			req := DeriveRequest{CampaignID: "c-" + campaign, AssetSymbol: "SYM", Family: family, Index: index}
			k1, err1 := e.Derive(req)
			k2, err2 := again.Derive(req)
			if err1 != nil || err2 != nil {
				return false
			}
			return k1.Address == k2.Address && k1.Path == k2.Path && k1.AddressIndex == k2.AddressIndex
		},
		gen.AlphaString(),
		families,
		gen.UInt32Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestUTXOPrefixMatrixProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 128
	properties := gopter.NewProperties(params)

	properties.Property("litecoin and bitcoin addresses keep their own prefix", prop.ForAll(
		func(entropy []byte, index uint32) bool {
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				return false
			}
			e, err := NewEngine(mnemonic, nil)
			if err != nil {
				return false
			}

			ltc, err := e.DeriveAt(types.AddressLitecoin, index)
			if err != nil {
				return false
			}
			btc, err := e.DeriveAt(types.AddressBitcoin, index)
			if err != nil {
				return false
			}
			if !strings.HasPrefix(ltc.Address, "ltc1q") || strings.HasPrefix(ltc.Address, "bc1") {
				return false
			}
			if !strings.HasPrefix(btc.Address, "bc1q") || strings.HasPrefix(btc.Address, "ltc1") {
				return false
			}
			return isP2WPKH(ltc.Address, "ltc") && isP2WPKH(btc.Address, "bc")
		},
		gen.SliceOfN(32, gen.UInt8()),
		gen.UInt32Range(0, 1<<31-1),
	))

	properties.TestingRun(t)
}

func isP2WPKH(address, hrp string) bool {
	gotHRP, data, err := bech32.Decode(address)
	if err != nil || gotHRP != hrp || len(data) == 0 || data[0] != 0 {
		return false
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	return err == nil && len(program) == 20
}

func TestDeriveSolana(t *testing.T) {
	e := testEngine(t)

	key, err := e.DeriveAt(types.AddressSolana, 3)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/501'/0'/3'", key.Path)

	pk, err := solana.PublicKeyFromBase58(key.Address)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey, hex.EncodeToString(pk.Bytes()))

	other, err := e.DeriveAt(types.AddressSolana, 4)
	require.NoError(t, err)
	assert.NotEqual(t, key.Address, other.Address)
}

func TestSlip10Vector(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	master := slip10Master(seed)
	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(master.key))
	assert.Equal(t, "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb", hex.EncodeToString(master.chainCode))

	pub := ed25519.NewKeyFromSeed(master.key).Public().(ed25519.PublicKey)
	assert.Equal(t, "a4b2856bfec510abab89753fac1ac0e1112364e7d250545963f135f2a33188ed", hex.EncodeToString(pub))

	child, err := slip10Derive(seed, []uint32{hardened})
	require.NoError(t, err)
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(child.key))
	assert.Equal(t, "8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69", hex.EncodeToString(child.chainCode))

	_, err = slip10Derive(seed, []uint32{1})
	assert.Error(t, err)
}

func TestDeriveSealsPrivateKey(t *testing.T) {
	sealer := testSealer(t)
	e, err := NewEngine(testMnemonic, sealer)
	require.NoError(t, err)

	key, err := e.DeriveAt(types.AddressBitcoin, 1)
	require.NoError(t, err)
	require.NotEmpty(t, key.SealedKey)

	ct, err := hex.DecodeString(key.SealedKey)
	require.NoError(t, err)
	priv, err := sealer.Open(ct)
	require.NoError(t, err)
	assert.Len(t, priv, 32)
}

func TestDeriveRejectsHardenedIndex(t *testing.T) {
	e := testEngine(t)
	_, err := e.DeriveAt(types.AddressEVM, hardened)
	assert.True(t, types.IsCode(err, types.ErrDerivation))
}

func TestOpenSecpKey(t *testing.T) {
	sealer := testSealer(t)
	e, err := NewEngine(testMnemonic, sealer)
	require.NoError(t, err)

	for _, family := range []types.AddressFamily{types.AddressEVM, types.AddressLitecoin} {
		key, err := e.DeriveAt(family, 7)
		require.NoError(t, err)

		priv, err := OpenSecpKey(sealer, key.SealedKey, key.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey, hex.EncodeToString(priv.PubKey().SerializeCompressed()))
	}

	key, err := e.DeriveAt(types.AddressEVM, 8)
	require.NoError(t, err)
	other, err := e.DeriveAt(types.AddressEVM, 9)
	require.NoError(t, err)
	_, err = OpenSecpKey(sealer, key.SealedKey, other.PublicKey)
	assert.True(t, types.IsCode(err, types.ErrDerivation))

	_, err = OpenSecpKey(nil, key.SealedKey, "")
	assert.True(t, types.IsCode(err, types.ErrDerivation))
	_, err = OpenSecpKey(sealer, "zz", "")
	assert.True(t, types.IsCode(err, types.ErrDerivation))
}
