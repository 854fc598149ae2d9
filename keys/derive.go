// Package keys derives deterministic deposit addresses for every chain
// family from a single master seed.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
	"github.com/vitwit/chaindonate/types"
)

const hardened = hdkeychain.HardenedKeyStart

// utxoChain is the coin type and segwit prefix of one UTXO chain.
type utxoChain struct {
	coinType uint32
	hrp      string
}

var utxoChains = map[types.AddressFamily]utxoChain{
	types.AddressBitcoin:         {coinType: 0, hrp: "bc"},
	types.AddressBitcoinTestnet:  {coinType: 1, hrp: "tb"},
	types.AddressLitecoin:        {coinType: 2, hrp: "ltc"},
	types.AddressLitecoinTestnet: {coinType: 1, hrp: "tltc"},
}

// Bech32HRP returns the segwit prefix of a UTXO address family.
func Bech32HRP(family types.AddressFamily) (string, bool) {
	c, ok := utxoChains[family]
	return c.hrp, ok
}

// DeriveRequest names one deposit slot.
type DeriveRequest struct {
	CampaignID  string
	AssetSymbol string
	Family      types.AddressFamily
	Index       uint32
}

// DerivedKey is a derived address and its sealed private key.
type DerivedKey struct {
	Address      string
	Path         string
	AddressIndex uint32
	PublicKey    string
	SealedKey    string
	Recoverable  bool
}

// Engine derives keys from one master seed. It is safe for concurrent use.
type Engine struct {
	seed      []byte
	master    *hdkeychain.ExtendedKey
	sealer    Sealer
	ephemeral bool
}

// NewEngine derives from an existing mnemonic with an empty passphrase.
func NewEngine(mnemonic string, sealer Sealer) (*Engine, error) {
	return newEngine(mnemonic, sealer, false)
}

func newEngine(mnemonic string, sealer Sealer, ephemeral bool) (*Engine, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "invalid mnemonic: %v", err)
	}
	// net params only affect xprv serialisation, never derived addresses
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "master key: %v", err)
	}
	return &Engine{seed: seed, master: master, sealer: sealer, ephemeral: ephemeral}, nil
}

// Ephemeral reports whether the seed would be lost on restart.
func (e *Engine) Ephemeral() bool {
	return e.ephemeral
}

// DerivationIndex maps a campaign slot onto a non-hardened child index:
// the first four bytes of sha256("campaign:SYMBOL:index") modulo 2^31.
func DerivationIndex(campaignID, assetSymbol string, index uint32) uint32 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", campaignID, strings.ToUpper(assetSymbol), index)))
	return binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff
}

// PathFor returns the derivation path of child i for an address family.
func PathFor(family types.AddressFamily, i uint32) (string, error) {
	switch family {
	case types.AddressEVM:
		return fmt.Sprintf("m/44'/60'/0'/0/%d", i), nil
	case types.AddressSolana:
		return fmt.Sprintf("m/44'/501'/0'/%d'", i), nil
	}
	if c, ok := utxoChains[family]; ok {
		return fmt.Sprintf("m/44'/%d'/0'/0/%d", c.coinType, i), nil
	}
	return "", types.NewError(types.ErrDerivation, "unsupported address family %q", family)
}

// Derive derives the deposit address of a campaign slot.
func (e *Engine) Derive(req DeriveRequest) (*DerivedKey, error) {
	if req.CampaignID == "" || req.AssetSymbol == "" {
		return nil, types.NewError(types.ErrDerivation, "campaign id and asset symbol are required")
	}
	return e.DeriveAt(req.Family, DerivationIndex(req.CampaignID, req.AssetSymbol, req.Index))
}

// DeriveAt derives child i of an address family directly.
func (e *Engine) DeriveAt(family types.AddressFamily, i uint32) (*DerivedKey, error) {
	if i >= hardened {
		return nil, types.NewError(types.ErrDerivation, "child index %d out of range", i)
	}
	path, err := PathFor(family, i)
	if err != nil {
		return nil, err
	}

	var (
		address string
		pub     []byte
		priv    []byte
	)
	switch family {
	case types.AddressEVM:
		address, pub, priv, err = e.deriveEVM(i)
	case types.AddressSolana:
		address, pub, priv, err = e.deriveSolana(i)
	default:
		address, pub, priv, err = e.deriveUTXO(utxoChains[family], i)
	}
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "derive %s: %v", path, err)
	}

	sealed, err := sealHex(e.sealer, priv)
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "seal key for %s: %v", path, err)
	}

	return &DerivedKey{
		Address:      address,
		Path:         path,
		AddressIndex: i,
		PublicKey:    hex.EncodeToString(pub),
		SealedKey:    sealed,
		Recoverable:  !e.ephemeral,
	}, nil
}

func (e *Engine) secpChild(coinType, i uint32) (*hdkeychain.ExtendedKey, error) {
	key := e.master
	for _, idx := range []uint32{hardened + 44, hardened + coinType, hardened, 0, i} {
		var err error
		if key, err = key.Derive(idx); err != nil {
			return nil, err
		}
	}
	return key, nil
}

func (e *Engine) deriveEVM(i uint32) (string, []byte, []byte, error) {
	key, err := e.secpChild(60, i)
	if err != nil {
		return "", nil, nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return "", nil, nil, err
	}
	ecdsaKey := priv.ToECDSA()
	address := crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex()
	return address, priv.PubKey().SerializeCompressed(), priv.Serialize(), nil
}

func (e *Engine) deriveUTXO(chain utxoChain, i uint32) (string, []byte, []byte, error) {
	key, err := e.secpChild(chain.coinType, i)
	if err != nil {
		return "", nil, nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return "", nil, nil, err
	}
	pub := priv.PubKey().SerializeCompressed()
	address, err := segwitV0Address(chain.hrp, btcutil.Hash160(pub))
	if err != nil {
		return "", nil, nil, err
	}
	return address, pub, priv.Serialize(), nil
}

// segwitV0Address encodes a P2WPKH program under the chain's own prefix.
func segwitV0Address(hrp string, program []byte) (string, error) {
	conv, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, append([]byte{0x00}, conv...))
}

func (e *Engine) deriveSolana(i uint32) (string, []byte, []byte, error) {
	node, err := slip10Derive(e.seed, []uint32{hardened + 44, hardened + 501, hardened, hardened + i})
	if err != nil {
		return "", nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(node.key)
	pub := priv.Public().(ed25519.PublicKey)
	return solana.PublicKeyFromBytes(pub).String(), pub, priv.Seed(), nil
}
