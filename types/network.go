package types

import "strings"

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	FamilyEVM  ChainFamily = "EVM"
	FamilyUTXO ChainFamily = "UTXO"
	FamilySOL  ChainFamily = "SOL"
)

// IsValid reports whether the family is one the engine knows about.
func (f ChainFamily) IsValid() bool {
	switch f {
	case FamilyEVM, FamilyUTXO, FamilySOL:
		return true
	}
	return false
}

// AddressFamily selects the derivation path and address encoding of a
// network. Bitcoin and Litecoin share the UTXO family but not their
// coin type or bech32 prefix.
type AddressFamily string

const (
	AddressEVM             AddressFamily = "evm"
	AddressBitcoin         AddressFamily = "bitcoin"
	AddressBitcoinTestnet  AddressFamily = "bitcoin-testnet"
	AddressLitecoin        AddressFamily = "litecoin"
	AddressLitecoinTestnet AddressFamily = "litecoin-testnet"
	AddressSolana          AddressFamily = "solana"
)

// ChainFamily returns the chain family the address family belongs to.
func (a AddressFamily) ChainFamily() ChainFamily {
	switch a {
	case AddressEVM:
		return FamilyEVM
	case AddressBitcoin, AddressBitcoinTestnet, AddressLitecoin, AddressLitecoinTestnet:
		return FamilyUTXO
	case AddressSolana:
		return FamilySOL
	}
	return ""
}

// Network is a static, read-only chain description.
type Network struct {
	NetworkID             string        `json:"networkId" yaml:"id" validate:"required"`
	Name                  string        `json:"name,omitempty" yaml:"name"`
	Family                ChainFamily   `json:"family" yaml:"family" validate:"required,oneof=EVM UTXO SOL"`
	AddressFamily         AddressFamily `json:"addressFamily,omitempty" yaml:"address_family"`
	ChainID               int64         `json:"chainId,omitempty" yaml:"chain_id"`
	ExplorerBaseURL       string        `json:"explorerBaseUrl,omitempty" yaml:"explorer_base_url"`
	ConfirmationsRequired uint64        `json:"confirmationsRequired" yaml:"confirmations_required"`
	Enabled               bool          `json:"enabled" yaml:"enabled"`
}

// IsEVM reports whether the network belongs to the EVM family.
func (n Network) IsEVM() bool { return n.Family == FamilyEVM }

// IsUTXO reports whether the network belongs to the UTXO family.
func (n Network) IsUTXO() bool { return n.Family == FamilyUTXO }

// IsSolana reports whether the network belongs to the SOL family.
func (n Network) IsSolana() bool { return n.Family == FamilySOL }

// ResolvedAddressFamily returns the declared address family, defaulting
// EVM and SOL networks. UTXO networks have no default.
func (n Network) ResolvedAddressFamily() AddressFamily {
	if n.AddressFamily != "" {
		return n.AddressFamily
	}
	switch n.Family {
	case FamilyEVM:
		return AddressEVM
	case FamilySOL:
		return AddressSolana
	}
	return ""
}

// AddressURL links an address on the network's block explorer.
func (n Network) AddressURL(address string) string {
	if n.ExplorerBaseURL == "" || address == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerBaseURL, "/") + "/address/" + address
}

// TxURL links a transaction on the network's block explorer.
func (n Network) TxURL(txHash string) string {
	if n.ExplorerBaseURL == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerBaseURL, "/") + "/tx/" + txHash
}

// AssetType distinguishes a chain's native coin from a token contract.
type AssetType string

const (
	AssetNative        AssetType = "NATIVE"
	AssetFungibleToken AssetType = "FUNGIBLE_TOKEN"
)

// Asset is a static, read-only description of something donors can send.
type Asset struct {
	AssetID         string    `json:"assetId" yaml:"id" validate:"required"`
	NetworkID       string    `json:"networkId" yaml:"network_id" validate:"required"`
	Symbol          string    `json:"symbol" yaml:"symbol" validate:"required"`
	Decimals        int32     `json:"decimals" yaml:"decimals" validate:"gte=0,lte=36"`
	AssetType       AssetType `json:"assetType" yaml:"asset_type" validate:"required,oneof=NATIVE FUNGIBLE_TOKEN"`
	ContractAddress string    `json:"contractAddress,omitempty" yaml:"contract_address"`
	PriceOracleID   string    `json:"priceOracleId,omitempty" yaml:"price_oracle_id"`
	Enabled         bool      `json:"enabled" yaml:"enabled"`
}

// IsToken reports whether the asset is a fungible token contract.
func (a Asset) IsToken() bool { return a.AssetType == AssetFungibleToken }
