// Package config loads the engine configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerAddr  = ":8080"
	DefaultRPCTimeout  = 5 * time.Second
	DefaultSeedFile    = "chaindonate.seed"
	DefaultSeedKeyEnv  = "CHAINDONATE_SEED_KEY"
	DefaultSeedIVEnv   = "CHAINDONATE_SEED_IV"
	DefaultCoinGecko   = oracle.DefaultCoinGeckoURL
	DefaultBinance     = oracle.DefaultBinanceURL
	DefaultCoinbase    = oracle.DefaultCoinbaseURL
	DefaultINRPerUSD   = "83"
	DefaultIntentTTL   = 24 * time.Hour
	DefaultVerifyGrace = 30 * time.Minute
)

type Config struct {
	Log        LogConfig       `yaml:"log"`
	Server     ServerConfig    `yaml:"server"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Store      StoreConfig     `yaml:"store"`
	Keys       KeysConfig      `yaml:"keys"`
	Oracle     OracleConfig    `yaml:"oracle"`
	Intents    IntentsConfig   `yaml:"intents"`
	Ledger     LedgerConfig    `yaml:"ledger"`
	Events     EventsConfig    `yaml:"events"`
	RPCTimeout time.Duration   `yaml:"rpc_timeout"`
	Networks   []NetworkConfig `yaml:"networks" validate:"required,min=1,dive"`
	Assets     []AssetConfig   `yaml:"assets" validate:"required,min=1,dive"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres mongo"`
	DSN      string `yaml:"dsn" validate:"required_if=Driver postgres,required_if=Driver mongo"`
	Database string `yaml:"database" validate:"required_if=Driver mongo"`
}

type KeysConfig struct {
	SeedFile string `yaml:"seed_file"`
	KeyEnv   string `yaml:"key_env"`
	IVEnv    string `yaml:"iv_env"`
}

type OracleConfig struct {
	CoinGeckoURL string            `yaml:"coingecko_url" validate:"omitempty,url"`
	BinanceURL   string            `yaml:"binance_url" validate:"omitempty,url"`
	CoinbaseURL  string            `yaml:"coinbase_url" validate:"omitempty,url"`
	CacheTTL     time.Duration     `yaml:"cache_ttl"`
	Timeout      time.Duration     `yaml:"timeout"`
	INRPerUSD    string            `yaml:"inr_per_usd"`
	Static       map[string]string `yaml:"static"`
	Redis        RedisConfig       `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type IntentsConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	VerifyGrace  time.Duration `yaml:"verify_grace"`
	DisableNonce bool          `yaml:"disable_nonce"`
}

type LedgerConfig struct {
	AllocationCurrency string `yaml:"allocation_currency" validate:"omitempty,oneof=INR USD NATIVE"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NetworkConfig is a catalog network plus the endpoint its client uses.
// EVM and SOL networks read rpc_url, UTXO networks read api_url.
type NetworkConfig struct {
	ID                    string `yaml:"id" validate:"required"`
	Name                  string `yaml:"name"`
	Family                string `yaml:"family" validate:"required,oneof=EVM UTXO SOL"`
	AddressFamily         string `yaml:"address_family"`
	ChainID               int64  `yaml:"chain_id"`
	ExplorerBaseURL       string `yaml:"explorer_base_url" validate:"omitempty,url"`
	ConfirmationsRequired uint64 `yaml:"confirmations_required"`
	Enabled               *bool  `yaml:"enabled"`
	RPCURL                string `yaml:"rpc_url"`
	APIURL                string `yaml:"api_url"`
}

type AssetConfig struct {
	ID              string `yaml:"id" validate:"required"`
	NetworkID       string `yaml:"network_id" validate:"required"`
	Symbol          string `yaml:"symbol" validate:"required"`
	Decimals        int32  `yaml:"decimals" validate:"min=0,max=36"`
	Type            string `yaml:"type" validate:"omitempty,oneof=NATIVE FUNGIBLE_TOKEN"`
	ContractAddress string `yaml:"contract_address"`
	PriceOracleID   string `yaml:"price_oracle_id"`
	Enabled         *bool  `yaml:"enabled"`
}

// Load reads path, expands ${VAR} references from the environment, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "read config %s: %v", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, types.NewError(types.ErrConfig, "parse config: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Keys.SeedFile == "" {
		c.Keys.SeedFile = DefaultSeedFile
	}
	if c.Keys.KeyEnv == "" {
		c.Keys.KeyEnv = DefaultSeedKeyEnv
	}
	if c.Keys.IVEnv == "" {
		c.Keys.IVEnv = DefaultSeedIVEnv
	}
	if c.Oracle.CoinGeckoURL == "" {
		c.Oracle.CoinGeckoURL = DefaultCoinGecko
	}
	if c.Oracle.BinanceURL == "" {
		c.Oracle.BinanceURL = DefaultBinance
	}
	if c.Oracle.CoinbaseURL == "" {
		c.Oracle.CoinbaseURL = DefaultCoinbase
	}
	if c.Oracle.CacheTTL == 0 {
		c.Oracle.CacheTTL = time.Minute
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 5 * time.Second
	}
	if c.Oracle.INRPerUSD == "" {
		c.Oracle.INRPerUSD = DefaultINRPerUSD
	}
	if c.Intents.TTL == 0 {
		c.Intents.TTL = DefaultIntentTTL
	}
	if c.Intents.VerifyGrace == 0 {
		c.Intents.VerifyGrace = DefaultVerifyGrace
	}
	if c.Ledger.AllocationCurrency == "" {
		c.Ledger.AllocationCurrency = "INR"
	}
	c.Ledger.AllocationCurrency = strings.ToUpper(c.Ledger.AllocationCurrency)
	if c.RPCTimeout == 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	for i := range c.Networks {
		c.Networks[i].Family = strings.ToUpper(c.Networks[i].Family)
	}
	for i := range c.Assets {
		if c.Assets[i].Type == "" {
			c.Assets[i].Type = string(types.AssetNative)
		}
	}
}

// Validate checks struct rules and the decimal fields.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return types.NewError(types.ErrConfig, "%s", err.Error())
	}
	if _, err := c.INRPerUSD(); err != nil {
		return err
	}
	if _, err := c.StaticPrices(); err != nil {
		return err
	}
	return nil
}

// INRPerUSD parses oracle.inr_per_usd.
func (c *Config) INRPerUSD() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(c.Oracle.INRPerUSD)
	if err != nil || !v.IsPositive() {
		return decimal.Zero, types.NewError(types.ErrConfig, "oracle.inr_per_usd %q is not a positive decimal", c.Oracle.INRPerUSD)
	}
	return v, nil
}

// StaticPrices parses the fallback price table, keyed by upper-case symbol.
func (c *Config) StaticPrices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Oracle.Static))
	for sym, s := range c.Oracle.Static {
		v, err := decimal.NewFromString(s)
		if err != nil || !v.IsPositive() {
			return nil, types.NewError(types.ErrConfig, "oracle.static.%s %q is not a positive decimal", sym, s)
		}
		out[strings.ToUpper(sym)] = v
	}
	return out, nil
}

// CatalogNetworks converts the network section into catalog records.
func (c *Config) CatalogNetworks() []types.Network {
	out := make([]types.Network, 0, len(c.Networks))
	for _, n := range c.Networks {
		out = append(out, types.Network{
			NetworkID:             n.ID,
			Name:                  n.Name,
			Family:                types.ChainFamily(n.Family),
			AddressFamily:         types.AddressFamily(n.AddressFamily),
			ChainID:               n.ChainID,
			ExplorerBaseURL:       n.ExplorerBaseURL,
			ConfirmationsRequired: n.ConfirmationsRequired,
			Enabled:               enabled(n.Enabled),
		})
	}
	return out
}

func (c *Config) CatalogAssets() []types.Asset {
	out := make([]types.Asset, 0, len(c.Assets))
	for _, a := range c.Assets {
		out = append(out, types.Asset{
			AssetID:         a.ID,
			NetworkID:       a.NetworkID,
			Symbol:          a.Symbol,
			Decimals:        a.Decimals,
			AssetType:       types.AssetType(a.Type),
			ContractAddress: a.ContractAddress,
			PriceOracleID:   a.PriceOracleID,
			Enabled:         enabled(a.Enabled),
		})
	}
	return out
}

// Endpoint returns the client endpoint configured for a network.
func (c *Config) Endpoint(networkID string) (string, error) {
	for _, n := range c.Networks {
		if n.ID != networkID {
			continue
		}
		if n.Family == string(types.FamilyUTXO) {
			return n.APIURL, nil
		}
		return n.RPCURL, nil
	}
	return "", fmt.Errorf("network %s not configured", networkID)
}

func enabled(b *bool) bool {
	return b == nil || *b
}
