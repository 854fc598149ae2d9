// Package catalog holds the static network and asset tables the engine
// reads at runtime. It is built once from configuration and never written.
package catalog

import (
	"sort"
	"strings"

	"github.com/vitwit/chaindonate/types"
	"github.com/vitwit/chaindonate/utils"
)

type Catalog struct {
	networks map[string]types.Network
	assets   map[string]types.Asset
}

// New validates and indexes networks and assets.
func New(networks []types.Network, assets []types.Asset) (*Catalog, error) {
	c := &Catalog{
		networks: make(map[string]types.Network, len(networks)),
		assets:   make(map[string]types.Asset, len(assets)),
	}

	for _, n := range networks {
		if err := utils.ValidateStruct(n); err != nil {
			return nil, err
		}
		if _, dup := c.networks[n.NetworkID]; dup {
			return nil, types.NewError(types.ErrConfig, "duplicate network %s", n.NetworkID)
		}
		af := n.ResolvedAddressFamily()
		if af == "" {
			return nil, types.NewError(types.ErrConfig, "network %s must declare an address family", n.NetworkID)
		}
		if af.ChainFamily() != n.Family {
			return nil, types.NewError(types.ErrConfig, "network %s: address family %s does not belong to %s", n.NetworkID, af, n.Family)
		}
		n.AddressFamily = af
		c.networks[n.NetworkID] = n
	}

	for _, a := range assets {
		if err := utils.ValidateStruct(a); err != nil {
			return nil, err
		}
		if _, dup := c.assets[a.AssetID]; dup {
			return nil, types.NewError(types.ErrConfig, "duplicate asset %s", a.AssetID)
		}
		n, ok := c.networks[a.NetworkID]
		if !ok {
			return nil, types.NewError(types.ErrConfig, "asset %s references unknown network %s", a.AssetID, a.NetworkID)
		}
		if a.IsToken() {
			if a.ContractAddress == "" {
				return nil, types.NewError(types.ErrConfig, "token asset %s needs a contract address", a.AssetID)
			}
			if n.IsEVM() && !utils.IsEVMAddress(a.ContractAddress) {
				return nil, types.NewError(types.ErrConfig, "token asset %s has invalid contract %s", a.AssetID, a.ContractAddress)
			}
		}
		a.Symbol = strings.ToUpper(a.Symbol)
		c.assets[a.AssetID] = a
	}

	return c, nil
}

// Network returns a network by id.
func (c *Catalog) Network(id string) (types.Network, error) {
	n, ok := c.networks[id]
	if !ok {
		return types.Network{}, types.NewError(types.ErrNotFound, "network %s not found", id)
	}
	return n, nil
}

// Asset returns an asset by id.
func (c *Catalog) Asset(id string) (types.Asset, error) {
	a, ok := c.assets[id]
	if !ok {
		return types.Asset{}, types.NewError(types.ErrNotFound, "asset %s not found", id)
	}
	return a, nil
}

// Resolve returns an enabled network and an enabled asset that lives on it.
func (c *Catalog) Resolve(networkID, assetID string) (types.Network, types.Asset, error) {
	n, err := c.Network(networkID)
	if err != nil {
		return types.Network{}, types.Asset{}, err
	}
	a, err := c.Asset(assetID)
	if err != nil {
		return types.Network{}, types.Asset{}, err
	}
	if a.NetworkID != n.NetworkID {
		return types.Network{}, types.Asset{}, types.NewError(types.ErrValidation, "asset %s is not on network %s", assetID, networkID)
	}
	if !n.Enabled {
		return types.Network{}, types.Asset{}, types.NewError(types.ErrConfig, "network %s is disabled", networkID)
	}
	if !a.Enabled {
		return types.Network{}, types.Asset{}, types.NewError(types.ErrConfig, "asset %s is disabled", assetID)
	}
	return n, a, nil
}

// Networks lists all networks sorted by id.
func (c *Catalog) Networks() []types.Network {
	out := make([]types.Network, 0, len(c.networks))
	for _, n := range c.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetworkID < out[j].NetworkID })
	return out
}

// EnabledNetworks lists enabled networks of one family sorted by id.
func (c *Catalog) EnabledNetworks(family types.ChainFamily) []types.Network {
	var out []types.Network
	for _, n := range c.Networks() {
		if n.Enabled && n.Family == family {
			out = append(out, n)
		}
	}
	return out
}

// Assets lists all assets sorted by id.
func (c *Catalog) Assets() []types.Asset {
	out := make([]types.Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}
