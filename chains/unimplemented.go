package chains

import (
	"context"

	"github.com/vitwit/chaindonate/types"
)

// Unimplemented stands in for a network that has no configured client. It
// still derives addresses so deposits can be issued ahead of verification.
type Unimplemented struct {
	base
}

var _ Family = (*Unimplemented)(nil)

func NewUnimplemented(network types.Network) *Unimplemented {
	return &Unimplemented{base: base{network: network}}
}

func (u *Unimplemented) NormalizeTxRef(ref string) (string, error) {
	switch u.network.Family {
	case types.FamilyEVM:
		return normalizeEVMTxRef(ref)
	case types.FamilyUTXO:
		return normalizeUTXOTxRef(ref)
	case types.FamilySOL:
		return normalizeSolanaTxRef(ref)
	}
	return "", u.unimplemented()
}

func (u *Unimplemented) CurrentHeight(context.Context) (uint64, error) {
	return 0, u.unimplemented()
}

func (u *Unimplemented) Verify(context.Context, VerifyRequest) (*Evidence, error) {
	return nil, u.unimplemented()
}

func (u *Unimplemented) unimplemented() error {
	return types.NewError(types.ErrUnimplemented, "verification is not implemented for %s (%s)",
		u.network.NetworkID, u.network.Family).
		WithData("network", u.network.NetworkID)
}
