package chains

import (
	"math/big"
	"net/url"
	"strings"

	"github.com/vitwit/chaindonate/types"
)

// tokenToleranceBps is the downward slack allowed for token transfers.
const tokenToleranceBps = 100

func checkConfirmations(network types.Network, have uint64) error {
	if have < network.ConfirmationsRequired {
		return types.NewError(types.ErrInsufficientConfirmations,
			"transaction has %d of %d required confirmations", have, network.ConfirmationsRequired).
			WithData("confirmations", have).
			WithData("required", network.ConfirmationsRequired)
	}
	return nil
}

// checkReplayFloor rejects transactions included before the intent's
// snapshot. Networks without a snapshot have no floor.
func checkReplayFloor(intent *types.PaymentIntent, networkID string, height uint64) error {
	floor, ok := intent.StartBlockByNetwork[networkID]
	if !ok || height >= floor {
		return nil
	}
	return types.NewError(types.ErrReplayBlocked,
		"transaction at height %d predates intent start height %d", height, floor).
		WithData("height", height).
		WithData("startHeight", floor)
}

// checkAmount requires native transfers to cover the expected amount and
// lets token transfers fall short by tokenToleranceBps.
func checkAmount(actual, expected *big.Int, token bool) error {
	if actual.Cmp(expected) >= 0 {
		return nil
	}
	if token {
		lhs := new(big.Int).Mul(actual, big.NewInt(10000))
		rhs := new(big.Int).Mul(expected, big.NewInt(10000-tokenToleranceBps))
		if lhs.Cmp(rhs) >= 0 {
			return nil
		}
	}
	return types.NewError(types.ErrAmountMismatch, "received %s, expected %s", actual, expected).
		WithData("received", actual.String()).
		WithData("expected", expected.String())
}

func confirmationsSince(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block
}

// stripExplorerURL turns ".../tx/<ref>?x" into "<ref>". Anything else is
// returned trimmed.
func stripExplorerURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "/tx/") {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	ref = ref[strings.LastIndex(ref, "/tx/")+len("/tx/"):]
	if i := strings.IndexAny(ref, "/?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

func invalidReference(ref, why string) error {
	return types.NewError(types.ErrInvalidReference, "invalid transaction reference %q: %s", ref, why)
}

func notFound(network types.Network, ref string) error {
	return types.NewError(types.ErrNotFound, "transaction %s not found on %s", ref, network.NetworkID).
		WithData("network", network.NetworkID)
}

func newUint(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
