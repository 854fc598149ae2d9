package types

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignGoalMet(t *testing.T) {
	c := Campaign{}
	assert.False(t, c.GoalMet(), "zero goal is never met")

	c.GoalAmount = decimal.NewFromInt(1000)
	c.RaisedINR = decimal.NewFromInt(600)
	assert.False(t, c.GoalMet())

	c.ReservedINR = decimal.NewFromInt(400)
	assert.True(t, c.GoalMet())
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := PaymentIntent{Status: IntentCreated, ExpiresAt: now}

	assert.Equal(t, IntentCreated, in.EffectiveStatus(now, 0))
	assert.Equal(t, IntentExpired, in.EffectiveStatus(now.Add(time.Second), 0))

	// still verifiable inside the grace window
	assert.Equal(t, IntentCreated, in.EffectiveStatus(now.Add(time.Minute), 10*time.Minute))
	assert.Equal(t, IntentExpired, in.EffectiveStatus(now.Add(11*time.Minute), 10*time.Minute))

	in.Status = IntentConfirmed
	assert.Equal(t, IntentConfirmed, in.EffectiveStatus(now.Add(time.Hour), 0))
	assert.True(t, in.Status.IsTerminal())
}

func TestMilestoneRemaining(t *testing.T) {
	m := Milestone{TargetAmount: decimal.NewFromInt(100), ReceivedAmount: decimal.NewFromInt(30)}
	assert.Equal(t, "70", m.Remaining().String())

	m.ReceivedAmount = decimal.NewFromInt(130)
	assert.True(t, m.Remaining().IsZero())

	assert.True(t, MilestoneInProgress.AcceptsFunds())
	assert.False(t, MilestoneFundingCompleted.AcceptsFunds())
}

func TestNetworkHelpers(t *testing.T) {
	evm := Network{NetworkID: "base", Family: FamilyEVM, ExplorerBaseURL: "https://basescan.org/"}
	assert.Equal(t, AddressEVM, evm.ResolvedAddressFamily())
	assert.Equal(t, "https://basescan.org/tx/0xab", evm.TxURL("0xab"))
	assert.Equal(t, "https://basescan.org/address/0xcd", evm.AddressURL("0xcd"))
	assert.Empty(t, evm.TxURL(""))

	sol := Network{Family: FamilySOL}
	assert.Equal(t, AddressSolana, sol.ResolvedAddressFamily())
	assert.Empty(t, sol.TxURL("sig"))

	// UTXO networks never default to bitcoin
	assert.Empty(t, Network{Family: FamilyUTXO}.ResolvedAddressFamily())
	assert.Equal(t, AddressLitecoin, Network{Family: FamilyUTXO, AddressFamily: AddressLitecoin}.ResolvedAddressFamily())
}

func TestDonateError(t *testing.T) {
	err := NewError(ErrReplayBlocked, "tx %s reused", "0xab").WithData("txHash", "0xab")
	wrapped := fmt.Errorf("verify: %w", err)

	assert.Equal(t, "REPLAY_BLOCKED: tx 0xab reused", err.Error())
	assert.Equal(t, ErrReplayBlocked, ErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrReplayBlocked))
	assert.True(t, IsRejection(wrapped))
	assert.False(t, IsRejection(NewError(ErrGoalReached, "full")))
	assert.Equal(t, KindConfiguration, NewError(ErrNetwork, "down").Kind())
	assert.Empty(t, ErrorCode(fmt.Errorf("plain")))
	assert.False(t, IsCode(nil, ErrNotFound))

	raw, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"code":"REPLAY_BLOCKED","message":"tx 0xab reused","data":{"txHash":"0xab"}}`, string(raw))
}

func TestDepositKey(t *testing.T) {
	d := Deposit{CampaignID: "c", AssetID: "eth", NetworkID: "ethereum"}
	assert.Equal(t, "c:eth:ethereum", d.Key().String())
	assert.Equal(t, d.Key(), PaymentIntent{CampaignID: "c", AssetID: "eth", NetworkID: "ethereum"}.DepositKey())
}
