package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositSource records how a deposit address came to be.
type DepositSource string

const (
	DepositDerived DepositSource = "derived"
	DepositVault   DepositSource = "vault"
)

// DepositKey identifies the single deposit address of a campaign on one
// asset and network.
type DepositKey struct {
	CampaignID string
	AssetID    string
	NetworkID  string
}

// String renders the key in its stored reference form.
func (k DepositKey) String() string {
	return k.CampaignID + ":" + k.AssetID + ":" + k.NetworkID
}

// Deposit is immutable once created.
type Deposit struct {
	CampaignID     string        `json:"campaignId" gorm:"primaryKey;size:128" bson:"campaign_id"`
	AssetID        string        `json:"assetId" gorm:"primaryKey;size:128" bson:"asset_id"`
	NetworkID      string        `json:"networkId" gorm:"primaryKey;size:128" bson:"network_id"`
	Address        string        `json:"address" gorm:"not null;index" bson:"address"`
	DerivationPath string        `json:"derivationPath,omitempty" bson:"derivation_path,omitempty"`
	AddressIndex   uint32        `json:"addressIndex" bson:"address_index"`
	Source         DepositSource `json:"source" gorm:"size:16" bson:"source"`
	PublicKey      string        `json:"publicKey,omitempty" gorm:"size:128" bson:"public_key,omitempty"`
	SealedKey      string        `json:"-" gorm:"type:text" bson:"sealed_key,omitempty"`
	Recoverable    bool          `json:"recoverable" bson:"recoverable"`
	CreatedAt      time.Time     `json:"createdAt" bson:"created_at"`
}

func (Deposit) TableName() string { return "deposits" }

// Key returns the deposit's identity.
func (d Deposit) Key() DepositKey {
	return DepositKey{CampaignID: d.CampaignID, AssetID: d.AssetID, NetworkID: d.NetworkID}
}

// IntentStatus moves CREATED -> CONFIRMED | EXPIRED | FAILED and never back.
type IntentStatus string

const (
	IntentCreated   IntentStatus = "CREATED"
	IntentConfirmed IntentStatus = "CONFIRMED"
	IntentExpired   IntentStatus = "EXPIRED"
	IntentFailed    IntentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s IntentStatus) IsTerminal() bool {
	return s != IntentCreated
}

// PaymentIntent is the server-side record of a donor's intention to pay.
type PaymentIntent struct {
	IntentID              string            `json:"intentId" gorm:"primaryKey;size:64" bson:"_id"`
	CampaignID            string            `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	AssetID               string            `json:"assetId" gorm:"size:128" bson:"asset_id"`
	NetworkID             string            `json:"networkId" gorm:"size:128" bson:"network_id"`
	DepositRef            string            `json:"depositRef" bson:"deposit_ref"`
	DepositAddress        string            `json:"depositAddress" bson:"deposit_address"`
	AmountNative          decimal.Decimal   `json:"amountNative" gorm:"type:text" bson:"amount_native"`
	AmountUSD             decimal.Decimal   `json:"amountUsd" gorm:"type:text" bson:"amount_usd"`
	FXRate                decimal.Decimal   `json:"fxRate" gorm:"type:text" bson:"fx_rate"`
	ReservedINR           decimal.Decimal   `json:"reservedInr" gorm:"type:text" bson:"reserved_inr"`
	ExpectedAmountRaw     decimal.Decimal   `json:"expectedAmountRaw" gorm:"type:text" bson:"expected_amount_raw"`
	ExpectedDecimals      int32             `json:"expectedDecimals" bson:"expected_decimals"`
	Nonce                 decimal.Decimal   `json:"nonce" gorm:"type:text" bson:"nonce"`
	StartBlockByNetwork   map[string]uint64 `json:"startBlockByNetwork,omitempty" gorm:"serializer:json;type:text" bson:"start_block_by_network,omitempty"`
	Status                IntentStatus      `json:"status" gorm:"index;size:16" bson:"status"`
	TxHash                string            `json:"txHash,omitempty" bson:"tx_hash,omitempty"`
	ConfirmedAmountRaw    decimal.Decimal   `json:"confirmedAmountRaw" gorm:"type:text" bson:"confirmed_amount_raw"`
	ConfirmedAmountNative decimal.Decimal   `json:"confirmedAmountNative" gorm:"type:text" bson:"confirmed_amount_native"`
	ConfirmedAt           *time.Time        `json:"confirmedAt,omitempty" bson:"confirmed_at,omitempty"`
	ExpiresAt             time.Time         `json:"expiresAt" gorm:"index" bson:"expires_at"`
	CreatedAt             time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt             time.Time         `json:"updatedAt" bson:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// DepositKey returns the key of the deposit the intent pays into.
func (p PaymentIntent) DepositKey() DepositKey {
	return DepositKey{CampaignID: p.CampaignID, AssetID: p.AssetID, NetworkID: p.NetworkID}
}

// EffectiveStatus reports EXPIRED for a CREATED intent once it can no
// longer be verified, i.e. past ExpiresAt plus grace. The stored status is
// not changed.
func (p PaymentIntent) EffectiveStatus(now time.Time, grace time.Duration) IntentStatus {
	if p.Status == IntentCreated && !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt.Add(grace)) {
		return IntentExpired
	}
	return p.Status
}

// ChainTransaction is written exactly once per (network, tx hash).
type ChainTransaction struct {
	ID            string          `json:"id" gorm:"primaryKey;size:64" bson:"_id"`
	NetworkID     string          `json:"networkId" gorm:"uniqueIndex:idx_chain_tx_network_hash;size:128" bson:"network_id"`
	TxHash        string          `json:"txHash" gorm:"uniqueIndex:idx_chain_tx_network_hash;size:128" bson:"tx_hash"`
	IntentID      string          `json:"intentId" gorm:"index;size:64" bson:"intent_id"`
	CampaignID    string          `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	AssetID       string          `json:"assetId" bson:"asset_id"`
	DonationID    string          `json:"donationId" bson:"donation_id"`
	AmountRaw     decimal.Decimal `json:"amountRaw" gorm:"type:text" bson:"amount_raw"`
	AmountNative  decimal.Decimal `json:"amountNative" gorm:"type:text" bson:"amount_native"`
	FromAddress   string          `json:"fromAddress,omitempty" bson:"from_address,omitempty"`
	ToAddress     string          `json:"toAddress" bson:"to_address"`
	BlockNumber   uint64          `json:"blockNumber" bson:"block_number"`
	Confirmations uint64          `json:"confirmations" bson:"confirmations"`
	USDRate       decimal.Decimal `json:"usdRate" gorm:"type:text" bson:"usd_rate"`
	USDAtConfirm  decimal.Decimal `json:"usdAtConfirm" gorm:"type:text" bson:"usd_at_confirm"`
	INRAtConfirm  decimal.Decimal `json:"inrAtConfirm" gorm:"type:text" bson:"inr_at_confirm"`
	CreatedAt     time.Time       `json:"createdAt" bson:"created_at"`
}

func (ChainTransaction) TableName() string { return "chain_transactions" }

// Donation is the immutable ledger entry for a confirmed transfer.
type Donation struct {
	DonationID   string          `json:"donationId" gorm:"primaryKey;size:64" bson:"_id"`
	CampaignID   string          `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	IntentID     string          `json:"intentId" gorm:"uniqueIndex;size:64" bson:"intent_id"`
	ChainTxID    string          `json:"chainTxId" bson:"chain_tx_id"`
	NetworkID    string          `json:"networkId" bson:"network_id"`
	AssetID      string          `json:"assetId" bson:"asset_id"`
	Symbol       string          `json:"symbol" bson:"symbol"`
	TxHash       string          `json:"txHash" bson:"tx_hash"`
	AmountRaw    decimal.Decimal `json:"amountRaw" gorm:"type:text" bson:"amount_raw"`
	AmountNative decimal.Decimal `json:"amountNative" gorm:"type:text" bson:"amount_native"`
	AmountUSD    decimal.Decimal `json:"amountUsd" gorm:"type:text" bson:"amount_usd"`
	AmountINR    decimal.Decimal `json:"amountInr" gorm:"type:text" bson:"amount_inr"`
	Donor        string          `json:"donor,omitempty" bson:"donor,omitempty"`
	CreatedAt    time.Time       `json:"createdAt" bson:"created_at"`
}

func (Donation) TableName() string { return "donations" }

// Campaign holds the totals the engine maintains. The record itself is
// owned by the surrounding application.
type Campaign struct {
	CampaignID    string          `json:"campaignId" gorm:"primaryKey;size:128" bson:"_id"`
	Title         string          `json:"title,omitempty" bson:"title,omitempty"`
	GoalAmount    decimal.Decimal `json:"goalAmount" gorm:"type:text" bson:"goal_amount"`
	GoalCurrency  string          `json:"goalCurrency" gorm:"size:16" bson:"goal_currency"`
	RaisedINR     decimal.Decimal `json:"raisedInr" gorm:"type:text" bson:"raised_inr"`
	RaisedUSD     decimal.Decimal `json:"raisedUsd" gorm:"type:text" bson:"raised_usd"`
	ReservedINR   decimal.Decimal `json:"reservedInr" gorm:"type:text" bson:"reserved_inr"`
	DonationCount int64           `json:"donationCount" bson:"donation_count"`
	VaultAddress  string          `json:"vaultAddress,omitempty" bson:"vault_address,omitempty"`
	CreatedAt     time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" bson:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// GoalMet reports whether raised plus reserved funds reach the goal. A
// zero goal is never met.
func (c Campaign) GoalMet() bool {
	if !c.GoalAmount.IsPositive() {
		return false
	}
	return c.RaisedINR.Add(c.ReservedINR).GreaterThanOrEqual(c.GoalAmount)
}

// CampaignAssetTotal is the per-asset native total of a campaign.
type CampaignAssetTotal struct {
	CampaignID   string          `json:"campaignId" gorm:"primaryKey;size:128" bson:"campaign_id"`
	AssetID      string          `json:"assetId" gorm:"primaryKey;size:128" bson:"asset_id"`
	AmountNative decimal.Decimal `json:"amountNative" gorm:"type:text" bson:"amount_native"`
	AmountRaw    decimal.Decimal `json:"amountRaw" gorm:"type:text" bson:"amount_raw"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updated_at"`
}

func (CampaignAssetTotal) TableName() string { return "campaign_asset_totals" }

// MilestoneStatus tracks a milestone through funding and payout.
type MilestoneStatus string

const (
	MilestoneNotStarted         MilestoneStatus = "NOT_STARTED"
	MilestoneInProgress         MilestoneStatus = "IN_PROGRESS"
	MilestoneFundingCompleted   MilestoneStatus = "FUNDING_COMPLETED"
	MilestoneWithdrawalInReview MilestoneStatus = "WITHDRAWAL_IN_REVIEW"
	MilestonePaidOut            MilestoneStatus = "PAID_OUT"
)

// AcceptsFunds reports whether allocations may still land on the milestone.
func (s MilestoneStatus) AcceptsFunds() bool {
	return s == MilestoneNotStarted || s == MilestoneInProgress
}

// Milestone is a funding target within a campaign, filled in creation order.
type Milestone struct {
	MilestoneID    string          `json:"milestoneId" gorm:"primaryKey;size:64" bson:"_id"`
	CampaignID     string          `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	Title          string          `json:"title" bson:"title"`
	TargetAmount   decimal.Decimal `json:"targetAmount" gorm:"type:text" bson:"target_amount"`
	TargetCurrency string          `json:"targetCurrency" gorm:"size:16" bson:"target_currency"`
	ReceivedAmount decimal.Decimal `json:"receivedAmount" gorm:"type:text" bson:"received_amount"`
	Status         MilestoneStatus `json:"status" gorm:"index;size:32" bson:"status"`
	CreatedAt      time.Time       `json:"createdAt" gorm:"index" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updated_at"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
}

func (Milestone) TableName() string { return "milestones" }

// Remaining returns how much the milestone still needs, never negative.
func (m Milestone) Remaining() decimal.Decimal {
	left := m.TargetAmount.Sub(m.ReceivedAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Allocation is an append-only slice of a donation assigned to a milestone.
type Allocation struct {
	AllocationID string          `json:"allocationId" gorm:"primaryKey;size:64" bson:"_id"`
	DonationID   string          `json:"donationId" gorm:"index;size:64" bson:"donation_id"`
	MilestoneID  string          `json:"milestoneId" gorm:"index;size:64" bson:"milestone_id"`
	CampaignID   string          `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:text" bson:"amount"`
	Currency     string          `json:"currency" gorm:"size:16" bson:"currency"`
	CreatedAt    time.Time       `json:"createdAt" bson:"created_at"`
}

func (Allocation) TableName() string { return "allocations" }

// LedgerEventType names the append-only ledger events.
type LedgerEventType string

const (
	EventDonationConfirmed  LedgerEventType = "DONATION_CONFIRMED"
	EventDonationAllocated  LedgerEventType = "DONATION_ALLOCATED"
	EventMilestoneCompleted LedgerEventType = "MILESTONE_COMPLETED"
	EventIntentExpired      LedgerEventType = "INTENT_EXPIRED"
)

// LedgerEvent is appended inside the transaction that caused it.
type LedgerEvent struct {
	EventID     string            `json:"eventId" gorm:"primaryKey;size:64" bson:"_id"`
	CampaignID  string            `json:"campaignId" gorm:"index;size:128" bson:"campaign_id"`
	Type        LedgerEventType   `json:"type" gorm:"index;size:32" bson:"type"`
	IntentID    string            `json:"intentId,omitempty" bson:"intent_id,omitempty"`
	DonationID  string            `json:"donationId,omitempty" gorm:"index;size:64" bson:"donation_id,omitempty"`
	MilestoneID string            `json:"milestoneId,omitempty" bson:"milestone_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount" gorm:"type:text" bson:"amount"`
	Currency    string            `json:"currency,omitempty" bson:"currency,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" gorm:"serializer:json;type:text" bson:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" gorm:"index" bson:"created_at"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }

// PaymentIntentView is what callers get back from create and get.
type PaymentIntentView struct {
	IntentID             string           `json:"intentId"`
	CampaignID           string           `json:"campaignId"`
	NetworkID            string           `json:"networkId"`
	AssetID              string           `json:"assetId"`
	Symbol               string           `json:"symbol"`
	DepositAddress       string           `json:"depositAddress"`
	QRString             string           `json:"qrString"`
	AmountNative         string           `json:"amountNative"`
	ExpectedAmountNative string           `json:"expectedAmountNative"`
	ExpectedAmountRaw    string           `json:"expectedAmountRaw"`
	AmountUSD            string           `json:"amountUsd"`
	FXRate               string           `json:"fxRate"`
	ExpiresAt            time.Time        `json:"expiresAt"`
	ExplorerAddressURL   string           `json:"explorerAddressUrl,omitempty"`
	Status               IntentStatus     `json:"status"`
	Recoverable          bool             `json:"recoverable"`
	LatestTransaction    *TransactionView `json:"latestTransaction,omitempty"`
}

// TransactionView summarises a recorded chain transaction.
type TransactionView struct {
	TxHash        string    `json:"txHash"`
	AmountNative  string    `json:"amountNative"`
	Confirmations uint64    `json:"confirmations"`
	ExplorerURL   string    `json:"explorerUrl,omitempty"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// VerificationResult is returned by a successful verification, whether it
// posted now or was already recorded.
type VerificationResult struct {
	IntentID        string       `json:"intentId"`
	TxHash          string       `json:"txHash"`
	Status          IntentStatus `json:"status"`
	AmountRaw       string       `json:"amountRaw"`
	AmountNative    string       `json:"amountNative"`
	USDRate         string       `json:"usdRate"`
	USDAtConfirm    string       `json:"usdAtConfirm"`
	Confirmations   uint64       `json:"confirmations"`
	DonationID      string       `json:"donationId"`
	AlreadyRecorded bool         `json:"alreadyRecorded"`
}
