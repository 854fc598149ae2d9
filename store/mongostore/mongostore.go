// Package mongostore implements store.Store on MongoDB multi-document
// transactions. The deployment must be a replica set.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/chaindonate/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	colCampaigns    = "campaigns"
	colAssetTotals  = "campaign_asset_totals"
	colDeposits     = "deposits"
	colIntents      = "payment_intents"
	colChainTxs     = "chain_transactions"
	colDonations    = "donations"
	colMilestones   = "milestones"
	colAllocations  = "allocations"
	colLedgerEvents = "ledger_events"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and ensures the unique indexes the engine relies on.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetRegistry(newRegistry()).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		colDeposits: {{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "asset_id", Value: 1}, {Key: "network_id", Value: 1}}, Options: unique}},
		colChainTxs: {
			{Keys: bson.D{{Key: "network_id", Value: 1}, {Key: "tx_hash", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "intent_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colDonations:   {{Keys: bson.D{{Key: "intent_id", Value: 1}}, Options: unique}},
		colAssetTotals: {{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "asset_id", Value: 1}}, Options: unique}},
		colIntents:     {{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}}},
		colMilestones:  {{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}}},
		colAllocations: {{Keys: bson.D{{Key: "donation_id", Value: 1}}}, {Keys: bson.D{{Key: "milestone_id", Value: 1}}}},
		colLedgerEvents: {{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "created_at", Value: 1}}}},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}

// RunInTx runs fn in a session transaction. The driver retries fn on
// transient errors such as write conflicts between concurrent intents.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, &mongoTx{db: s.db})
	}, txOpts)
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the database; used by integration tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}
