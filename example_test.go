package chaindonate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/vitwit/chaindonate"
	"github.com/vitwit/chaindonate/catalog"
	"github.com/vitwit/chaindonate/intents"
	"github.com/vitwit/chaindonate/keys"
	"github.com/vitwit/chaindonate/oracle"
	"github.com/vitwit/chaindonate/store/gormstore"
	"github.com/vitwit/chaindonate/types"
)

func ExampleEngine_CreateIntent() {
	cat, err := catalog.New(
		[]types.Network{{NetworkID: "polygon", Family: types.FamilyEVM, ExplorerBaseURL: "https://polygonscan.com", ConfirmationsRequired: 64, Enabled: true}},
		[]types.Asset{{AssetID: "pol", NetworkID: "polygon", Symbol: "POL", Decimals: 18, AssetType: types.AssetNative, Enabled: true}},
	)
	if err != nil {
		log.Fatal(err)
	}
	s, err := gormstore.OpenInMemory()
	if err != nil {
		log.Fatal(err)
	}
	keyEngine, err := keys.NewEphemeralEngine(nil)
	if err != nil {
		log.Fatal(err)
	}
	rates := oracle.New(nil, nil, oracle.Config{
		Static:    map[string]decimal.Decimal{"POL": decimal.RequireFromString("0.5")},
		INRPerUSD: decimal.NewFromInt(83),
	}, nil, nil)

	engine, err := chaindonate.New(s, cat, keyEngine, rates)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.AddNetwork(ctx, "polygon", "https://polygon-rpc.com"); err != nil {
		log.Fatal(err)
	}

	view, err := engine.CreateIntent(ctx, intents.CreateRequest{
		CampaignID: "clean-water",
		NetworkID:  "polygon",
		AssetID:    "pol",
		AmountUSD:  "25",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(view.QRString)

	res, err := engine.VerifyIntentTransaction(ctx, view.IntentID, "https://polygonscan.com/tx/0x...")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.DonationID, res.AlreadyRecorded)
}
