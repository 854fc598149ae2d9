package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote identifies the asset a provider is asked to price.
type Quote struct {
	AssetID  string
	Symbol   string
	OracleID string
}

// Provider fetches a live USD price for one asset.
type Provider interface {
	Name() string
	FetchUSD(ctx context.Context, q Quote) (decimal.Decimal, error)
}

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultBinanceURL   = "https://api.binance.com"
	DefaultCoinbaseURL  = "https://api.coinbase.com"
)

type httpProvider struct {
	baseURL string
	client  *http.Client
}

func newHTTPProvider(baseURL string, timeout time.Duration) httpProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return httpProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p httpProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func positive(price decimal.Decimal, name string) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s returned non-positive price %s", name, price)
	}
	return price, nil
}

// CoinGecko prices by aggregator id (Asset.PriceOracleID).
type CoinGecko struct{ httpProvider }

func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{newHTTPProvider(baseURL, timeout)}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) FetchUSD(ctx context.Context, q Quote) (decimal.Decimal, error) {
	if q.OracleID == "" {
		return decimal.Zero, fmt.Errorf("asset %s has no price oracle id", q.AssetID)
	}
	var body map[string]map[string]decimal.Decimal
	path := "/simple/price?ids=" + url.QueryEscape(q.OracleID) + "&vs_currencies=usd"
	if err := c.getJSON(ctx, path, &body); err != nil {
		return decimal.Zero, err
	}
	price, ok := body[q.OracleID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko has no usd price for %s", q.OracleID)
	}
	return positive(price, c.Name())
}

// Binance prices by the SYMBOLUSDT ticker.
type Binance struct{ httpProvider }

func NewBinance(baseURL string, timeout time.Duration) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{newHTTPProvider(baseURL, timeout)}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) FetchUSD(ctx context.Context, q Quote) (decimal.Decimal, error) {
	var body struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	symbol := strings.ToUpper(q.Symbol) + "USDT"
	if err := b.getJSON(ctx, "/api/v3/ticker/price?symbol="+url.QueryEscape(symbol), &body); err != nil {
		return decimal.Zero, err
	}
	return positive(body.Price, b.Name())
}

// Coinbase prices by the SYMBOL-USD spot price.
type Coinbase struct{ httpProvider }

func NewCoinbase(baseURL string, timeout time.Duration) *Coinbase {
	if baseURL == "" {
		baseURL = DefaultCoinbaseURL
	}
	return &Coinbase{newHTTPProvider(baseURL, timeout)}
}

func (c *Coinbase) Name() string { return "coinbase" }

func (c *Coinbase) FetchUSD(ctx context.Context, q Quote) (decimal.Decimal, error) {
	var body struct {
		Data struct {
			Amount decimal.Decimal `json:"amount"`
		} `json:"data"`
	}
	pair := url.PathEscape(strings.ToUpper(q.Symbol) + "-USD")
	if err := c.getJSON(ctx, "/v2/prices/"+pair+"/spot", &body); err != nil {
		return decimal.Zero, err
	}
	return positive(body.Data.Amount, c.Name())
}

// DefaultProviders returns the aggregator followed by the two exchange
// fallbacks, in the order they are tried.
func DefaultProviders(coingecko, binance, coinbase string, timeout time.Duration) []Provider {
	return []Provider{
		NewCoinGecko(coingecko, timeout),
		NewBinance(binance, timeout),
		NewCoinbase(coinbase, timeout),
	}
}
