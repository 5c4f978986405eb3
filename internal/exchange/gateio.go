package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
	"cryptofolio/internal/util"
)

// Compile-time interface check.
var _ Exchange = (*GateIOClient)(nil)

const (
	apiPrefix = "/api/v4"
	pairSep   = "_"
)

// GateIOClient implements Exchange against the Gate.io v4 spot REST API.
type GateIOClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewGateIOClient creates a Gate.io spot client. ratePerMin bounds outbound
// request rate across all endpoints.
func NewGateIOClient(baseURL, apiKey, apiSecret string, ratePerMin int, log *slog.Logger) *GateIOClient {
	return &GateIOClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   util.NewRateLimiter(ratePerMin),
		log:       log.With("exchange", "gateio"),
	}
}

// Name returns "gateio".
func (c *GateIOClient) Name() string { return "gateio" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type tickerInfo struct {
	CurrencyPair     string `json:"currency_pair"`
	Last             string `json:"last"`
	ChangePercentage string `json:"change_percentage"`
	EtfLeverage      string `json:"etf_leverage"`
}

type spotAccount struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
}

type orderRequest struct {
	Text         string `json:"text"`
	CurrencyPair string `json:"currency_pair"`
	Side         string `json:"side"`
	Amount       string `json:"amount"`
	Price        string `json:"price"`
	Account      string `json:"account"`
	TimeInForce  string `json:"time_in_force"`
}

// ---------------------------------------------------------------------------
// Exchange implementation
// ---------------------------------------------------------------------------

// Tickers fetches the full spot ticker list and filters it to USDT-quoted,
// non-leveraged pairs, keyed by asset symbol with the quote suffix stripped.
func (c *GateIOClient) Tickers(ctx context.Context) (map[string]domain.Ticker, error) {
	var raw []tickerInfo
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return c.do(ctx, http.MethodGet, "/spot/tickers", "", nil, false, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}

	suffix := pairSep + domain.QuoteCurrency
	tickers := make(map[string]domain.Ticker)
	for _, info := range raw {
		if !strings.HasSuffix(info.CurrencyPair, suffix) {
			continue
		}
		if info.EtfLeverage != "" {
			continue
		}
		last, err := decimal.NewFromString(info.Last)
		if err != nil {
			c.log.Warn("skipping pair with unparsable price", "pair", info.CurrencyPair, "last", info.Last)
			continue
		}
		change, err := decimal.NewFromString(info.ChangePercentage)
		if err != nil {
			c.log.Warn("skipping pair with unparsable change", "pair", info.CurrencyPair, "change", info.ChangePercentage)
			continue
		}
		asset := strings.TrimSuffix(info.CurrencyPair, suffix)
		tickers[asset] = domain.Ticker{Last: last, ChangePercent: change}
	}
	return tickers, nil
}

// Balances returns the available spot balance per currency.
func (c *GateIOClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw []spotAccount
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return c.do(ctx, http.MethodGet, "/spot/accounts", "", nil, true, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching balances: %w", err)
	}

	balances := make(map[string]decimal.Decimal, len(raw))
	for _, acct := range raw {
		avail, err := decimal.NewFromString(acct.Available)
		if err != nil {
			c.log.Warn("skipping account with unparsable balance", "currency", acct.Currency, "available", acct.Available)
			continue
		}
		balances[acct.Currency] = avail
	}
	return balances, nil
}

// PlaceLimitOrder submits a GTC limit order on the spot account. Not retried:
// a duplicate submission is worse than a missed one.
func (c *GateIOClient) PlaceLimitOrder(ctx context.Context, asset string, price, quantity decimal.Decimal, side domain.OrderSide) error {
	req := orderRequest{
		Text:         "t-" + uuid.NewString(),
		CurrencyPair: asset + pairSep + domain.QuoteCurrency,
		Side:         string(side),
		Amount:       quantity.String(),
		Price:        price.String(),
		Account:      "spot",
		TimeInForce:  "gtc",
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding order: %w", err)
	}

	if err := c.do(ctx, http.MethodPost, "/spot/orders", "", body, true, nil); err != nil {
		return fmt.Errorf("placing %s order for %s: %w", side, asset, err)
	}

	c.log.Info("order placed", "asset", asset, "side", side, "price", price, "quantity", quantity)
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do performs one HTTP round trip against the API. path is relative to the
// /api/v4 prefix. When signed is true the request carries the KEY/Timestamp/
// SIGN authentication headers.
func (c *GateIOClient) do(ctx context.Context, method, path, query string, body []byte, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := c.baseURL + apiPrefix + path
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("KEY", c.apiKey)
		req.Header.Set("Timestamp", ts)
		req.Header.Set("SIGN", c.sign(method, apiPrefix+path, query, body, ts))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// sign computes the Gate.io v4 request signature: HMAC-SHA512 over
// method, full path, query string, SHA-512 of the body, and the timestamp,
// newline-separated.
func (c *GateIOClient) sign(method, fullPath, query string, body []byte, ts string) string {
	bodyHash := sha512.Sum512(body)
	payload := strings.Join([]string{
		method,
		fullPath,
		query,
		hex.EncodeToString(bodyHash[:]),
		ts,
	}, "\n")

	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
