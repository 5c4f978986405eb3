// Package cryptofolio provides a Go client for the cryptofolio server API.
// All monetary values are plain float64 on this surface; exact arithmetic
// stays server-side.
package cryptofolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a cryptofolio server.
type Client struct {
	baseURL    string
	accessCode string
	httpClient *http.Client
}

// NewClient creates a new API client. accessCode is sent as the "code" query
// parameter on every request.
func NewClient(baseURL, accessCode string) *Client {
	return &Client{
		baseURL:    baseURL,
		accessCode: accessCode,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// TickersResponse pairs current market data with the stored target
// distribution. Tickers map symbol to [last_price, change_percent];
// Distribution maps symbol to target weight in percent.
type TickersResponse struct {
	Tickers      map[string][2]float64 `json:"tickers"`
	Distribution map[string]float64    `json:"distribution"`
}

// PurchaseDay is one ledger day: the UTC-midnight Unix timestamp and, per
// asset, [quantity, average_price].
type PurchaseDay struct {
	Day    int64
	Assets map[string][2]float64
}

// UnmarshalJSON decodes the wire pair [day, {asset: [qty, price]}].
func (p *PurchaseDay) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &p.Day); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &p.Assets)
}

// Tickers retrieves current market data and the stored distribution.
func (c *Client) Tickers(ctx context.Context) (*TickersResponse, error) {
	var resp TickersResponse
	if err := c.get(ctx, "/tickers", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Purchases retrieves the purchase ledger, oldest day first. With simulated
// set, the dry-run namespace is returned instead of real purchases.
func (c *Client) Purchases(ctx context.Context, simulated bool) ([]PurchaseDay, error) {
	q := url.Values{}
	if simulated {
		q.Set("mock", "")
	}
	var days []PurchaseDay
	if err := c.get(ctx, "/purchases", q, &days); err != nil {
		return nil, err
	}
	return days, nil
}

// Balances retrieves the portfolio summary: per asset (or the "Others"
// bucket), [usdt_value, percent_of_portfolio].
func (c *Client) Balances(ctx context.Context) (map[string][2]float64, error) {
	var balances map[string][2]float64
	if err := c.get(ctx, "/balances", nil, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// Buy allocates amount USDT across dist (symbol to weight, summing to 100).
// With simulate set no orders are placed; with replace set dist becomes the
// stored target distribution.
func (c *Client) Buy(ctx context.Context, dist map[string]float64, amount float64, simulate, replace bool) error {
	q := url.Values{}
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	if simulate {
		q.Set("mock", "")
	}
	if replace {
		q.Set("replace", "")
	}

	body, err := json.Marshal(dist)
	if err != nil {
		return err
	}
	return c.post(ctx, "/buy", q, body, nil)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) post(ctx context.Context, path string, q url.Values, body []byte, out any) error {
	return c.do(ctx, http.MethodPost, path, q, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("code", c.accessCode)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
