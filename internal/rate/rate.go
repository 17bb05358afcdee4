package rate

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// MemoLength is the fixed length of the numeric memo embedded in transfer
// descriptions.
const MemoLength = 8

// AmountVND computes the destination amount in the smallest currency unit:
// ceil(amountUSDT × rate × (1 + markup)). The result is never negative for
// non-negative inputs.
func AmountVND(amountUSDT, rateVND, markup decimal.Decimal) int64 {
	gross := amountUSDT.Mul(rateVND).Mul(decimal.NewFromInt(1).Add(markup))
	return gross.Ceil().IntPart()
}

// MarkedUpRate returns the exchange rate with markup applied, the value stored
// on each payment request.
func MarkedUpRate(rateVND, markup decimal.Decimal) decimal.Decimal {
	return rateVND.Mul(decimal.NewFromInt(1).Add(markup))
}

// NewMemo produces a fixed-length numeric token from a crypto-random source.
// Callers must check the token against the pending index before use.
func NewMemo() (string, error) {
	digits := make([]byte, MemoLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate memo: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Client fetches the current USDT/VND quote from a stateless REST endpoint.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient builds a quote client for the given endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// Quote returns the raw exchange rate, markup excluded.
func (c *Client) Quote(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Rate string `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	quote, err := decimal.NewFromString(payload.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable rate %q: %w", payload.Rate, err)
	}
	return quote, nil
}
