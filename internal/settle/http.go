package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPGateway implements Gateway against the wallet provider's REST API.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	authSecret string
}

// NewHTTPGateway builds a gateway with a per-call timeout.
func NewHTTPGateway(baseURL, authSecret string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		authSecret: authSecret,
	}
}

func (g *HTTPGateway) ResolveRecipient(ctx context.Context, email string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := g.call(ctx, http.MethodGet, "/v1/users/by-email/"+email, nil, &resp)
	if err != nil {
		return "", &SettlementError{Op: "resolve recipient", Detail: email, Err: err}
	}
	if resp.ID == "" {
		return "", &SettlementError{Op: "resolve recipient", Detail: "no wallet account for " + email}
	}
	return resp.ID, nil
}

func (g *HTTPGateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := g.call(ctx, http.MethodGet, "/v1/wallet/balance", nil, &resp); err != nil {
		return decimal.Zero, &SettlementError{Op: "balance query", Detail: "wallet balance unavailable", Err: err}
	}
	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, &SettlementError{Op: "balance query", Detail: "unparseable balance " + resp.Balance, Err: err}
	}
	return balance, nil
}

func (g *HTTPGateway) Fee(ctx context.Context, amount decimal.Decimal, transferType string) (FeeBreakdown, error) {
	body := map[string]string{
		"amount": amount.String(),
		"type":   transferType,
	}
	var resp struct {
		Fee   string `json:"fee"`
		Total string `json:"total"`
	}
	if err := g.call(ctx, http.MethodPost, "/v1/transfers/fee", body, &resp); err != nil {
		return FeeBreakdown{}, &SettlementError{Op: "fee quote", Detail: amount.String(), Err: err}
	}
	fee, err := decimal.NewFromString(resp.Fee)
	if err != nil {
		return FeeBreakdown{}, &SettlementError{Op: "fee quote", Detail: "unparseable fee " + resp.Fee, Err: err}
	}
	total, err := decimal.NewFromString(resp.Total)
	if err != nil {
		return FeeBreakdown{}, &SettlementError{Op: "fee quote", Detail: "unparseable total " + resp.Total, Err: err}
	}
	return FeeBreakdown{Fee: fee, Total: total}, nil
}

func (g *HTTPGateway) Transfer(ctx context.Context, params TransferParams) (TransferRecord, error) {
	body := map[string]string{
		"recipientId": params.RecipientID,
		"amount":      params.Amount.String(),
		"currency":    params.Currency,
		"memo":        params.Memo,
		"authSecret":  g.authSecret,
	}
	var resp TransferRecord
	if err := g.call(ctx, http.MethodPost, "/v1/transfers", body, &resp); err != nil {
		return TransferRecord{}, &SettlementError{Op: "transfer", Detail: params.Amount.String() + " " + params.Currency, Err: err}
	}
	if resp.ID == "" {
		return TransferRecord{}, &SettlementError{Op: "transfer", Detail: "provider returned no transfer id"}
	}
	return resp, nil
}

func (g *HTTPGateway) Status(ctx context.Context, transferID string) (TransferRecord, error) {
	var resp TransferRecord
	if err := g.call(ctx, http.MethodGet, "/v1/transfers/"+transferID, nil, &resp); err != nil {
		return TransferRecord{}, &SettlementError{Op: "status query", Detail: transferID, Err: err}
	}
	return resp, nil
}

func (g *HTTPGateway) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.authSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
