package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment request.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusExpired      Status = "expired"
	StatusCanceled     Status = "canceled"
	StatusManualReview Status = "manual_review"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCanceled, StatusManualReview:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Transitions are one-directional; terminal states never
// re-enter an earlier state.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusExpired || to == StatusCanceled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusManualReview
	}
	return false
}

// PaymentRequest is a single outstanding collection order: a user asked to
// top up AmountUSDT and was told to transfer AmountVND with Memo in the
// transfer description.
type PaymentRequest struct {
	ID            string
	UserID        string
	Email         string
	AmountUSDT    decimal.Decimal
	AmountVND     int64
	Rate          decimal.Decimal // markup already applied
	Memo          string
	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	MatchedTxRef  string
	MatchedTxDate string
	SettlementID  string
	ErrorDetail   string
}

// Validate checks the fields the reconciliation core depends on.
func (p *PaymentRequest) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("payment id is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("payment %s: user id is required", p.ID)
	}
	if p.Memo == "" {
		return fmt.Errorf("payment %s: memo is required", p.ID)
	}
	if p.AmountVND < 0 {
		return fmt.Errorf("payment %s: amountVND must be non-negative, got %d", p.ID, p.AmountVND)
	}
	return nil
}

// Fields encodes the payment as string fields for the ledger hash.
func (p *PaymentRequest) Fields() map[string]string {
	return map[string]string{
		"id":            p.ID,
		"userId":        p.UserID,
		"email":         p.Email,
		"amountUsdt":    p.AmountUSDT.String(),
		"amountVnd":     strconv.FormatInt(p.AmountVND, 10),
		"rate":          p.Rate.String(),
		"memo":          p.Memo,
		"status":        string(p.Status),
		"createdAt":     strconv.FormatInt(p.CreatedAt.UnixMilli(), 10),
		"expiresAt":     strconv.FormatInt(p.ExpiresAt.UnixMilli(), 10),
		"matchedTxRef":  p.MatchedTxRef,
		"matchedTxDate": p.MatchedTxDate,
		"settlementId":  p.SettlementID,
		"errorDetail":   p.ErrorDetail,
	}
}

// PaymentFromFields decodes a ledger hash back into a PaymentRequest.
func PaymentFromFields(fields map[string]string) (*PaymentRequest, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty payment record")
	}
	p := &PaymentRequest{
		ID:            fields["id"],
		UserID:        fields["userId"],
		Email:         fields["email"],
		Memo:          fields["memo"],
		Status:        Status(fields["status"]),
		MatchedTxRef:  fields["matchedTxRef"],
		MatchedTxDate: fields["matchedTxDate"],
		SettlementID:  fields["settlementId"],
		ErrorDetail:   fields["errorDetail"],
	}

	var err error
	if v := fields["amountUsdt"]; v != "" {
		if p.AmountUSDT, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("payment %s: bad amountUsdt %q: %w", p.ID, v, err)
		}
	}
	if v := fields["rate"]; v != "" {
		if p.Rate, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("payment %s: bad rate %q: %w", p.ID, v, err)
		}
	}
	if v := fields["amountVnd"]; v != "" {
		if p.AmountVND, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("payment %s: bad amountVnd %q: %w", p.ID, v, err)
		}
	}
	if v := fields["createdAt"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("payment %s: bad createdAt %q: %w", p.ID, v, err)
		}
		p.CreatedAt = time.UnixMilli(ms)
	}
	if v := fields["expiresAt"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("payment %s: bad expiresAt %q: %w", p.ID, v, err)
		}
		p.ExpiresAt = time.UnixMilli(ms)
	}
	return p, nil
}
