package settle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SettlementError is a failed wallet transfer or lookup. Settlement failures
// are never retried automatically: the payment is parked for operator review
// with the detail attached.
type SettlementError struct {
	Op     string
	Detail string
	Err    error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement %s failed: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("settlement %s failed: %s", e.Op, e.Detail)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// TransferParams describes an outbound wallet transfer.
type TransferParams struct {
	RecipientID string
	Amount      decimal.Decimal
	Currency    string
	Memo        string
}

// TransferRecord is the wallet API's view of a transfer.
type TransferRecord struct {
	ID     string
	Status string
}

// FeeBreakdown itemizes the cost of a transfer.
type FeeBreakdown struct {
	Fee   decimal.Decimal
	Total decimal.Decimal
}

// Gateway is the wallet-transfer collaborator contract.
type Gateway interface {
	// ResolveRecipient maps a contact email to a wallet recipient id.
	ResolveRecipient(ctx context.Context, email string) (string, error)
	// Balance returns the funding wallet's available balance.
	Balance(ctx context.Context) (decimal.Decimal, error)
	// Fee quotes the cost of a transfer of the given amount and type.
	Fee(ctx context.Context, amount decimal.Decimal, transferType string) (FeeBreakdown, error)
	// Transfer moves funds to a recipient.
	Transfer(ctx context.Context, params TransferParams) (TransferRecord, error)
	// Status fetches the current state of a previously created transfer.
	Status(ctx context.Context, transferID string) (TransferRecord, error)
}
