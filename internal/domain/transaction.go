package domain

import "github.com/shopspring/decimal"

// BankTransactionRecord is one row of bank account history as returned by the
// transaction fetcher. Records are transient: they live for one poll cycle and
// are never persisted by the core.
type BankTransactionRecord struct {
	PostingDate     string
	TransactionDate string
	AccountNo       string
	CreditAmount    decimal.Decimal
	DebitAmount     decimal.Decimal
	Currency        string
	Description     string
	RefNo           string
	BenAccountName  string
	BankName        string
	BenAccountNo    string
	TransactionType string
}

// IsCredit reports whether the record is an incoming transfer with a positive
// amount. Only credits participate in payment matching.
func (r BankTransactionRecord) IsCredit() bool {
	return r.CreditAmount.IsPositive()
}

// AccountBalance is one entry of the unified balance list, merged from the
// domestic and international account lists.
type AccountBalance struct {
	AccountNo string
	Name      string
	Currency  string
	Balance   decimal.Decimal
}
