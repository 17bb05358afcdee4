package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
)

const (
	balancePath = "/retail-web-accountms/getBalance"
	historyPath = "/retail-transactionms/transactionms/get-account-transaction-history"

	// The bank refuses history queries reaching further than this from the
	// current date, in either direction.
	maxHistoryRange = 90 * 24 * time.Hour

	bankDateLayout = "02/01/2006"
)

// TransactionFetcher retrieves balances and account history over an
// authenticated session.
type TransactionFetcher struct {
	client *SessionClient
	nowFn  func() time.Time
}

// NewTransactionFetcher builds a fetcher on top of an authenticated client.
func NewTransactionFetcher(client *SessionClient) *TransactionFetcher {
	return &TransactionFetcher{client: client, nowFn: time.Now}
}

type rawAccount struct {
	AcctNo     string          `json:"acctNo"`
	AcctNm     string          `json:"acctNm"`
	CcyCd      string          `json:"ccyCd"`
	CurrentBal decimal.Decimal `json:"currentBalance"`
}

type balancePayload struct {
	AcctList              []rawAccount `json:"acct_list"`
	InternationalAcctList []rawAccount `json:"internationalAcctList"`
}

// Balances returns the unified balance list: domestic accounts first, then
// international ones, in the order the bank reported them. A soft miss from
// the underlying call yields (nil, nil).
func (f *TransactionFetcher) Balances(ctx context.Context) ([]domain.AccountBalance, error) {
	raw, err := f.client.Do(ctx, balancePath, map[string]any{})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var payload balancePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	merged := make([]domain.AccountBalance, 0, len(payload.AcctList)+len(payload.InternationalAcctList))
	for _, acct := range payload.AcctList {
		merged = append(merged, toBalance(acct))
	}
	for _, acct := range payload.InternationalAcctList {
		merged = append(merged, toBalance(acct))
	}
	return merged, nil
}

func toBalance(acct rawAccount) domain.AccountBalance {
	return domain.AccountBalance{
		AccountNo: acct.AcctNo,
		Name:      acct.AcctNm,
		Currency:  acct.CcyCd,
		Balance:   acct.CurrentBal,
	}
}

type rawTransaction struct {
	PostingDate     string          `json:"postingDate"`
	TransactionDate string          `json:"transactionDate"`
	AccountNo       string          `json:"accountNo"`
	CreditAmount    decimal.Decimal `json:"creditAmount"`
	DebitAmount     decimal.Decimal `json:"debitAmount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	RefNo           string          `json:"refNo"`
	BenAccountName  string          `json:"benAccountName"`
	BankName        string          `json:"bankName"`
	BenAccountNo    string          `json:"benAccountNo"`
	TransactionType string          `json:"transactionType"`
}

type historyPayload struct {
	TransactionHistoryList []rawTransaction `json:"transactionHistoryList"`
}

// History fetches account transactions between from and to. Both bounds must
// lie within 90 days of now, and the span between them must not exceed 90
// days, in either direction.
func (f *TransactionFetcher) History(ctx context.Context, accountNo string, from, to time.Time) ([]domain.BankTransactionRecord, error) {
	if err := f.validateRange(from, to); err != nil {
		return nil, err
	}

	raw, err := f.client.Do(ctx, historyPath, map[string]any{
		"accountNo": accountNo,
		"fromDate":  from.Format(bankDateLayout),
		"toDate":    to.Format(bankDateLayout),
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var payload historyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}
	if payload.TransactionHistoryList == nil {
		return nil, nil
	}

	records := make([]domain.BankTransactionRecord, 0, len(payload.TransactionHistoryList))
	for _, tx := range payload.TransactionHistoryList {
		records = append(records, domain.BankTransactionRecord{
			PostingDate:     tx.PostingDate,
			TransactionDate: tx.TransactionDate,
			AccountNo:       tx.AccountNo,
			CreditAmount:    tx.CreditAmount,
			DebitAmount:     tx.DebitAmount,
			Currency:        tx.Currency,
			Description:     tx.Description,
			RefNo:           tx.RefNo,
			BenAccountName:  tx.BenAccountName,
			BankName:        tx.BankName,
			BenAccountNo:    tx.BenAccountNo,
			TransactionType: tx.TransactionType,
		})
	}
	return records, nil
}

func (f *TransactionFetcher) validateRange(from, to time.Time) error {
	now := f.nowFn()
	if d := now.Sub(from); d > maxHistoryRange || d < -maxHistoryRange {
		return &ValidationError{Reason: fmt.Sprintf("fromDate %s is more than 90 days from now", from.Format(bankDateLayout))}
	}
	if d := now.Sub(to); d > maxHistoryRange || d < -maxHistoryRange {
		return &ValidationError{Reason: fmt.Sprintf("toDate %s is more than 90 days from now", to.Format(bankDateLayout))}
	}
	if d := to.Sub(from); d > maxHistoryRange || d < -maxHistoryRange {
		return &ValidationError{Reason: "date span exceeds 90 days"}
	}
	return nil
}
