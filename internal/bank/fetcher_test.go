package bank

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcherServer(t *testing.T, dataHandler http.HandlerFunc) (*TransactionFetcher, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(captchaPath, func(w http.ResponseWriter, r *http.Request) {
		image := base64.StdEncoding.EncodeToString([]byte("img"))
		fmt.Fprintf(w, `{"result":{"ok":true},"imageString":%q}`, image)
	})
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"ok":true},"sessionId":"sess"}`)
	})
	mux.HandleFunc("/", dataHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, _ := newTestClient(t, srv.URL, nil)
	return NewTransactionFetcher(client), srv
}

func TestHistoryDateValidation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &TransactionFetcher{nowFn: func() time.Time { return now }}

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		ok   bool
	}{
		{"within range", now.AddDate(0, 0, -7), now, true},
		{"exactly ninety days back", now.Add(-maxHistoryRange), now, true},
		{"fromDate too old", now.AddDate(0, 0, -91), now, false},
		{"fromDate too far ahead", now.AddDate(0, 0, 91), now, false},
		{"toDate too old", now, now.AddDate(0, 0, -91), false},
		{"toDate too far ahead", now, now.AddDate(0, 0, 91), false},
		{"span too wide forward", now.AddDate(0, 0, -89), now.AddDate(0, 0, 89), false},
		{"reversed but narrow", now, now.AddDate(0, 0, -7), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fetcher.validateRange(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
			}
		})
	}
}

func TestHistoryMapsRecords(t *testing.T) {
	fetcher, _ := newFetcherServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"ok":true},"transactionHistoryList":[
			{"postingDate":"14/03/2025 09:26:53","transactionDate":"14/03/2025 09:26:53",
			 "accountNo":"0000123456789","creditAmount":"260100","debitAmount":"0",
			 "currency":"VND","description":"CUSTOMER transfer 73920154","refNo":"FT25073",
			 "benAccountName":"NGUYEN VAN A","bankName":"MB","benAccountNo":"999",
			 "transactionType":"ACC"}
		]}`)
	})

	now := time.Now()
	records, err := fetcher.History(context.Background(), "0000123456789", now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "FT25073", rec.RefNo)
	assert.Equal(t, "CUSTOMER transfer 73920154", rec.Description)
	assert.True(t, decimal.RequireFromString("260100").Equal(rec.CreditAmount))
	assert.True(t, rec.IsCredit())
}

func TestHistorySoftMissYieldsNothing(t *testing.T) {
	fetcher, _ := newFetcherServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"ok":true}}`)
	})

	now := time.Now()
	records, err := fetcher.History(context.Background(), "0000123456789", now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestBalancesMergesDomesticAndInternational(t *testing.T) {
	fetcher, _ := newFetcherServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"ok":true},
			"acct_list":[{"acctNo":"111","acctNm":"Main","ccyCd":"VND","currentBalance":"5000000"}],
			"internationalAcctList":[{"acctNo":"222","acctNm":"Intl","ccyCd":"USD","currentBalance":"120.50"}]}`)
	})

	balances, err := fetcher.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "111", balances[0].AccountNo, "domestic accounts come first")
	assert.Equal(t, "VND", balances[0].Currency)
	assert.Equal(t, "222", balances[1].AccountNo)
	assert.True(t, decimal.RequireFromString("120.50").Equal(balances[1].Balance))
}

func TestBalancesSoftMiss(t *testing.T) {
	fetcher, _ := newFetcherServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"no":"result"}`)
	})

	balances, err := fetcher.Balances(context.Background())
	require.NoError(t, err)
	assert.Nil(t, balances)
}
