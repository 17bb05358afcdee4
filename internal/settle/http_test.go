package settle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRecipient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/by-email/trader@example.com", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"r-77"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "s3cret", time.Second)
	id, err := gw.ResolveRecipient(context.Background(), "trader@example.com")
	require.NoError(t, err)
	assert.Equal(t, "r-77", id)
}

func TestResolveRecipientUnknownEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "s3cret", time.Second)
	_, err := gw.ResolveRecipient(context.Background(), "nobody@example.com")

	var serr *SettlementError
	require.ErrorAs(t, err, &serr)
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":"1234.56"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "s3cret", time.Second)
	balance, err := gw.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(balance))
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r-77", body["recipientId"])
		assert.Equal(t, "10", body["amount"])
		assert.Equal(t, "USDT", body["currency"])
		w.Write([]byte(`{"id":"tr-1","status":"done"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "s3cret", time.Second)
	record, err := gw.Transfer(context.Background(), TransferParams{
		RecipientID: "r-77",
		Amount:      decimal.RequireFromString("10"),
		Currency:    "USDT",
		Memo:        "73920154",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr-1", record.ID)
}

func TestTransferProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "s3cret", time.Second)
	_, err := gw.Transfer(context.Background(), TransferParams{
		RecipientID: "r-77",
		Amount:      decimal.RequireFromString("10"),
		Currency:    "USDT",
	})

	var serr *SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "insufficient funds")
}
