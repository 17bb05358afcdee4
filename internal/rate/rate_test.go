package rate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountVND(t *testing.T) {
	tests := []struct {
		name   string
		usdt   string
		rate   string
		markup string
		want   int64
	}{
		{"spec example", "10", "25500", "0.02", 260100},
		{"rounds up", "1", "25500.4", "0", 25501},
		{"zero amount", "0", "25500", "0.02", 0},
		{"no markup exact", "2", "25000", "0", 50000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountVND(
				decimal.RequireFromString(tt.usdt),
				decimal.RequireFromString(tt.rate),
				decimal.RequireFromString(tt.markup),
			)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkedUpRate(t *testing.T) {
	got := MarkedUpRate(decimal.RequireFromString("25500"), decimal.RequireFromString("0.02"))
	assert.True(t, decimal.RequireFromString("26010").Equal(got))
}

func TestNewMemo(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		memo, err := NewMemo()
		require.NoError(t, err)
		require.Len(t, memo, MemoLength)
		for _, c := range memo {
			require.True(t, c >= '0' && c <= '9', "memo must be numeric, got %q", memo)
		}
		seen[memo] = true
	}
	// 50 draws from 10^8 possibilities colliding down to a handful would
	// indicate a broken source
	assert.Greater(t, len(seen), 45)
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rate":"25500.5"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	quote, err := client.Quote(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25500.5").Equal(quote))
}

func TestQuoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Quote(context.Background())
	require.Error(t, err)

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rate":"abc"}`))
	}))
	defer garbled.Close()

	_, err = NewClient(garbled.URL, time.Second).Quote(context.Background())
	require.Error(t, err)
}
