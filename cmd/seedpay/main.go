package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/rate"
)

// seedpay creates a pending payment request directly in the ledger, standing
// in for the chat intake flow during local testing.
func main() {
	var (
		addr     = flag.String("ledger", "localhost:6379", "ledger store address")
		userID   = flag.String("user", "", "owning user id")
		email    = flag.String("email", "", "contact email")
		amount   = flag.String("usdt", "10", "requested amount in USDT")
		rateStr  = flag.String("rate", "", "VND per USDT, markup excluded; fetched from -rate-url when empty")
		rateURL  = flag.String("rate-url", os.Getenv("RATE_URL"), "quote endpoint used when -rate is empty")
		markup   = flag.String("markup", defaultMarkup(), "markup fraction")
		lifetime = flag.Duration("expiry", 30*time.Minute, "payment lifetime")
	)
	flag.Parse()

	if *userID == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "-user and -email are required")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := ledger.NewRedisStore(ctx, ledger.RedisOptions{Addr: *addr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect ledger: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	amountUSDT, err := decimal.NewFromString(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -usdt value: %v\n", err)
		os.Exit(1)
	}
	rawRate, err := resolveRate(ctx, *rateStr, *rateURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve rate: %v\n", err)
		os.Exit(1)
	}
	markupFrac, err := decimal.NewFromString(*markup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -markup value: %v\n", err)
		os.Exit(1)
	}

	memo, err := freshMemo(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate memo: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	payment := &domain.PaymentRequest{
		ID:         uuid.NewString(),
		UserID:     *userID,
		Email:      *email,
		AmountUSDT: amountUSDT,
		AmountVND:  rate.AmountVND(amountUSDT, rawRate, markupFrac),
		Rate:       rate.MarkedUpRate(rawRate, markupFrac),
		Memo:       memo,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(*lifetime),
	}

	if err := store.PutPayment(ctx, payment); err != nil {
		fmt.Fprintf(os.Stderr, "store payment: %v\n", err)
		os.Exit(1)
	}
	if err := store.AddPending(ctx, payment.ID); err != nil {
		fmt.Fprintf(os.Stderr, "index payment: %v\n", err)
		os.Exit(1)
	}
	if err := store.ScheduleExpiry(ctx, payment.ID, payment.ExpiresAt); err != nil {
		fmt.Fprintf(os.Stderr, "schedule expiry: %v\n", err)
		os.Exit(1)
	}
	if err := store.SetActivePayment(ctx, payment.UserID, payment.ID); err != nil {
		fmt.Fprintf(os.Stderr, "set active payment: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("payment %s\n  transfer %d VND with memo %s before %s\n",
		payment.ID, payment.AmountVND, payment.Memo, payment.ExpiresAt.Format(time.RFC3339))
}

// resolveRate prefers an explicitly given rate; otherwise it asks the quote
// endpoint for the current one.
func resolveRate(ctx context.Context, fixed, url string) (decimal.Decimal, error) {
	if fixed != "" {
		rawRate, err := decimal.NewFromString(fixed)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad -rate value: %w", err)
		}
		return rawRate, nil
	}
	if url == "" {
		return decimal.Zero, fmt.Errorf("either -rate or -rate-url (RATE_URL) is required")
	}
	return rate.NewClient(url, 10*time.Second).Quote(ctx)
}

// defaultMarkup converts the RATE_MARKUP_PCT percentage into the fraction the
// -markup flag expects, falling back to 2%.
func defaultMarkup() string {
	if pct := os.Getenv("RATE_MARKUP_PCT"); pct != "" {
		if v, err := decimal.NewFromString(pct); err == nil {
			return v.Div(decimal.NewFromInt(100)).String()
		}
	}
	return "0.02"
}

// freshMemo retries generation until the memo is unused among pending
// payments, so two outstanding requests can never share one.
func freshMemo(ctx context.Context, store ledger.Store) (string, error) {
	for i := 0; i < 10; i++ {
		memo, err := rate.NewMemo()
		if err != nil {
			return "", err
		}
		used, err := store.MemoInUse(ctx, memo)
		if err != nil {
			return "", err
		}
		if !used {
			return memo, nil
		}
	}
	return "", fmt.Errorf("could not find an unused memo")
}
