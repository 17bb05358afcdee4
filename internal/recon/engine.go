package recon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/bank"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/domain"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/notify"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/settle"
)

// BankFetcher is the slice of the bank client the engine needs.
type BankFetcher interface {
	Balances(ctx context.Context) ([]domain.AccountBalance, error)
	History(ctx context.Context, accountNo string, from, to time.Time) ([]domain.BankTransactionRecord, error)
}

// SessionRenewer lets the engine force a fresh login after a session-expiry
// cycle failure.
type SessionRenewer interface {
	Invalidate()
}

// Config holds the engine's tuning knobs.
type Config struct {
	AccountNo string
	// PollInterval is the spacing between reconciliation cycles.
	PollInterval time.Duration
	// Lookback is how far back each cycle queries history.
	Lookback time.Duration
	// ToleranceVND is the maximum absolute difference between a credit and a
	// payment's requested amount for the two to match. Zero means exact.
	ToleranceVND int64
	// MaxConsecutiveFailures pauses the loop once exceeded.
	MaxConsecutiveFailures int
	// OpenHour/CloseHour bound the operating window (local time). Equal
	// values mean always open.
	OpenHour  int
	CloseHour int
	// OperatorID receives pause alerts and manual-review notices.
	OperatorID string
}

// Engine polls bank history and matches credits against pending payments,
// driving each matched payment through processing to settlement.
type Engine struct {
	store    ledger.Store
	fetcher  BankFetcher
	sessions SessionRenewer
	gateway  settle.Gateway
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config

	nowFn func() time.Time

	busy     atomic.Bool
	paused   atomic.Bool
	failures int

	// recipient ids resolved once per email, session-lifetime cache
	recipients map[string]string
}

// NewEngine wires an engine. nowFn defaults to time.Now.
func NewEngine(store ledger.Store, fetcher BankFetcher, sessions SessionRenewer, gateway settle.Gateway, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{
		store:      store,
		fetcher:    fetcher,
		sessions:   sessions,
		gateway:    gateway,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
		nowFn:      time.Now,
		recipients: make(map[string]string),
	}
}

// Paused reports whether the loop pulled its own emergency brake.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Run drives reconciliation cycles until ctx is canceled or the consecutive
// failure threshold pauses the loop. A paused loop does not self-resume.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if e.paused.Load() {
			continue
		}
		if !e.withinWindow(e.nowFn()) {
			continue
		}

		if err := e.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.failures++
			e.logger.Error("reconciliation cycle failed", "error", err, "consecutive", e.failures)
			if bank.IsSessionExpired(err) && e.sessions != nil {
				e.sessions.Invalidate()
			}
			if e.failures > e.cfg.MaxConsecutiveFailures {
				e.pause(ctx)
			}
			continue
		}
		e.failures = 0
	}
}

func (e *Engine) pause(ctx context.Context) {
	e.paused.Store(true)
	e.logger.Error("reconciliation paused after repeated failures", "consecutive", e.failures)
	if e.cfg.OperatorID != "" {
		msg := fmt.Sprintf("Reconciliation paused after %d consecutive failures. Manual restart required.", e.failures)
		if err := e.notifier.Send(ctx, e.cfg.OperatorID, msg); err != nil {
			e.logger.Error("operator alert failed", "error", err)
		}
	}
}

func (e *Engine) withinWindow(now time.Time) bool {
	if e.cfg.OpenHour == e.cfg.CloseHour {
		return true
	}
	h := now.Hour()
	if e.cfg.OpenHour < e.cfg.CloseHour {
		return h >= e.cfg.OpenHour && h < e.cfg.CloseHour
	}
	// window wraps midnight
	return h >= e.cfg.OpenHour || h < e.cfg.CloseHour
}

// Cycle runs one reconciliation pass. Cycles never overlap: a call while a
// previous one is still in flight returns immediately.
func (e *Engine) Cycle(ctx context.Context) error {
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Warn("previous reconciliation cycle still running, skipping")
		return nil
	}
	defer e.busy.Store(false)

	balances, err := e.fetcher.Balances(ctx)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}
	if !containsAccount(balances, e.cfg.AccountNo) {
		return fmt.Errorf("monitored account %s absent from balance list", e.cfg.AccountNo)
	}

	now := e.nowFn()
	history, err := e.fetcher.History(ctx, e.cfg.AccountNo, now.Add(-e.cfg.Lookback), now)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	credits := creditCandidates(history)

	pending, err := e.store.PendingIDs(ctx)
	if err != nil {
		return fmt.Errorf("list pending payments: %w", err)
	}

	for _, id := range pending {
		e.processPayment(ctx, id, credits)
	}
	return nil
}

// Bank history timestamps are day-first; a bare string comparison would not
// sort them chronologically across day boundaries.
const (
	txTimestampLayout = "02/01/2006 15:04:05"
	txDateLayout      = "02/01/2006"
)

func parseTxDate(s string) (time.Time, bool) {
	for _, layout := range []string{txTimestampLayout, txDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// txBefore orders records by transaction date, then reference number. Records
// whose date does not parse fall back to a string comparison.
func txBefore(a, b domain.BankTransactionRecord) bool {
	at, aok := parseTxDate(a.TransactionDate)
	bt, bok := parseTxDate(b.TransactionDate)
	if aok && bok {
		if !at.Equal(bt) {
			return at.Before(bt)
		}
	} else if a.TransactionDate != b.TransactionDate {
		return a.TransactionDate < b.TransactionDate
	}
	return a.RefNo < b.RefNo
}

// creditCandidates filters history down to positive credits and sorts them
// chronologically. The bank does not guarantee order; sorting makes the
// first-match policy deterministic.
func creditCandidates(history []domain.BankTransactionRecord) []domain.BankTransactionRecord {
	credits := make([]domain.BankTransactionRecord, 0, len(history))
	for _, tx := range history {
		if tx.IsCredit() {
			credits = append(credits, tx)
		}
	}
	sort.SliceStable(credits, func(i, j int) bool {
		return txBefore(credits[i], credits[j])
	})
	return credits
}

// processPayment handles one pending payment in isolation: any failure here is
// recorded against this payment without aborting the rest of the cycle.
func (e *Engine) processPayment(ctx context.Context, id string, credits []domain.BankTransactionRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing payment", "payment", id, "panic", r)
		}
	}()

	payment, err := e.store.Payment(ctx, id)
	if err != nil {
		e.logger.Error("load pending payment", "payment", id, "error", err)
		return
	}
	if payment.Status == domain.StatusProcessing {
		// a prior run died between match and completion; resume it
		if err := e.settlePayment(ctx, payment); err != nil {
			e.logger.Error("settlement failed", "payment", id, "error", err)
			e.toManualReview(ctx, payment, err)
		}
		return
	}
	if payment.Status != domain.StatusPending {
		return
	}

	match, found := FindMatch(credits, payment.Memo, payment.AmountVND, e.cfg.ToleranceVND)
	if !found {
		return
	}

	applied, err := e.store.UpdateStatusGuarded(ctx, id, domain.StatusPending, domain.StatusProcessing, map[string]string{
		"matchedTxRef":  match.RefNo,
		"matchedTxDate": match.TransactionDate,
	})
	if err != nil {
		e.logger.Error("mark payment processing", "payment", id, "error", err)
		return
	}
	if !applied {
		// someone else (likely the reaper) moved it first
		return
	}
	payment.MatchedTxRef = match.RefNo
	payment.MatchedTxDate = match.TransactionDate

	if err := e.settlePayment(ctx, payment); err != nil {
		e.logger.Error("settlement failed", "payment", id, "error", err)
		e.toManualReview(ctx, payment, err)
	}
}

// settlePayment moves destination funds for a matched payment and finalizes
// it. A settlement id already present means a prior run paid out but died
// before finalizing; the transfer is skipped and the payment completed.
func (e *Engine) settlePayment(ctx context.Context, payment *domain.PaymentRequest) error {
	settlementID := payment.SettlementID
	if settlementID == "" {
		recipient, err := e.resolveRecipient(ctx, payment.Email)
		if err != nil {
			return err
		}

		balance, err := e.gateway.Balance(ctx)
		if err != nil {
			return err
		}
		if balance.LessThan(payment.AmountUSDT) {
			return &settle.SettlementError{
				Op:     "balance check",
				Detail: fmt.Sprintf("wallet holds %s, payment needs %s", balance, payment.AmountUSDT),
			}
		}

		record, err := e.gateway.Transfer(ctx, settle.TransferParams{
			RecipientID: recipient,
			Amount:      payment.AmountUSDT,
			Currency:    "USDT",
			Memo:        payment.Memo,
		})
		if err != nil {
			return err
		}
		settlementID = record.ID
		// persist the id before finalizing so a crash here cannot cause a
		// second transfer on resume
		if _, err := e.store.UpdateStatusGuarded(ctx, payment.ID, domain.StatusProcessing, domain.StatusProcessing, map[string]string{
			"settlementId": settlementID,
		}); err != nil {
			e.logger.Error("record settlement id", "payment", payment.ID, "error", err)
		}
	} else {
		e.logger.Info("reusing settlement from a prior partial run", "payment", payment.ID, "settlement", settlementID)
	}

	applied, err := e.store.UpdateStatusGuarded(ctx, payment.ID, domain.StatusProcessing, domain.StatusCompleted, map[string]string{
		"settlementId": settlementID,
	})
	if err != nil {
		return fmt.Errorf("finalize payment %s: %w", payment.ID, err)
	}
	if !applied {
		return fmt.Errorf("payment %s left processing before completion", payment.ID)
	}

	if err := e.store.RemovePending(ctx, payment.ID); err != nil {
		e.logger.Error("remove completed payment from pending index", "payment", payment.ID, "error", err)
	}
	if err := e.store.AddCompleted(ctx, payment.ID); err != nil {
		e.logger.Error("add payment to completed index", "payment", payment.ID, "error", err)
	}
	if err := e.store.ClearActivePayment(ctx, payment.UserID); err != nil {
		e.logger.Error("clear active payment", "user", payment.UserID, "error", err)
	}

	e.logger.Info("payment settled", "payment", payment.ID, "settlement", settlementID, "amountUsdt", payment.AmountUSDT.String())
	msg := fmt.Sprintf("Payment %s confirmed: %s USDT settled to your wallet.", payment.ID, payment.AmountUSDT)
	if err := e.notifier.Send(ctx, payment.UserID, msg); err != nil {
		e.logger.Error("settlement notification failed", "payment", payment.ID, "error", err)
	}
	return nil
}

func (e *Engine) resolveRecipient(ctx context.Context, email string) (string, error) {
	if id, ok := e.recipients[email]; ok {
		return id, nil
	}
	id, err := e.gateway.ResolveRecipient(ctx, email)
	if err != nil {
		return "", err
	}
	e.recipients[email] = id
	return id, nil
}

func (e *Engine) toManualReview(ctx context.Context, payment *domain.PaymentRequest, cause error) {
	applied, err := e.store.UpdateStatusGuarded(ctx, payment.ID, domain.StatusProcessing, domain.StatusManualReview, map[string]string{
		"errorDetail": cause.Error(),
	})
	if err != nil {
		e.logger.Error("route payment to manual review", "payment", payment.ID, "error", err)
		return
	}
	if !applied {
		return
	}
	if err := e.store.RemovePending(ctx, payment.ID); err != nil {
		e.logger.Error("remove reviewed payment from pending index", "payment", payment.ID, "error", err)
	}
	if e.cfg.OperatorID != "" {
		msg := fmt.Sprintf("Payment %s needs manual review: %v", payment.ID, cause)
		if err := e.notifier.Send(ctx, e.cfg.OperatorID, msg); err != nil {
			e.logger.Error("manual review alert failed", "payment", payment.ID, "error", err)
		}
	}
}

// FindMatch scans ordered credits for the first one whose description contains
// the memo and whose amount is within tolerance of the requested amount.
func FindMatch(credits []domain.BankTransactionRecord, memo string, amountVND, toleranceVND int64) (domain.BankTransactionRecord, bool) {
	want := decimal.NewFromInt(amountVND)
	tolerance := decimal.NewFromInt(toleranceVND)
	for _, tx := range credits {
		if !containsMemo(tx.Description, memo) {
			continue
		}
		if tx.CreditAmount.Sub(want).Abs().LessThanOrEqual(tolerance) {
			return tx, true
		}
	}
	return domain.BankTransactionRecord{}, false
}

func containsMemo(description, memo string) bool {
	return memo != "" && strings.Contains(description, memo)
}

func containsAccount(balances []domain.AccountBalance, accountNo string) bool {
	for _, b := range balances {
		if b.AccountNo == accountNo {
			return true
		}
	}
	return false
}
