package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/nguyenkhoa0721/basalpay-p2p/internal/bank"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/config"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/ledger"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/logging"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/notify"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/recon"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/server"
	"github.com/nguyenkhoa0721/basalpay-p2p/internal/settle"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	store, err := ledger.NewRedisStore(ctx, ledger.RedisOptions{
		Addr:     cfg.Ledger.Addr,
		Password: cfg.Ledger.Password,
		DB:       cfg.Ledger.DB,
	})
	if err != nil {
		logger.Error("failed to connect to ledger store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing ledger store failed", "error", err)
		}
	}()

	solver, err := buildSolver(cfg.Bank)
	if err != nil {
		logger.Error("failed to build captcha solver", "error", err)
		os.Exit(1)
	}

	client, err := bank.NewSessionClient(bank.SessionClientOptions{
		BaseURL:  cfg.Bank.BaseURL,
		Username: cfg.Bank.Username,
		Password: cfg.Bank.Password,
		Solver:   solver,
		Cipher:   vendorCipher(cfg.Bank.CipherCmd),
		FetchKey: staticKey(cfg.Bank.CipherKeyB64),
		Timeout:  cfg.Bank.RequestTimeout,
		Logger:   logging.ForComponent(logger, "bank"),
	})
	if err != nil {
		logger.Error("failed to build bank client", "error", err)
		os.Exit(1)
	}

	fetcher := bank.NewTransactionFetcher(client)
	gateway := settle.NewHTTPGateway(cfg.Settle.BaseURL, cfg.Settle.AuthSecret, cfg.Bank.RequestTimeout)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.TelegramToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.Notify.TelegramToken, "", cfg.Bank.RequestTimeout)
	}

	engine := recon.NewEngine(store, fetcher, client, gateway, notifier, logging.ForComponent(logger, "recon"), recon.Config{
		AccountNo:              cfg.Bank.AccountNo,
		PollInterval:           cfg.Recon.PollInterval,
		Lookback:               cfg.Recon.Lookback,
		ToleranceVND:           cfg.Recon.ToleranceVND,
		MaxConsecutiveFailures: cfg.Recon.MaxConsecutiveFailures,
		OpenHour:               cfg.Recon.OpenHour,
		CloseHour:              cfg.Recon.CloseHour,
		OperatorID:             cfg.Notify.OperatorID,
	})
	reaper := recon.NewReaper(store, notifier, logging.ForComponent(logger, "reaper"), cfg.Recon.ReapInterval)

	router := server.NewRouter(logger, server.RouterDependencies{
		Health: server.LedgerHealthService{Store: store},
		Recon:  engine,
	})
	srv := server.New(logger, cfg.Ops, router)

	go engine.Run(ctx)
	go reaper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ops server stopped unexpectedly", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// buildSolver selects the captcha strategy once, at construction time.
func buildSolver(cfg config.BankConfig) (bank.CaptchaSolver, error) {
	if cfg.CaptchaCmd == "" {
		return nil, fmt.Errorf("BANK_CAPTCHA_CMD is required")
	}
	predict := execPredictor(cfg.CaptchaCmd)
	switch cfg.CaptchaMode {
	case "model":
		return bank.NewModelSolver(predict), nil
	case "engine":
		return bank.NewEngineSolver(predict), nil
	case "custom":
		return bank.NewCustomSolver(predict), nil
	}
	return nil, fmt.Errorf("unknown captcha mode %q", cfg.CaptchaMode)
}

// execPredictor pipes the captcha image into an external recognizer and reads
// the answer from its stdout.
func execPredictor(command string) bank.PredictFunc {
	return func(ctx context.Context, image []byte) (string, error) {
		cmd := exec.CommandContext(ctx, command)
		cmd.Stdin = bytes.NewReader(image)
		out, err := cmd.Output()
		if err != nil {
			return "", fmt.Errorf("captcha recognizer: %w", err)
		}
		return string(bytes.TrimSpace(out)), nil
	}
}

// vendorCipher invokes the opaque login-payload cipher artifact. The payload
// and key material go in base64 on stdin, the ciphertext comes back on stdout.
func vendorCipher(command string) bank.CipherGateway {
	return bank.CipherFunc(func(ctx context.Context, payload, keyMaterial []byte, version string) (string, error) {
		if command == "" {
			return "", fmt.Errorf("BANK_CIPHER_CMD is required: no cipher artifact configured")
		}
		cmd := exec.CommandContext(ctx, command, version)
		cmd.Stdin = bytes.NewReader([]byte(
			base64.StdEncoding.EncodeToString(payload) + "\n" + base64.StdEncoding.EncodeToString(keyMaterial) + "\n",
		))
		out, err := cmd.Output()
		if err != nil {
			return "", fmt.Errorf("vendor cipher: %w", err)
		}
		return string(bytes.TrimSpace(out)), nil
	})
}

func staticKey(b64 string) bank.KeyFetcher {
	return func(ctx context.Context) ([]byte, error) {
		if b64 == "" {
			return nil, fmt.Errorf("BANK_CIPHER_KEY is required")
		}
		key, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("BANK_CIPHER_KEY is not valid base64: %w", err)
		}
		return key, nil
	}
}
