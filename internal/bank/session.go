package bank

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	captchaPath = "/retail-web-internetbankingms/getCaptchaImage"
	loginPath   = "/retail_web/internetbanking/v2.0/doLogin"

	// Authentication-flow marker the bank expects verbatim in every login
	// payload. Opaque vendor constant.
	authFlowMarker = "c7a84daeecbfd409d95653b7aa370b0d"

	maxLoginAttempts = 5
	loginBackoffBase = 500 * time.Millisecond
)

// KeyFetcher retrieves the key-material blob consumed by the vendor cipher.
// Invoked lazily, once per client lifetime.
type KeyFetcher func(ctx context.Context) ([]byte, error)

// SessionClientOptions configures a SessionClient.
type SessionClientOptions struct {
	BaseURL  string
	Username string
	Password string
	Solver   CaptchaSolver
	Cipher   CipherGateway
	FetchKey KeyFetcher
	Timeout  time.Duration
	Logger   *slog.Logger
}

// SessionClient owns the bank session: it logs in (captcha + encrypted
// credential payload), holds the session identifier, and renews it when the
// bank invalidates it server-side. At most one valid session exists per client
// instance.
type SessionClient struct {
	httpClient *http.Client
	logger     *slog.Logger

	baseURL  string
	username string
	password string
	deviceID string

	solver   CaptchaSolver
	cipher   CipherGateway
	fetchKey KeyFetcher

	// mu serializes logins and guards session state so two concurrent
	// callers cannot race captcha solves against each other.
	mu          sync.Mutex
	sessionID   string
	keyMaterial []byte

	nowFn       func() time.Time
	backoffBase time.Duration
}

// NewSessionClient constructs a client with a device identifier that stays
// stable for the client's lifetime.
func NewSessionClient(opts SessionClientOptions) (*SessionClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("bank base URL is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("bank credentials are required")
	}
	if opts.Solver == nil {
		return nil, fmt.Errorf("captcha solver is required")
	}
	if opts.Cipher == nil {
		return nil, fmt.Errorf("cipher gateway is required")
	}
	if opts.FetchKey == nil {
		return nil, fmt.Errorf("key fetcher is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionClient{
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		baseURL:     opts.BaseURL,
		username:    opts.Username,
		password:    opts.Password,
		deviceID:    uuid.NewString(),
		solver:      opts.Solver,
		cipher:      opts.Cipher,
		fetchKey:    opts.FetchKey,
		nowFn:       time.Now,
		backoffBase: loginBackoffBase,
	}, nil
}

type apiResult struct {
	OK           bool   `json:"ok"`
	ResponseCode string `json:"responseCode"`
	Message      string `json:"message"`
}

type loginResponse struct {
	Result    *apiResult `json:"result"`
	SessionID string     `json:"sessionId"`
}

type captchaResponse struct {
	Result      *apiResult `json:"result"`
	ImageString string     `json:"imageString"`
}

// Login obtains a fresh session. Captcha rejections and unsolvable images
// restart the whole attempt with a new challenge, bounded by a fixed attempt
// budget with exponential backoff between attempts.
func (c *SessionClient) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *SessionClient) loginLocked(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.loginOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrUnsolvable) {
			c.logger.Warn("captcha solver gave up, requesting a new challenge", "attempt", attempt+1)
			continue
		}
		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.Code == CodeCaptchaRejected {
			c.logger.Warn("bank rejected captcha answer", "attempt", attempt+1)
			continue
		}
		return err
	}
	return fmt.Errorf("login attempts exhausted after %d tries: %w", maxLoginAttempts, lastErr)
}

func (c *SessionClient) loginOnce(ctx context.Context) error {
	image, err := c.fetchCaptcha(ctx)
	if err != nil {
		return err
	}

	captcha, err := c.solver.Solve(ctx, image)
	if err != nil {
		return err
	}

	key, err := c.keyMaterialLocked(ctx)
	if err != nil {
		return err
	}

	payload := map[string]string{
		"userId":            c.username,
		"password":          hashPassword(c.password),
		"captcha":           captcha,
		"ibAuthen2faString": authFlowMarker,
		"sessionId":         "",
		"refNo":             c.newRefNo(),
		"deviceIdCommon":    c.deviceID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal login payload: %w", err)
	}

	dataEnc, err := c.cipher.Encrypt(ctx, raw, key, CipherVersion)
	if err != nil {
		return fmt.Errorf("encrypt login payload: %w", err)
	}

	body, err := c.post(ctx, loginPath, map[string]any{"dataEnc": dataEnc}, nil)
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result == nil {
		return &AuthError{Code: "MALFORMED", Message: "login response missing result"}
	}
	if !resp.Result.OK {
		return &AuthError{Code: resp.Result.ResponseCode, Message: resp.Result.Message}
	}

	c.sessionID = resp.SessionID
	c.logger.Info("bank session established")
	return nil
}

func (c *SessionClient) fetchCaptcha(ctx context.Context) ([]byte, error) {
	body, err := c.post(ctx, captchaPath, map[string]any{
		"sessionId":      "",
		"refNo":          c.newRefNo(),
		"deviceIdCommon": c.deviceID,
	}, nil)
	if err != nil {
		return nil, err
	}

	var resp captchaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &AuthError{Code: "MALFORMED", Message: "captcha response undecodable"}
	}
	image, err := base64.StdEncoding.DecodeString(resp.ImageString)
	if err != nil {
		return nil, &AuthError{Code: "MALFORMED", Message: "captcha image is not valid base64"}
	}
	return image, nil
}

func (c *SessionClient) keyMaterialLocked(ctx context.Context) ([]byte, error) {
	if c.keyMaterial != nil {
		return c.keyMaterial, nil
	}
	key, err := c.fetchKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch cipher key material: %w", err)
	}
	c.keyMaterial = key
	return key, nil
}

// Invalidate drops the current session so the next call logs in again. Used
// when a cycle-level error indicates the session died server-side.
func (c *SessionClient) Invalidate() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

// Do performs an authenticated POST. A missing session triggers a login first;
// a session-expired response triggers exactly one re-login followed by exactly
// one retry of the same request. A response without a result object is a soft
// miss: (nil, nil), and the caller decides what that means.
func (c *SessionClient) Do(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, path, body, true)
}

func (c *SessionClient) do(ctx context.Context, path string, body map[string]any, allowRenew bool) (json.RawMessage, error) {
	sessionID, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	refNo := c.newRefNo()
	envelope := map[string]any{
		"sessionId":      sessionID,
		"refNo":          refNo,
		"deviceIdCommon": c.deviceID,
	}
	for k, v := range body {
		envelope[k] = v
	}

	headers := map[string]string{
		"X-Request-Id": uuid.NewString(),
		"Deviceid":     c.deviceID,
		"Refno":        refNo,
	}

	raw, err := c.post(ctx, path, envelope, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *apiResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Result == nil {
		return nil, nil
	}
	if resp.Result.OK {
		return raw, nil
	}
	if resp.Result.ResponseCode == CodeSessionExpired {
		if !allowRenew {
			return nil, &RequestError{Path: path, Code: resp.Result.ResponseCode, Message: resp.Result.Message}
		}
		c.logger.Info("bank session expired, renewing", "path", path)
		c.Invalidate()
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, path, body, false)
	}
	return nil, &RequestError{Path: path, Code: resp.Result.ResponseCode, Message: resp.Result.Message}
}

func (c *SessionClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		if err := c.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.sessionID, nil
}

func (c *SessionClient) post(ctx context.Context, path string, body map[string]any, headers map[string]string) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientNetworkError{Op: "read " + path, Err: err}
	}
	return raw, nil
}

// newRefNo builds the bank's reference id format: username plus epoch millis.
func (c *SessionClient) newRefNo() string {
	return c.username + "-" + strconv.FormatInt(c.nowFn().UnixMilli(), 10)
}

func hashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}
