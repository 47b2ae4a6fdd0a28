package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

// PushStatus mirrors the gateway's STK push states.
type PushStatus string

const (
	PushPending PushStatus = "PENDING"
	PushSuccess PushStatus = "SUCCESS"
	PushFailed  PushStatus = "FAILED"
)

var errBaseURLRequired = errors.New("mobile money base url is required")

// ThrottledError is returned when the gateway answers 429.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("mobile money gateway throttled, retry after %s", e.RetryAfter)
}

// PushRequest asks the gateway to prompt the payer's handset.
type PushRequest struct {
	Phone     string `json:"phone"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type pushResponse struct {
	CheckoutID string `json:"checkout_id"`
}

// PushState is the gateway's view of one checkout.
type PushState struct {
	CheckoutID string     `json:"checkout_id"`
	Status     PushStatus `json:"status"`
	ResultDesc string     `json:"result_desc"`
}

// Client talks to the mobile money gateway over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logg    *logger.Logger
}

// NewClient builds a gateway client. A nil httpClient gets a client with the configured timeout.
func NewClient(cfg config.MobileMoneyConfig, httpClient *http.Client, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{http: httpClient, baseURL: base, apiKey: cfg.APIKey, logg: logg}, nil
}

// InitiatePush starts an STK push and returns the gateway checkout id.
func (c *Client) InitiatePush(ctx context.Context, req PushRequest) (string, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payer phone is required for mobile money")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode push request: %w", err)
	}

	var out pushResponse
	if err := c.do(ctx, http.MethodPost, "/v1/stk-push", body, &out); err != nil {
		return "", err
	}
	if out.CheckoutID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "mobile money gateway returned no checkout id")
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"checkout_id": out.CheckoutID,
			"reference":   req.Reference,
		}), "mobile money push initiated")
	}
	return out.CheckoutID, nil
}

// PushStatus fetches the current state of a checkout.
func (c *Client) PushStatus(ctx context.Context, checkoutID string) (PushState, error) {
	var out PushState
	if err := c.do(ctx, http.MethodGet, "/v1/stk-push/"+checkoutID, nil, &out); err != nil {
		return PushState{}, err
	}
	switch out.Status {
	case PushPending, PushSuccess, PushFailed:
	default:
		out.Status = PushPending
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dst any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.Wrap(pkgerrors.CodeProviderTimeout, err, "mobile money gateway timed out")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mobile money gateway unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottledError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "mobile money checkout not found")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("mobile money gateway rejected request: %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("mobile money gateway error: %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mobile money response")
	}
	return nil
}

func retryAfter(raw string) time.Duration {
	sec, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || sec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(sec) * time.Second
}
