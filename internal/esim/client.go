// Package esim is a client for the eSIM Access provisioning API: package
// listing, order placement and order profile queries.
package esim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/esimbot/core/httpclient"
	"github.com/m3rciful/esimbot/core/logger"
)

const (
	// DefaultBaseURL is the production endpoint of the open API.
	DefaultBaseURL = "https://api.esimaccess.com/api/v1/open"

	accessCodeHeader  = "RT-AccessCode"
	transactionPrefix = "WWS-"
	queryPageSize     = 10
	maxErrorBody      = 512
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	AccessCode string
	// Timeout bounds each request; zero means 15s.
	Timeout time.Duration

	HTTPClient *http.Client
	// NewTransactionID overrides transaction id generation in tests.
	NewTransactionID func() string
}

// Client talks to the provisioning API. It holds no mutable state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	accessCode string
	timeout    time.Duration
	http       *http.Client
	newTxID    func() string
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessCode) == "" {
		return nil, fmt.Errorf("%w: access code is required", ErrInvalidArgument)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(httpclient.Options{Timeout: timeout})
	}
	newTxID := cfg.NewTransactionID
	if newTxID == nil {
		newTxID = NewTransactionID
	}
	return &Client{
		baseURL:    base,
		accessCode: cfg.AccessCode,
		timeout:    timeout,
		http:       hc,
		newTxID:    newTxID,
	}, nil
}

// NewTransactionID returns a fresh order idempotency token such as "WWS-1a2b3c4d".
func NewTransactionID() string {
	return transactionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ListPackages returns the packages available for a location code.
func (c *Client) ListPackages(ctx context.Context, locationCode string) ([]Package, error) {
	locationCode = strings.TrimSpace(locationCode)
	if locationCode == "" {
		return nil, fmt.Errorf("%w: empty location code", ErrInvalidArgument)
	}
	start := time.Now()
	var obj packageListObj
	err := post(ctx, c, "package.list", "/package/list", packageListRequest{LocationCode: locationCode}, &obj)
	c.logCall(ctx, "package.list", start, len(obj.PackageList), err,
		slog.String("location_code", locationCode),
	)
	if err != nil {
		return nil, err
	}
	return obj.PackageList, nil
}

// PlaceOrder orders count units of a package. Every call carries a new
// transaction id so a retry is never rejected as a duplicate.
func (c *Client) PlaceOrder(ctx context.Context, packageCode string, price int64, count int) (string, error) {
	packageCode = strings.TrimSpace(packageCode)
	if packageCode == "" {
		return "", fmt.Errorf("%w: empty package code", ErrInvalidArgument)
	}
	if count < 1 {
		count = 1
	}
	req := orderRequest{
		TransactionID:   c.newTxID(),
		Amount:          price * int64(count),
		PackageInfoList: []orderLine{{PackageCode: packageCode, Count: count, Price: price}},
	}

	start := time.Now()
	var obj orderObj
	err := post(ctx, c, "esim.order", "/esim/order", req, &obj)
	n := 0
	if obj.OrderNo != "" {
		n = 1
	}
	c.logCall(ctx, "esim.order", start, n, err,
		slog.String("package_code", packageCode),
		slog.String("transaction_id", req.TransactionID),
		slog.String("order_no", obj.OrderNo),
	)
	if err != nil {
		return "", err
	}
	return obj.OrderNo, nil
}

// QueryOrder returns up to ten profiles of an order; empty means not provisioned yet.
func (c *Client) QueryOrder(ctx context.Context, orderNo string) ([]Profile, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, fmt.Errorf("%w: empty order number", ErrInvalidArgument)
	}
	req := queryRequest{OrderNo: orderNo, Pager: pager{PageNum: 1, PageSize: queryPageSize}}

	start := time.Now()
	var obj queryObj
	err := post(ctx, c, "esim.query", "/esim/query", req, &obj)
	c.logCall(ctx, "esim.query", start, len(obj.ESIMList), err,
		slog.String("order_no", orderNo),
	)
	if err != nil {
		return nil, err
	}
	return obj.ESIMList, nil
}

func post[T any](ctx context.Context, c *Client, op, path string, in any, out *T) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("esim: %s: encode request: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("esim: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessCodeHeader, c.accessCode)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("esim: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("esim: %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{Op: op, StatusCode: resp.StatusCode, Body: logger.SanitizeLimit(string(raw), maxErrorBody)}
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("esim: %s: decode response: %w", op, err)
	}
	if !env.Success {
		msg := env.ErrorMsg
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Op: op, Code: string(env.ErrorCode), Message: msg}
	}
	if env.Obj != nil {
		*out = *env.Obj
	}
	return nil
}

func (c *Client) logCall(ctx context.Context, op string, start time.Time, n int, err error, attrs ...slog.Attr) {
	outcome := Classify(n, err)
	level := slog.LevelInfo
	status := "ok"
	base := []slog.Attr{
		slog.String("op", op),
		slog.String("outcome", outcome.String()),
		slog.Duration("duration", time.Since(start)),
		slog.Int("items", n),
	}
	if err != nil {
		level = slog.LevelWarn
		status = "fail"
		base = append(base, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	base = append([]slog.Attr{slog.String("status", status)}, base...)
	logger.LogEvent(ctx, logger.ESIM, level, "esim.request", append(base, attrs...)...)
}
