// Package carrier is a client for the GHN shipping API.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	DefaultBaseURL       = "https://dev-online-gateway.ghn.vn/shiip/public-api/v2"
	defaultServiceTypeID = 2
	defaultTimeout       = 10 * time.Second
	maxResponseBytes     = 1 << 20

	// Parcel dimensions in centimetres used for every quote and shipment.
	PackageLength = 20
	PackageWidth  = 10
	PackageHeight = 10

	requiredNote = "KHONGCHOXEMHANG"

	paymentTypeShopPays  = 1
	paymentTypeBuyerPays = 2

	pathFee      = "/shipping-order/fee"
	pathCreate   = "/shipping-order/create"
	pathDetail   = "/shipping-order/detail"
	pathCancel   = "/switch-status/cancel"
	successCode  = 200
	headerToken  = "Token"
	headerShopID = "ShopId"
)

var (
	ErrMissingCredentials = errors.New("carrier token and shop id are required")
	ErrMissingOrderCode   = errors.New("carrier response did not include an order code")
)

// APIError is returned when the carrier answers with a non-success envelope.
type APIError struct {
	Operation  string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("carrier %s failed (http %d, code %d): %s", e.Operation, e.StatusCode, e.Code, e.Message)
}

// Origin is the shop's pickup location.
type Origin struct {
	Name       string
	Phone      string
	Address    string
	DistrictID int
	WardCode   string
}

type Config struct {
	BaseURL       string
	Token         string
	ShopID        string
	Origin        Origin
	ServiceTypeID int
	Timeout       time.Duration
}

type Client struct {
	baseURL       string
	token         string
	shopID        string
	origin        Origin
	serviceTypeID int
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ShopID) == "" {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	serviceTypeID := cfg.ServiceTypeID
	if serviceTypeID <= 0 {
		serviceTypeID = defaultServiceTypeID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:       baseURL,
		token:         cfg.Token,
		shopID:        cfg.ShopID,
		origin:        cfg.Origin,
		serviceTypeID: serviceTypeID,
		httpClient:    observability.NewHTTPClient(timeout, baseURL),
		logger:        logger,
	}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, operation, path string, payload any, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		observability.RecordCarrierCall(ctx, operation, outcome, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal carrier %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create carrier %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerToken, c.token)
	req.Header.Set(headerShopID, c.shopID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier %s request failed: %w", operation, err)
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("failed to read carrier %s response: %w", operation, readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close carrier %s response body: %w", operation, closeErr)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("failed to decode carrier %s response: %w", operation, err)
	}
	if resp.StatusCode != http.StatusOK || env.Code != successCode {
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode carrier %s data: %w", operation, err)
	}
	return nil
}
