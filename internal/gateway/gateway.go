// Package gateway builds VNPay payment redirects and verifies their callbacks.
package gateway

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/crypto"
)

const (
	DefaultPaymentURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"

	version     = "2.1.0"
	commandPay  = "pay"
	currencyVND = "VND"
	orderType   = "other"
	dateLayout  = "20060102150405"

	// ResponseSuccess is the only response code that means the payment settled.
	ResponseSuccess = "00"

	paramVersion           = "vnp_Version"
	paramCommand           = "vnp_Command"
	paramTmnCode           = "vnp_TmnCode"
	paramLocale            = "vnp_Locale"
	paramCurrCode          = "vnp_CurrCode"
	paramTxnRef            = "vnp_TxnRef"
	paramOrderInfo         = "vnp_OrderInfo"
	paramOrderType         = "vnp_OrderType"
	paramAmount            = "vnp_Amount"
	paramReturnURL         = "vnp_ReturnUrl"
	paramIPAddr            = "vnp_IpAddr"
	paramCreateDate        = "vnp_CreateDate"
	paramExpireDate        = "vnp_ExpireDate"
	paramResponseCode      = "vnp_ResponseCode"
	paramTransactionNo     = "vnp_TransactionNo"
	paramTransactionStatus = "vnp_TransactionStatus"
	paramBankCode          = "vnp_BankCode"
	paramPayDate           = "vnp_PayDate"
)

var (
	ErrMissingSignature  = errors.New("callback is missing a signature")
	ErrInvalidSignature  = errors.New("callback signature is invalid")
	ErrMalformedCallback = errors.New("callback is malformed")
	ErrInvalidAmount     = errors.New("payment amount must be positive")
)

type Config struct {
	PaymentURL string
	TmnCode    string
	HashSecret string
	ReturnURL  string
	Locale     string
	Location   *time.Location
	// ExpireAfter adds vnp_ExpireDate when positive.
	ExpireAfter time.Duration
}

type Gateway struct {
	paymentURL  string
	tmnCode     string
	returnURL   string
	locale      string
	location    *time.Location
	expireAfter time.Duration
	signer      *crypto.Signer
	now         func() time.Time
}

func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.TmnCode) == "" {
		return nil, fmt.Errorf("gateway merchant code is required")
	}
	if strings.TrimSpace(cfg.ReturnURL) == "" {
		return nil, fmt.Errorf("gateway return url is required")
	}
	signer, err := crypto.NewSigner(cfg.HashSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway signer: %w", err)
	}

	paymentURL := strings.TrimSpace(cfg.PaymentURL)
	if paymentURL == "" {
		paymentURL = DefaultPaymentURL
	}
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		locale = "vn"
	}
	location := cfg.Location
	if location == nil {
		location = time.FixedZone("ICT", 7*60*60)
	}

	return &Gateway{
		paymentURL:  paymentURL,
		tmnCode:     cfg.TmnCode,
		returnURL:   cfg.ReturnURL,
		locale:      locale,
		location:    location,
		expireAfter: cfg.ExpireAfter,
		signer:      signer,
		now:         time.Now,
	}, nil
}

type PaymentRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	ClientIP  string
}

// BuildPaymentURL returns the signed redirect for a payment attempt.
func (g *Gateway) BuildPaymentURL(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", fmt.Errorf("transaction reference is required")
	}
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}

	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "Thanh toan cho ma GD:" + req.TxnRef
	}

	now := g.now().In(g.location)
	params := map[string]string{
		paramVersion:    version,
		paramCommand:    commandPay,
		paramTmnCode:    g.tmnCode,
		paramLocale:     g.locale,
		paramCurrCode:   currencyVND,
		paramTxnRef:     req.TxnRef,
		paramOrderInfo:  orderInfo,
		paramOrderType:  orderType,
		paramAmount:     strconv.FormatInt(req.Amount*100, 10),
		paramReturnURL:  g.returnURL,
		paramIPAddr:     clientIP,
		paramCreateDate: now.Format(dateLayout),
	}
	if g.expireAfter > 0 {
		params[paramExpireDate] = now.Add(g.expireAfter).Format(dateLayout)
	}

	return g.paymentURL + "?" + g.signer.SignedQuery(params), nil
}

// Callback is a verified return or IPN notification.
type Callback struct {
	TxnRef            string
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	PayDate           string
	// Amount is in VND. HasAmount is false when the gateway omitted it.
	Amount    int64
	HasAmount bool
}

func (c *Callback) Succeeded() bool {
	return c.ResponseCode == ResponseSuccess
}

// ParseCallback verifies the signature over the decoded query before reading
// any field from it.
func (g *Gateway) ParseCallback(values url.Values) (*Callback, error) {
	params := crypto.Params(values)
	signature := params[crypto.SecureHashField]
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if !g.signer.Verify(params, signature) {
		return nil, ErrInvalidSignature
	}

	callback := &Callback{
		TxnRef:            strings.TrimSpace(params[paramTxnRef]),
		ResponseCode:      strings.TrimSpace(params[paramResponseCode]),
		TransactionStatus: strings.TrimSpace(params[paramTransactionStatus]),
		TransactionNo:     strings.TrimSpace(params[paramTransactionNo]),
		BankCode:          params[paramBankCode],
		PayDate:           params[paramPayDate],
	}
	if callback.TxnRef == "" || callback.ResponseCode == "" {
		return nil, fmt.Errorf("%w: missing %s or %s", ErrMalformedCallback, paramTxnRef, paramResponseCode)
	}
	if raw := strings.TrimSpace(params[paramAmount]); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || amount < 0 || amount%100 != 0 {
			return nil, fmt.Errorf("%w: invalid %s %q", ErrMalformedCallback, paramAmount, raw)
		}
		callback.Amount = amount / 100
		callback.HasAmount = true
	}
	return callback, nil
}

// NewRetryTxnRef mints yyyyMMddHHmmss followed by six random digits.
func (g *Gateway) NewRetryTxnRef() string {
	return g.now().In(g.location).Format(dateLayout) + fmt.Sprintf("%06d", rand.IntN(1_000_000))
}
