package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vpnshop/internal/pkg/httpclient"
)

const (
	DefaultCryptomusBaseURL = "https://api.cryptomus.com/v1"

	cryptomusCurrency = "USD"
	cryptomusLifetime = 3600
)

// CryptomusGateway implements the Gateway interface for Cryptomus.
type CryptomusGateway struct {
	baseURL string
	creds   CredentialsFunc
	client  *httpclient.Client
}

func NewCryptomusGateway(baseURL string, creds CredentialsFunc) *CryptomusGateway {
	if baseURL == "" {
		baseURL = DefaultCryptomusBaseURL
	}
	return &CryptomusGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  httpclient.New().WithTimeout(30 * time.Second).WithRetryCount(0),
	}
}

func (g *CryptomusGateway) Name() string {
	return "cryptomus"
}

type cryptomusCreateRequest struct {
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	OrderID           string `json:"order_id"`
	IsPaymentMultiple bool   `json:"is_payment_multiple"`
	Lifetime          int    `json:"lifetime"`
	AdditionalData    string `json:"additional_data"`
}

type cryptomusInfoRequest struct {
	UUID string `json:"uuid"`
}

type cryptomusEnvelope struct {
	State   *int            `json:"state"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type cryptomusPayment struct {
	UUID          string          `json:"uuid"`
	OrderID       string          `json:"order_id"`
	URL           string          `json:"url"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	AmountPaidUSD json.RawMessage `json:"amount_paid_usd"`
	AmountUSD     json.RawMessage `json:"amount_usd"`
	Amount        json.RawMessage `json:"amount"`
}

func (g *CryptomusGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, orderID string, planID int) (*PaymentResult, error) {
	extra, err := json.Marshal(map[string]interface{}{
		"plan_gb":    planID,
		"payment_id": orderID,
	})
	if err != nil {
		return nil, err
	}
	req := cryptomusCreateRequest{
		Amount:            amount.String(),
		Currency:          cryptomusCurrency,
		OrderID:           orderID,
		IsPaymentMultiple: false,
		Lifetime:          cryptomusLifetime,
		AdditionalData:    string(extra),
	}

	raw, err := g.call(ctx, "/payment", req)
	if err != nil {
		return nil, fmt.Errorf("cryptomus create payment failed: %w", err)
	}

	var p cryptomusPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("cryptomus parse error: %w", err)
	}
	if p.UUID == "" || p.URL == "" {
		return nil, fmt.Errorf("cryptomus create payment: response missing uuid or url")
	}

	return &PaymentResult{
		PaymentID:  p.UUID,
		OrderID:    orderID,
		PaymentURL: p.URL,
		Amount:     amount,
	}, nil
}

// PaymentStatus queries /payment/info. A reply without a recognizable status
// is reported as pending so the caller keeps polling.
func (g *CryptomusGateway) PaymentStatus(ctx context.Context, paymentID string) (*StatusResult, error) {
	raw, err := g.call(ctx, "/payment/info", cryptomusInfoRequest{UUID: paymentID})
	if err != nil {
		return nil, fmt.Errorf("cryptomus payment info failed: %w", err)
	}

	var p cryptomusPayment
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return &StatusResult{Status: RemotePending}, nil
	}

	rawStatus := p.PaymentStatus
	if rawStatus == "" {
		rawStatus = p.Status
	}
	res := &StatusResult{
		Status:    normalizeStatus(rawStatus),
		RawStatus: rawStatus,
	}
	res.AmountPaid = parseAmount(p.AmountPaidUSD)
	res.AmountRequired = parseAmount(p.AmountUSD)
	if res.AmountRequired == nil {
		res.AmountRequired = parseAmount(p.Amount)
	}
	return res, nil
}

// call signs and posts body, returning the envelope's result payload.
func (g *CryptomusGateway) call(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	creds, err := g.creds(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !creds.Configured() {
		return nil, ErrCredentialsMissing
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"merchant": creds.MerchantID,
		"sign":     Sign(payload, creds.APIKey),
	}

	resp, err := g.client.Post(ctx, g.baseURL+path, payload, headers)
	if err != nil {
		return nil, err
	}
	if err := httpclient.Expect2xx(resp); err != nil {
		return nil, err
	}

	var env cryptomusEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		// A 2xx with a garbled body is treated as an empty result.
		return nil, nil
	}
	if env.State != nil && *env.State != 0 {
		return nil, fmt.Errorf("cryptomus state %d: %s", *env.State, env.Message)
	}
	return env.Result, nil
}

func normalizeStatus(s string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "paid_over":
		return RemotePaid
	case "expired":
		return RemoteExpired
	default:
		return RemotePending
	}
}

// parseAmount accepts "10.00", 10, null or "" and returns nil when absent
// or unparseable.
func parseAmount(raw json.RawMessage) *decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
