package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultAPIURL = "https://api.telegram.org"

// BotAPI is a thin Bot API client for jobs that run outside the update loop,
// such as scheduled admin reports.
type BotAPI struct {
	client *resty.Client
}

// NewBotAPI creates a client for the public Bot API endpoint.
func NewBotAPI(token string) *BotAPI {
	return NewBotAPIWithURL(defaultAPIURL, token)
}

// NewBotAPIWithURL targets a self-hosted Bot API server.
func NewBotAPIWithURL(apiURL, token string) *BotAPI {
	return &BotAPI{
		client: resty.New().
			SetBaseURL(apiURL + "/bot" + token).
			SetTimeout(30 * time.Second),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

// APIError is a reply with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Call makes a raw API call and returns the result payload.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	return decode(method, resp.Body())
}

// SendMessage sends an HTML text message.
func (b *BotAPI) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.Call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	return err
}

// SendDocument uploads data as a file.
func (b *BotAPI) SendDocument(ctx context.Context, chatID int64, data []byte, filename, caption string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetFileReader("document", filename, bytes.NewReader(data)).
		SetFormData(map[string]string{
			"chat_id":    strconv.FormatInt(chatID, 10),
			"caption":    caption,
			"parse_mode": "HTML",
		}).
		Post("/sendDocument")
	if err != nil {
		return fmt.Errorf("telegram API call sendDocument failed: %w", err)
	}
	_, err = decode("sendDocument", resp.Body())
	return err
}

func decode(method string, body []byte) (json.RawMessage, error) {
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !r.OK {
		return nil, &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
	}
	return r.Result, nil
}

// Webhook deliveries come from these ranges.
var telegramNets = mustParseCIDRs("149.154.160.0/20", "91.108.4.0/22")

// CheckTelegramIP reports whether ip belongs to Telegram's webhook ranges.
func CheckTelegramIP(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, n := range telegramNets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
