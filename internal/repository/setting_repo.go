package repository

import (
	"context"
	"strings"
	"sync"
)

const (
	testModeFile        = "test_mode.json"
	supportFile         = "support_info.json"
	paymentSettingsFile = "payment_settings.json"
)

const DefaultSupportText = "For support, please contact the administrator."

type testModeDoc struct {
	Enabled bool `json:"enabled"`
}

type supportDoc struct {
	Text string `json:"text"`
}

// PaymentCredentials are gateway credentials set from the admin menu. They
// take precedence over the environment when both are present.
type PaymentCredentials struct {
	MerchantID string `json:"merchant_id"`
	APIKey     string `json:"api_key"`
}

// Configured reports whether both values are set.
func (c PaymentCredentials) Configured() bool {
	return strings.TrimSpace(c.MerchantID) != "" && strings.TrimSpace(c.APIKey) != ""
}

// SettingRepository handles bot-wide settings stored as small JSON files.
// The test-mode flag is cached and refreshed on every write.
type SettingRepository struct {
	testMode *jsonFile
	support  *jsonFile
	payment  *jsonFile

	mu           sync.RWMutex
	testModeOn   bool
	testModeRead bool
}

func NewSettingRepository(dataDir string) *SettingRepository {
	return &SettingRepository{
		testMode: newJSONFile(dataPath(dataDir, testModeFile)),
		support:  newJSONFile(dataPath(dataDir, supportFile)),
		payment:  newJSONFile(dataPath(dataDir, paymentSettingsFile)),
	}
}

// --- Test mode ---

// TestMode reports whether payments bypass the gateway.
func (r *SettingRepository) TestMode(ctx context.Context) (bool, error) {
	r.mu.RLock()
	if r.testModeRead {
		on := r.testModeOn
		r.mu.RUnlock()
		return on, nil
	}
	r.mu.RUnlock()

	var doc testModeDoc
	if err := r.testMode.load(ctx, &doc); err != nil {
		return false, err
	}
	r.mu.Lock()
	r.testModeOn = doc.Enabled
	r.testModeRead = true
	r.mu.Unlock()
	return doc.Enabled, nil
}

// SetTestMode persists the flag and refreshes the cache.
func (r *SettingRepository) SetTestMode(ctx context.Context, enabled bool) error {
	if err := r.testMode.save(ctx, testModeDoc{Enabled: enabled}); err != nil {
		return err
	}
	r.mu.Lock()
	r.testModeOn = enabled
	r.testModeRead = true
	r.mu.Unlock()
	return nil
}

// ToggleTestMode flips the flag and returns the new value.
func (r *SettingRepository) ToggleTestMode(ctx context.Context) (bool, error) {
	var next bool
	err := r.testMode.withLock(ctx, func() error {
		var doc testModeDoc
		if err := r.testMode.read(&doc); err != nil {
			return err
		}
		next = !doc.Enabled
		return r.testMode.write(testModeDoc{Enabled: next})
	})
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.testModeOn = next
	r.testModeRead = true
	r.mu.Unlock()
	return next, nil
}

// --- Support ---

// SupportText returns the support message, or the default when unset.
func (r *SettingRepository) SupportText(ctx context.Context) (string, error) {
	var doc supportDoc
	if err := r.support.load(ctx, &doc); err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return DefaultSupportText, nil
	}
	return doc.Text, nil
}

func (r *SettingRepository) SetSupportText(ctx context.Context, text string) error {
	return r.support.save(ctx, supportDoc{Text: strings.TrimSpace(text)})
}

// --- Payment credentials ---

// PaymentCredentials returns the stored gateway credentials, zero if unset.
func (r *SettingRepository) PaymentCredentials(ctx context.Context) (PaymentCredentials, error) {
	var creds PaymentCredentials
	if err := r.payment.load(ctx, &creds); err != nil {
		return PaymentCredentials{}, err
	}
	return creds, nil
}

func (r *SettingRepository) SetPaymentCredentials(ctx context.Context, creds PaymentCredentials) error {
	creds.MerchantID = strings.TrimSpace(creds.MerchantID)
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	return r.payment.save(ctx, creds)
}
