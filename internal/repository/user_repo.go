package repository

import (
	"context"
	"strconv"
	"time"
)

const (
	languagesFile   = "user_languages.json"
	testConfigsFile = "test_configs.json"
)

type testConfigUse struct {
	UsedAt time.Time `json:"used_at"`
}

// UserRepository stores per-user preferences and one-time entitlements.
type UserRepository struct {
	languages   *jsonFile
	testConfigs *jsonFile
	now         func() time.Time
}

func NewUserRepository(dataDir string) *UserRepository {
	return &UserRepository{
		languages:   newJSONFile(dataPath(dataDir, languagesFile)),
		testConfigs: newJSONFile(dataPath(dataDir, testConfigsFile)),
		now:         time.Now,
	}
}

// Language returns the user's language code, "" if never chosen.
func (r *UserRepository) Language(ctx context.Context, userID int64) (string, error) {
	langs := map[string]string{}
	if err := r.languages.load(ctx, &langs); err != nil {
		return "", err
	}
	return langs[strconv.FormatInt(userID, 10)], nil
}

func (r *UserRepository) SetLanguage(ctx context.Context, userID int64, code string) error {
	return r.languages.withLock(ctx, func() error {
		langs := map[string]string{}
		if err := r.languages.read(&langs); err != nil {
			return err
		}
		langs[strconv.FormatInt(userID, 10)] = code
		return r.languages.write(langs)
	})
}

// ClaimTestConfig marks the test account as used. It returns false when the
// user had already claimed one.
func (r *UserRepository) ClaimTestConfig(ctx context.Context, userID int64) (bool, error) {
	claimed := false
	err := r.testConfigs.withLock(ctx, func() error {
		used := map[string]testConfigUse{}
		if err := r.testConfigs.read(&used); err != nil {
			return err
		}
		key := strconv.FormatInt(userID, 10)
		if _, ok := used[key]; ok {
			return nil
		}
		used[key] = testConfigUse{UsedAt: r.now().UTC()}
		claimed = true
		return r.testConfigs.write(used)
	})
	return claimed, err
}

// ReleaseTestConfig undoes a claim whose provisioning failed.
func (r *UserRepository) ReleaseTestConfig(ctx context.Context, userID int64) error {
	return r.testConfigs.withLock(ctx, func() error {
		used := map[string]testConfigUse{}
		if err := r.testConfigs.read(&used); err != nil {
			return err
		}
		delete(used, strconv.FormatInt(userID, 10))
		return r.testConfigs.write(used)
	})
}
