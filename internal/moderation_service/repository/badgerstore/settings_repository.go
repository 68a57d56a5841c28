package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

var settingsKey = []byte("settings:" + domain.SettingsID)

type SettingsRepository struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSettingsRepository(db *badger.DB, logger *slog.Logger) *SettingsRepository {
	return &SettingsRepository{db: db, logger: logger.With("component", "settings_repository_badger"), now: time.Now}
}

func readSettings(txn *badger.Txn) (*domain.Settings, error) {
	item, err := txn.Get(settingsKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	s := domain.DefaultSettings()
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, s) }); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (r *SettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	var s *domain.Settings
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		s, err = readSettings(txn)
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error reading settings", "error", err)
		return nil, storeErr("reading settings", err)
	}
	return s, nil
}

// Merge reads, applies and writes in one transaction. Two concurrent merges conflict at
// commit and the loser re-applies its patch on top of the winner's record.
func (r *SettingsRepository) Merge(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var merged *domain.Settings
	err := update(ctx, r.db, r.logger, func(txn *badger.Txn) error {
		current, err := readSettings(txn)
		if err != nil {
			return err
		}
		merged = patch.Apply(current)
		merged.Version = current.Version + 1
		merged.UpdatedAt = r.now().UTC().Round(0)
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return txn.Set(settingsKey, data)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error writing settings", "error", err)
		return nil, storeErr("writing settings", err)
	}
	r.logger.InfoContext(ctx, "Settings updated", "version", merged.Version)
	return merged, nil
}
