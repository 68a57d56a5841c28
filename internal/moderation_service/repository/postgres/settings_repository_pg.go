package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

const settingsColumns = `moderation_mode, profanity_mode, max_message_length, hard_banned_words, soft_banned_words,
	scroll_behavior, display_mode, message_lifespan_seconds, screen_muted, version, updated_at`

type PgSettingsRepository struct {
	db     Querier
	logger *slog.Logger
	now    func() time.Time
}

func NewPgSettingsRepository(db Querier, logger *slog.Logger) *PgSettingsRepository {
	return &PgSettingsRepository{
		db:     db,
		logger: logger.With("component", "settings_repository_pg"),
		now:    time.Now,
	}
}

func scanSettings(row pgx.Row) (*domain.Settings, error) {
	s := &domain.Settings{}
	var moderation, profanity, scroll, display string
	err := row.Scan(
		&moderation, &profanity, &s.MaxMessageLength, &s.HardBannedWords, &s.SoftBannedWords,
		&scroll, &display, &s.MessageLifespanSeconds, &s.ScreenMuted, &s.Version, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ModerationMode = domain.ModerationMode(moderation)
	s.ProfanityMode = domain.ProfanityMode(profanity)
	s.ScrollBehavior = domain.ScrollBehavior(scroll)
	s.DisplayMode = domain.DisplayMode(display)
	if s.HardBannedWords == nil {
		s.HardBannedWords = []string{}
	}
	if s.SoftBannedWords == nil {
		s.SoftBannedWords = []string{}
	}
	return s, nil
}

func (r *PgSettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	query := `SELECT ` + settingsColumns + ` FROM moderation_settings WHERE config_id = $1`
	s, err := scanSettings(r.db.QueryRow(ctx, query, domain.SettingsID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		r.logger.ErrorContext(ctx, "Error reading settings", "error", err)
		return nil, fmt.Errorf("%w: reading settings: %w", domain.ErrStore, err)
	}
	return s, nil
}

// Merge seeds the default row if missing, locks it with FOR UPDATE, applies patch and
// writes it back, all in one transaction. Seeding first means concurrent first writes
// serialise on the row lock instead of overwriting each other's fields.
func (r *PgSettingsRepository) Merge(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error starting settings transaction", "error", err)
		return nil, fmt.Errorf("%w: starting transaction: %w", domain.ErrStore, err)
	}

	if err := r.seedDefaults(ctx, tx); err != nil {
		r.rollback(ctx, tx)
		r.logger.ErrorContext(ctx, "Error seeding settings row", "error", err)
		return nil, fmt.Errorf("%w: seeding settings: %w", domain.ErrStore, err)
	}

	query := `SELECT ` + settingsColumns + ` FROM moderation_settings WHERE config_id = $1 FOR UPDATE`
	current, err := scanSettings(tx.QueryRow(ctx, query, domain.SettingsID))
	if err != nil {
		r.rollback(ctx, tx)
		r.logger.ErrorContext(ctx, "Error locking settings row", "error", err)
		return nil, fmt.Errorf("%w: reading settings: %w", domain.ErrStore, err)
	}

	merged := patch.Apply(current)
	merged.Version = current.Version + 1
	merged.UpdatedAt = r.now().UTC().Round(0)

	update := `
		UPDATE moderation_settings SET
			moderation_mode = $2,
			profanity_mode = $3,
			max_message_length = $4,
			hard_banned_words = $5,
			soft_banned_words = $6,
			scroll_behavior = $7,
			display_mode = $8,
			message_lifespan_seconds = $9,
			screen_muted = $10,
			version = $11,
			updated_at = $12
		WHERE config_id = $1`
	_, err = tx.Exec(ctx, update,
		domain.SettingsID, string(merged.ModerationMode), string(merged.ProfanityMode), merged.MaxMessageLength,
		merged.HardBannedWords, merged.SoftBannedWords, string(merged.ScrollBehavior), string(merged.DisplayMode),
		merged.MessageLifespanSeconds, merged.ScreenMuted, merged.Version, merged.UpdatedAt,
	)
	if err != nil {
		r.rollback(ctx, tx)
		r.logger.ErrorContext(ctx, "Error writing settings", "error", err)
		return nil, fmt.Errorf("%w: writing settings: %w", domain.ErrStore, err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Error committing settings", "error", err)
		return nil, fmt.Errorf("%w: committing settings: %w", domain.ErrStore, err)
	}
	r.logger.InfoContext(ctx, "Settings updated", "version", merged.Version)
	return merged, nil
}

// seedDefaults inserts the default record at version 0 unless a row exists. A concurrent
// seeder blocks on the primary key until the first commits, then does nothing.
func (r *PgSettingsRepository) seedDefaults(ctx context.Context, tx pgx.Tx) error {
	d := domain.DefaultSettings()
	insert := `
		INSERT INTO moderation_settings (config_id, moderation_mode, profanity_mode, max_message_length,
			hard_banned_words, soft_banned_words, scroll_behavior, display_mode, message_lifespan_seconds,
			screen_muted, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (config_id) DO NOTHING`
	_, err := tx.Exec(ctx, insert,
		domain.SettingsID, string(d.ModerationMode), string(d.ProfanityMode), d.MaxMessageLength,
		d.HardBannedWords, d.SoftBannedWords, string(d.ScrollBehavior), string(d.DisplayMode),
		d.MessageLifespanSeconds, d.ScreenMuted, d.Version, r.now().UTC().Round(0),
	)
	return err
}

func (r *PgSettingsRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.WarnContext(ctx, "Settings transaction rollback failed", "error", err)
	}
}
