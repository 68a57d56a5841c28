package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

const messageColumns = `pk, body, from_number, provider, status, rejection_reason, advisory, played_at, expires_at, created_at, updated_at`

type PgMessageRepository struct {
	db     Querier
	logger *slog.Logger
	now    func() time.Time
}

func NewPgMessageRepository(db Querier, logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{
		db:     db,
		logger: logger.With("component", "message_repository_pg"),
		now:    time.Now,
	}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var status string
	var advisory []byte
	err := row.Scan(
		&m.ID, &m.Body, &m.SourceAddress, &m.Provider, &status, &m.RejectionReason,
		&advisory, &m.PlayedAt, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Status, err = domain.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("message %s has corrupt status: %v", m.ID, err)
	}
	if len(advisory) > 0 {
		m.Advisory = &domain.Advisory{}
		if err := json.Unmarshal(advisory, m.Advisory); err != nil {
			return nil, fmt.Errorf("decoding advisory of message %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func (r *PgMessageRepository) Create(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().Round(0)
	}
	createdAt = createdAt.UTC()

	var advisory []byte
	if msg.Advisory != nil {
		var err error
		if advisory, err = json.Marshal(msg.Advisory); err != nil {
			return nil, fmt.Errorf("encoding advisory: %w", err)
		}
	}

	query := `
		INSERT INTO messages (pk, body, from_number, provider, status, advisory, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (pk) DO NOTHING
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query,
		msg.ID, msg.Body, msg.SourceAddress, msg.Provider, string(domain.StatusPending), advisory, createdAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "Message already exists", "message_id", msg.ID)
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, msg.ID)
		}
		r.logger.ErrorContext(ctx, "Error creating message", "error", err, "message_id", msg.ID)
		return nil, fmt.Errorf("%w: creating message: %w", domain.ErrStore, err)
	}
	r.logger.InfoContext(ctx, "Message created", "message_id", m.ID)
	return m, nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE pk = $1`
	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		r.logger.ErrorContext(ctx, "Error getting message by ID", "error", err, "message_id", id)
		return nil, fmt.Errorf("%w: getting message: %w", domain.ErrStore, err)
	}
	return m, nil
}

func (r *PgMessageRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Message, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE status = ANY($1) ORDER BY created_at ASC, pk ASC`

	rows, err := r.db.Query(ctx, query, names)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing messages", "error", err, "statuses", names)
		return nil, fmt.Errorf("%w: listing messages: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning message row", "error", err)
			return nil, fmt.Errorf("%w: scanning message: %w", domain.ErrStore, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error after iterating message rows", "error", err)
		return nil, fmt.Errorf("%w: iterating messages: %w", domain.ErrStore, err)
	}
	return messages, nil
}

// Transition is a single conditional UPDATE. The COALESCEs keep played_at and
// expires_at from ever being overwritten once set.
func (r *PgMessageRepository) Transition(ctx context.Context, id string, expected, next domain.Status, fields domain.TransitionFields) (*domain.Message, error) {
	if err := domain.CheckTransition(expected, next, fields); err != nil {
		return nil, err
	}
	at := fields.At
	if at.IsZero() {
		at = r.now()
	}

	var reason *string
	var playedAt, expiresAt *time.Time
	switch next {
	case domain.StatusRejected:
		reason = fields.RejectionReason
	case domain.StatusPlayed:
		p, e := fields.PlayedAt.UTC(), fields.ExpiresAt.UTC()
		playedAt, expiresAt = &p, &e
	}

	query := `
		UPDATE messages
		SET status = $3,
			rejection_reason = COALESCE($4, rejection_reason),
			played_at = COALESCE(played_at, $5),
			expires_at = COALESCE(expires_at, $6),
			updated_at = $7
		WHERE pk = $1 AND status = $2
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query,
		id, string(expected), string(next), reason, playedAt, expiresAt, at.UTC(),
	))
	if err == nil {
		r.logger.InfoContext(ctx, "Message transitioned", "message_id", id, "from", expected, "to", next)
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.ErrorContext(ctx, "Error transitioning message", "error", err, "message_id", id)
		return nil, fmt.Errorf("%w: transitioning message: %w", domain.ErrStore, err)
	}

	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM messages WHERE pk = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: probing message status: %w", domain.ErrStore, err)
	}
	r.logger.DebugContext(ctx, "Message transition lost race", "message_id", id, "expected", expected, "current", current)
	return nil, fmt.Errorf("%w: message %s is %s, expected %s", domain.ErrConflict, id, current, expected)
}
