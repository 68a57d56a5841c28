// Package badgerstore stores messages and settings in an embedded badger database.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

// maxCommitAttempts bounds retries of a transaction that badger aborted with ErrConflict.
const maxCommitAttempts = 10

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

func statusPrefix(s domain.Status) []byte {
	return []byte("idx:status:" + string(s) + ":")
}

// statusKey is "idx:status:{status}:{created_at_padded}:{id}". The 19-digit padding keeps
// a prefix scan in creation order.
func statusKey(m *domain.Message) []byte {
	return []byte(fmt.Sprintf("idx:status:%s:%019d:%s", m.Status, m.CreatedAt.UnixNano(), m.ID))
}

// idFromStatusKey cuts the id after the fixed-width timestamp; ids may contain ':'.
func idFromStatusKey(key, prefix []byte) string {
	return string(key[len(prefix)+19+1:])
}

type MessageRepository struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewMessageRepository(db *badger.DB, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger.With("component", "message_repository_badger"), now: time.Now}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

// isDomainErr reports whether err already carries one of the domain sentinels.
func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrAlreadyExists) || errors.Is(err, domain.ErrValidation)
}

func readMessage(txn *badger.Txn, id string) (*domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	m := &domain.Message{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, m)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding message %s: %w", id, err)
	}
	return m, nil
}

func writeMessage(txn *badger.Txn, m *domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding message %s: %w", m.ID, err)
	}
	if err := txn.Set(messageKey(m.ID), data); err != nil {
		return err
	}
	return txn.Set(statusKey(m), nil)
}

// update runs fn in a read-write transaction, retrying when badger reports a write conflict
// with a concurrent transaction.
func update(ctx context.Context, db *badger.DB, logger *slog.Logger, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		logger.DebugContext(ctx, "Badger transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func (r *MessageRepository) Create(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
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
	m := &domain.Message{
		ID:            msg.ID,
		Body:          msg.Body,
		SourceAddress: msg.SourceAddress,
		Provider:      msg.Provider,
		Status:        domain.StatusPending,
		Advisory:      msg.Advisory,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}

	err := update(ctx, r.db, r.logger, func(txn *badger.Txn) error {
		_, err := txn.Get(messageKey(m.ID))
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, m.ID)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return writeMessage(txn, m)
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		r.logger.ErrorContext(ctx, "Error creating message", "error", err, "message_id", m.ID)
		return nil, storeErr("creating message", err)
	}
	r.logger.InfoContext(ctx, "Message created", "message_id", m.ID)
	return m.Clone(), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var m *domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = readMessage(txn, id)
		return err
	})
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		r.logger.ErrorContext(ctx, "Error getting message by ID", "error", err, "message_id", id)
		return nil, storeErr("getting message", err)
	}
	return m, nil
}

func (r *MessageRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, status := range statuses {
			prefix := statusPrefix(status)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				m, err := readMessage(txn, idFromStatusKey(it.Item().Key(), prefix))
				if err != nil {
					return err
				}
				messages = append(messages, m)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing messages", "error", err, "statuses", statuses)
		return nil, storeErr("listing messages", err)
	}
	if len(statuses) > 1 {
		slices.SortStableFunc(messages, func(a, b *domain.Message) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	}
	return messages, nil
}

// Transition checks and writes inside one badger transaction, so the status read is the
// status replaced. A commit conflict re-runs the check against the newer state.
func (r *MessageRepository) Transition(ctx context.Context, id string, expected, next domain.Status, fields domain.TransitionFields) (*domain.Message, error) {
	if err := domain.CheckTransition(expected, next, fields); err != nil {
		return nil, err
	}
	at := fields.At
	if at.IsZero() {
		at = r.now()
	}

	var out *domain.Message
	err := update(ctx, r.db, r.logger, func(txn *badger.Txn) error {
		m, err := readMessage(txn, id)
		if err != nil {
			return err
		}
		if m.Status != expected {
			return fmt.Errorf("%w: message %s is %s, expected %s", domain.ErrConflict, id, m.Status, expected)
		}
		if err := txn.Delete(statusKey(m)); err != nil {
			return err
		}
		m.ApplyTransition(next, fields, at)
		if err := writeMessage(txn, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			r.logger.DebugContext(ctx, "Message transition lost race", "message_id", id, "expected", expected)
		}
		if isDomainErr(err) {
			return nil, err
		}
		r.logger.ErrorContext(ctx, "Error transitioning message", "error", err, "message_id", id)
		return nil, storeErr("transitioning message", err)
	}
	r.logger.InfoContext(ctx, "Message transitioned", "message_id", id, "from", expected, "to", next)
	return out.Clone(), nil
}
