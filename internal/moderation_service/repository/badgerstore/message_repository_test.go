package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
	"github.com/shawnbeckett/sms-led-display/internal/platform/database"
)

func newTestDB(t *testing.T) (*badger.DB, *slog.Logger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.OpenBadger("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, logger
}

func newTestMessageRepo(t *testing.T) *MessageRepository {
	db, logger := newTestDB(t)
	return NewMessageRepository(db, logger)
}

func TestMessageRepository_CreateAndGet(t *testing.T) {
	repo := newTestMessageRepo(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	m, err := repo.Create(ctx, domain.NewMessage{
		ID:            "SM1",
		Body:          "  hello sign  ",
		SourceAddress: "+15550001111",
		Advisory:      &domain.Advisory{Decision: domain.DecisionAllow},
		CreatedAt:     created,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello sign", m.Body)
	assert.Equal(t, domain.StatusPending, m.Status)
	assert.Equal(t, created, m.CreatedAt)

	got, err := repo.GetByID(ctx, "SM1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = repo.Create(ctx, domain.NewMessage{ID: "SM1", Body: "redelivered"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	generated, err := repo.Create(ctx, domain.NewMessage{Body: "no id"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	_, err = repo.Create(ctx, domain.NewMessage{Body: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepository_ListByStatusOrdersByCreation(t *testing.T) {
	repo := newTestMessageRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, tc := range []struct {
		id     string
		offset time.Duration
	}{{"c", 3 * time.Second}, {"a", time.Second}, {"b", 2 * time.Second}, {"d", 4 * time.Second}} {
		_, err := repo.Create(ctx, domain.NewMessage{ID: tc.id, Body: "msg " + tc.id, CreatedAt: base.Add(tc.offset)})
		require.NoError(t, err)
	}
	_, err := repo.Transition(ctx, "d", domain.StatusPending, domain.StatusApproved, domain.TransitionFields{})
	require.NoError(t, err)
	_, err = repo.Transition(ctx, "a", domain.StatusPending, domain.StatusApproved, domain.TransitionFields{})
	require.NoError(t, err)
	_, err = repo.Transition(ctx, "a", domain.StatusApproved, domain.StatusLive, domain.TransitionFields{})
	require.NoError(t, err)

	pending, err := repo.ListByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(pending))

	display, err := repo.ListByStatus(ctx, domain.StatusApproved, domain.StatusLive)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, ids(display))

	none, err := repo.ListByStatus(ctx, domain.StatusExpired)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMessageRepository_IDsContainingColons(t *testing.T) {
	repo := newTestMessageRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	for i, id := range []string{"ok-1", "carrier:123", "a:b:c:"} {
		_, err := repo.Create(ctx, domain.NewMessage{ID: id, Body: "msg", CreatedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	pending, err := repo.ListByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok-1", "carrier:123", "a:b:c:"}, ids(pending))

	_, err = repo.Transition(ctx, "carrier:123", domain.StatusPending, domain.StatusApproved, domain.TransitionFields{})
	require.NoError(t, err)
	approved, err := repo.ListByStatus(ctx, domain.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{"carrier:123"}, ids(approved))
}

func TestMessageRepository_Transition(t *testing.T) {
	repo := newTestMessageRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	_, err := repo.Create(ctx, domain.NewMessage{ID: "m1", Body: "hi", CreatedAt: t0})
	require.NoError(t, err)

	_, err = repo.Transition(ctx, "m1", domain.StatusApproved, domain.StatusLive, domain.TransitionFields{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = repo.Transition(ctx, "nope", domain.StatusPending, domain.StatusApproved, domain.TransitionFields{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Transition(ctx, "m1", domain.StatusPending, domain.StatusPlayed, domain.TransitionFields{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.Transition(ctx, "m1", domain.StatusPending, domain.StatusApproved, domain.TransitionFields{At: t0.Add(time.Second)})
	require.NoError(t, err)

	played := t0.Add(time.Minute)
	expires := played.Add(120 * time.Second)
	m, err := repo.Transition(ctx, "m1", domain.StatusApproved, domain.StatusPlayed,
		domain.TransitionFields{PlayedAt: &played, ExpiresAt: &expires, At: played})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlayed, m.Status)
	assert.Equal(t, played, *m.PlayedAt)
	assert.Equal(t, expires, *m.ExpiresAt)

	m, err = repo.Transition(ctx, "m1", domain.StatusPlayed, domain.StatusExpired, domain.TransitionFields{At: expires})
	require.NoError(t, err)
	assert.Equal(t, expires, *m.ExpiresAt, "expiry keeps the stamps of the play transition")

	// The index follows the status.
	approved, err := repo.ListByStatus(ctx, domain.StatusApproved, domain.StatusPlayed)
	require.NoError(t, err)
	assert.Empty(t, approved)
	expired, err := repo.ListByStatus(ctx, domain.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(expired))
}

func TestMessageRepository_ConcurrentTransitionSingleWinner(t *testing.T) {
	repo := newTestMessageRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, domain.NewMessage{ID: "race", Body: "who wins"})
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := domain.StatusApproved
			var fields domain.TransitionFields
			if i%2 == 1 {
				next = domain.StatusRejected
				reason := fmt.Sprintf("worker %d", i)
				fields.RejectionReason = &reason
			}
			_, err := repo.Transition(ctx, "race", domain.StatusPending, next, fields)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var applied, conflicts int
	for err := range results {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, workers-1, conflicts)

	m, err := repo.GetByID(ctx, "race")
	require.NoError(t, err)
	assert.Contains(t, []domain.Status{domain.StatusApproved, domain.StatusRejected}, m.Status)
	if m.Status == domain.StatusApproved {
		assert.Nil(t, m.RejectionReason, "a losing reject must not leave its reason behind")
	}

	pending, err := repo.ListByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func ids(messages []*domain.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
