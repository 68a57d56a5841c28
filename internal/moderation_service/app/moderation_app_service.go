package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/rules"
)

// DefaultRejectionReason is recorded when a moderator rejects without giving a reason.
const DefaultRejectionReason = "rejected by moderator"

// maxDecisionAttempts bounds the re-read loop after a lost race. Status only moves
// forward, so a handful of attempts always reaches a stable answer.
const maxDecisionAttempts = 5

// Outcome is the result of a mutating operation. Applied is false when the intended
// effect already held, including when a concurrent caller won the race.
type Outcome struct {
	Message *domain.Message
	Applied bool
}

// SubmitRequest is a normalized inbound message.
type SubmitRequest struct {
	// ID is the upstream message id; one is generated when empty.
	ID            string
	Body          string
	SourceAddress string
	Provider      string
}

type Option func(*ModerationAppService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ModerationAppService) { s.now = now }
}

// WithEngine replaces the default rule engine.
func WithEngine(e *rules.Engine) Option {
	return func(s *ModerationAppService) { s.engine = e }
}

// ModerationAppService enforces the message lifecycle on top of the stores.
type ModerationAppService struct {
	messages domain.MessageRepository
	settings domain.SettingsRepository
	engine   *rules.Engine
	logger   *slog.Logger
	now      func() time.Time
}

func NewModerationAppService(messages domain.MessageRepository, settings domain.SettingsRepository, logger *slog.Logger, opts ...Option) *ModerationAppService {
	s := &ModerationAppService{
		messages: messages,
		settings: settings,
		engine:   rules.NewEngine(),
		logger:   logger.With("service", "moderation"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock, UTC.
func (s *ModerationAppService) Now() time.Time {
	return s.now().UTC()
}

// Submit creates a PENDING message annotated with the rule-engine decision. Under AUTO
// moderation a REJECT decision moves it to REJECTED before returning. A redelivered id
// returns the stored message with Applied false.
func (s *ModerationAppService) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	body, err := domain.NormalizeBody(req.Body)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	decision, err := s.engine.Evaluate(body, settings)
	if err != nil {
		return nil, fmt.Errorf("evaluating message: %w", err)
	}

	applied := true
	msg, err := s.messages.Create(ctx, domain.NewMessage{
		ID:            strings.TrimSpace(req.ID),
		Body:          body,
		SourceAddress: req.SourceAddress,
		Provider:      req.Provider,
		Advisory:      decision.Advisory(body),
		CreatedAt:     s.Now(),
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		s.logger.InfoContext(ctx, "Duplicate submission ignored", "message_id", req.ID)
		applied = false
		if msg, err = s.messages.GetByID(ctx, strings.TrimSpace(req.ID)); err != nil {
			return nil, err
		}
	case err != nil:
		operationsCounter.WithLabelValues("submit", "error").Inc()
		return nil, err
	default:
		submissionsCounter.WithLabelValues(string(decision.Kind), string(settings.ModerationMode)).Inc()
	}

	// A redelivery reports the stored message as is, even if settings changed since.
	if applied && settings.ModerationMode == domain.ModerationAuto && decision.IsReject() && msg.Status == domain.StatusPending {
		fields := domain.TransitionFields{RejectionReason: lo.ToPtr(decision.Reason), At: s.Now()}
		rejected, err := s.messages.Transition(ctx, msg.ID, domain.StatusPending, domain.StatusRejected, fields)
		switch {
		case err == nil:
			transitionsCounter.WithLabelValues(string(domain.StatusPending), string(domain.StatusRejected)).Inc()
			msg, applied = rejected, true
			s.logger.InfoContext(ctx, "Message auto-rejected", "message_id", msg.ID, "reason", decision.Reason)
		case errors.Is(err, domain.ErrConflict):
			// A moderator acted first; their decision stands.
			conflictsAbsorbedCounter.WithLabelValues("submit").Inc()
			if msg, err = s.messages.GetByID(ctx, msg.ID); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "Message submitted",
		"message_id", msg.ID, "decision", decision.Kind, "status", msg.Status, "applied", applied)
	return &Outcome{Message: msg, Applied: applied}, nil
}

// step is the transition a mutation wants from the message's current status. A nil step
// means the intended effect already holds.
type step struct {
	next   domain.Status
	fields domain.TransitionFields
}

type decideFunc func(ctx context.Context, m *domain.Message, now time.Time) (*step, error)

// mutate reads the message, decides, and compare-and-swaps. A lost race is re-read and
// re-decided, so it resolves to either an applied transition or a no-op.
func (s *ModerationAppService) mutate(ctx context.Context, op, id string, decide decideFunc) (*Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: message_id is required", domain.ErrValidation)
	}

	for attempt := 1; attempt <= maxDecisionAttempts; attempt++ {
		m, err := s.messages.GetByID(ctx, id)
		if err != nil {
			operationsCounter.WithLabelValues(op, "error").Inc()
			return nil, err
		}
		now := s.Now()
		m = s.settleExpiry(ctx, m, now)

		st, err := decide(ctx, m, now)
		if err != nil {
			operationsCounter.WithLabelValues(op, "error").Inc()
			return nil, err
		}
		if st == nil {
			operationsCounter.WithLabelValues(op, "noop").Inc()
			s.logger.InfoContext(ctx, "Operation already satisfied", "operation", op, "message_id", id, "status", m.Status)
			return &Outcome{Message: m, Applied: false}, nil
		}

		st.fields.At = now
		updated, err := s.messages.Transition(ctx, id, m.Status, st.next, st.fields)
		if err == nil {
			transitionsCounter.WithLabelValues(string(m.Status), string(st.next)).Inc()
			operationsCounter.WithLabelValues(op, "applied").Inc()
			s.logger.InfoContext(ctx, "Message status changed", "operation", op, "message_id", id, "from", m.Status, "to", st.next)
			return &Outcome{Message: updated, Applied: true}, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			operationsCounter.WithLabelValues(op, "error").Inc()
			return nil, err
		}
		conflictsAbsorbedCounter.WithLabelValues(op).Inc()
		s.logger.DebugContext(ctx, "Lost transition race, re-evaluating", "operation", op, "message_id", id, "attempt", attempt)
	}

	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	operationsCounter.WithLabelValues(op, "noop").Inc()
	return &Outcome{Message: s.settleExpiry(ctx, m, s.Now()), Applied: false}, nil
}

// Approve moves PENDING to APPROVED. A REJECTED message cannot be approved back;
// statuses already past approval are a no-op.
func (s *ModerationAppService) Approve(ctx context.Context, id string) (*Outcome, error) {
	return s.mutate(ctx, "approve", id, func(_ context.Context, m *domain.Message, _ time.Time) (*step, error) {
		switch m.Status {
		case domain.StatusPending:
			return &step{next: domain.StatusApproved}, nil
		case domain.StatusRejected:
			return nil, fmt.Errorf("%w: message %s is rejected", domain.ErrInvalidState, m.ID)
		default:
			return nil, nil
		}
	})
}

// Reject moves PENDING or APPROVED to REJECTED. Rejecting a REJECTED message is a no-op;
// a message already claimed for display can no longer be rejected.
func (s *ModerationAppService) Reject(ctx context.Context, id, reason string) (*Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	return s.mutate(ctx, "reject", id, func(_ context.Context, m *domain.Message, _ time.Time) (*step, error) {
		switch m.Status {
		case domain.StatusPending, domain.StatusApproved:
			return &step{next: domain.StatusRejected, fields: domain.TransitionFields{RejectionReason: lo.ToPtr(reason)}}, nil
		case domain.StatusRejected:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: message %s is already %s", domain.ErrInvalidState, m.ID, m.Status)
		}
	})
}

// Activate moves APPROVED to LIVE when the renderer claims a message.
func (s *ModerationAppService) Activate(ctx context.Context, id string) (*Outcome, error) {
	return s.mutate(ctx, "activate", id, func(_ context.Context, m *domain.Message, _ time.Time) (*step, error) {
		switch m.Status {
		case domain.StatusApproved:
			return &step{next: domain.StatusLive}, nil
		case domain.StatusLive, domain.StatusPlayed, domain.StatusExpired:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: message %s is %s, not approved", domain.ErrInvalidState, m.ID, m.Status)
		}
	})
}

// MarkPlayed moves APPROVED or LIVE to PLAYED, stamping playedAt and an expiry computed
// from the lifespan in force at this moment.
func (s *ModerationAppService) MarkPlayed(ctx context.Context, id string) (*Outcome, error) {
	return s.mutate(ctx, "played", id, func(ctx context.Context, m *domain.Message, now time.Time) (*step, error) {
		switch m.Status {
		case domain.StatusApproved, domain.StatusLive:
			settings, err := s.settings.Get(ctx)
			if err != nil {
				return nil, err
			}
			expires := now.Add(settings.Lifespan())
			return &step{next: domain.StatusPlayed, fields: domain.TransitionFields{PlayedAt: lo.ToPtr(now), ExpiresAt: &expires}}, nil
		case domain.StatusPlayed, domain.StatusExpired:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: message %s is %s, not approved", domain.ErrInvalidState, m.ID, m.Status)
		}
	})
}

// settleExpiry persists PLAYED -> EXPIRED for a message past its expiry. The write is
// best-effort: on failure the returned copy still reads as EXPIRED.
func (s *ModerationAppService) settleExpiry(ctx context.Context, m *domain.Message, now time.Time) *domain.Message {
	if m.Status != domain.StatusPlayed || !m.IsExpiredAt(now) {
		return m
	}
	expired, err := s.messages.Transition(ctx, m.ID, domain.StatusPlayed, domain.StatusExpired, domain.TransitionFields{At: now})
	if err == nil {
		transitionsCounter.WithLabelValues(string(domain.StatusPlayed), string(domain.StatusExpired)).Inc()
		expiredCounter.WithLabelValues("read").Inc()
		return expired
	}
	if !errors.Is(err, domain.ErrConflict) {
		s.logger.WarnContext(ctx, "Failed to persist expiry", "message_id", m.ID, "error", err)
	}
	presented := m.Clone()
	presented.Status = domain.StatusExpired
	return presented
}

func (s *ModerationAppService) Get(ctx context.Context, id string) (*domain.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: message_id is required", domain.ErrValidation)
	}
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.settleExpiry(ctx, m, s.Now()), nil
}

// ListPending returns messages awaiting review, oldest first.
func (s *ModerationAppService) ListPending(ctx context.Context) ([]*domain.Message, error) {
	return s.messages.ListByStatus(ctx, domain.StatusPending)
}

// ListApproved is the display queue: APPROVED and LIVE messages, oldest first.
func (s *ModerationAppService) ListApproved(ctx context.Context) ([]*domain.Message, error) {
	return s.messages.ListByStatus(ctx, domain.StatusApproved, domain.StatusLive)
}

// ListLive returns LIVE messages and PLAYED messages that have not expired yet.
// Expired ones met on the way are persisted as such.
func (s *ModerationAppService) ListLive(ctx context.Context) ([]*domain.Message, error) {
	msgs, err := s.messages.ListByStatus(ctx, domain.StatusLive, domain.StatusPlayed)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	live := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m = s.settleExpiry(ctx, m, now); m.Status != domain.StatusExpired {
			live = append(live, m)
		}
	}
	return live, nil
}

// SweepExpired persists every due PLAYED -> EXPIRED transition and returns how many it wrote.
func (s *ModerationAppService) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { sweepDurationHist.Observe(time.Since(start).Seconds()) }()

	played, err := s.messages.ListByStatus(ctx, domain.StatusPlayed)
	if err != nil {
		return 0, err
	}
	now := s.Now()
	expired := 0
	for _, m := range played {
		if !m.IsExpiredAt(now) {
			continue
		}
		_, err := s.messages.Transition(ctx, m.ID, domain.StatusPlayed, domain.StatusExpired, domain.TransitionFields{At: now})
		switch {
		case err == nil:
			expired++
			transitionsCounter.WithLabelValues(string(domain.StatusPlayed), string(domain.StatusExpired)).Inc()
			expiredCounter.WithLabelValues("sweep").Inc()
		case errors.Is(err, domain.ErrConflict):
			// Expired by a concurrent reader.
		default:
			return expired, err
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "Expired played messages", "count", expired)
	}
	return expired, nil
}

func (s *ModerationAppService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings merges patch into the stored settings. Last writer wins.
func (s *ModerationAppService) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no recognised settings supplied", domain.ErrValidation)
	}
	updated, err := s.settings.Merge(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Settings merged", "version", updated.Version)
	return updated, nil
}
