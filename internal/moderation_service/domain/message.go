package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusLive     Status = "live"
	StatusPlayed   Status = "played"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// MaxBodyRunes caps stored bodies regardless of settings (ten concatenated SMS segments).
const MaxBodyRunes = 1600

// transitions is the only set of allowed status moves.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusRejected, StatusLive, StatusPlayed},
	StatusLive:     {StatusPlayed},
	StatusPlayed:   {StatusExpired},
}

// ParseStatus accepts any casing of a known status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusLive, StatusPlayed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Decision kinds produced by the rule engine.
type DecisionKind string

const (
	DecisionAllow  DecisionKind = "allow"
	DecisionFlag   DecisionKind = "flag"
	DecisionReject DecisionKind = "reject"
)

// Advisory is the rule-engine verdict recorded on a message at ingestion. It informs the
// moderator; it never overrides an explicit approve or reject.
type Advisory struct {
	Decision     DecisionKind `json:"decision"`
	Reason       string       `json:"reason,omitempty"`
	MatchedTerms []string     `json:"matched_terms,omitempty"`
	MaskedBody   string       `json:"masked_body,omitempty"`
}

// Message is a crowd-submitted text moving through moderation and display.
type Message struct {
	ID              string     `json:"pk"`
	Body            string     `json:"body"`
	SourceAddress   string     `json:"from_number"`
	Provider        string     `json:"provider,omitempty"`
	Status          Status     `json:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Advisory        *Advisory  `json:"advisory,omitempty"`
	PlayedAt        *time.Time `json:"played_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsExpiredAt reports whether a played message has outlived its lifespan at now.
func (m *Message) IsExpiredAt(now time.Time) bool {
	if m.Status == StatusExpired {
		return true
	}
	return m.Status == StatusPlayed && m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// EffectiveStatus is the status a reader should observe at now, accounting for expiry
// that has not been persisted yet.
func (m *Message) EffectiveStatus(now time.Time) Status {
	if m.IsExpiredAt(now) {
		return StatusExpired
	}
	return m.Status
}

// RemainingLifespan is the display time left for a played message, never negative.
// ok is false when the message has no expiry.
func (m *Message) RemainingLifespan(now time.Time) (remaining time.Duration, ok bool) {
	if m.ExpiresAt == nil {
		return 0, false
	}
	remaining = m.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.RejectionReason != nil {
		r := *m.RejectionReason
		c.RejectionReason = &r
	}
	if m.PlayedAt != nil {
		t := *m.PlayedAt
		c.PlayedAt = &t
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	if m.Advisory != nil {
		a := *m.Advisory
		a.MatchedTerms = slices.Clone(m.Advisory.MatchedTerms)
		c.Advisory = &a
	}
	return &c
}

// NewMessage is the input to MessageRepository.Create.
type NewMessage struct {
	// ID is optional; repositories generate one when empty.
	ID            string
	Body          string
	SourceAddress string
	Provider      string
	Advisory      *Advisory
	// CreatedAt defaults to the repository's clock when zero.
	CreatedAt time.Time
}

// NormalizeBody trims body and checks its basic shape.
func NormalizeBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", fmt.Errorf("%w: body is empty", ErrValidation)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrValidation)
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxBodyRunes {
		return "", fmt.Errorf("%w: body has %d characters, limit is %d", ErrValidation, n, MaxBodyRunes)
	}
	return trimmed, nil
}

// Validate normalizes the body in place and checks the remaining fields.
func (n *NewMessage) Validate() error {
	body, err := NormalizeBody(n.Body)
	if err != nil {
		return err
	}
	n.Body = body
	n.ID = strings.TrimSpace(n.ID)
	n.SourceAddress = strings.TrimSpace(n.SourceAddress)
	return nil
}

// TransitionFields carries the fields a transition introduces. Only the ones relevant to
// the target status are applied.
type TransitionFields struct {
	RejectionReason *string
	PlayedAt        *time.Time
	ExpiresAt       *time.Time
	// At stamps UpdatedAt; repositories use their clock when zero.
	At time.Time
}

// CheckTransition validates a requested move and its accompanying fields.
func CheckTransition(from, to Status, fields TransitionFields) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: transition %s -> %s is not allowed", ErrValidation, from, to)
	}
	if to == StatusPlayed && (fields.PlayedAt == nil || fields.ExpiresAt == nil) {
		return fmt.Errorf("%w: transition to %s requires played_at and expires_at", ErrValidation, to)
	}
	return nil
}

// ApplyTransition mutates m to the next status, setting only the fields the target
// status introduces.
func (m *Message) ApplyTransition(next Status, fields TransitionFields, at time.Time) {
	m.Status = next
	switch next {
	case StatusRejected:
		if fields.RejectionReason != nil {
			r := *fields.RejectionReason
			m.RejectionReason = &r
		}
	case StatusPlayed:
		if m.PlayedAt == nil && fields.PlayedAt != nil {
			t := fields.PlayedAt.UTC()
			m.PlayedAt = &t
		}
		if m.ExpiresAt == nil && fields.ExpiresAt != nil {
			t := fields.ExpiresAt.UTC()
			m.ExpiresAt = &t
		}
	}
	m.UpdatedAt = at.UTC()
}
