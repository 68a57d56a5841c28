package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// SettingsID is the fixed key of the singleton settings record.
const SettingsID = "global"

type ModerationMode string

const (
	ModerationManual ModerationMode = "MANUAL"
	ModerationAuto   ModerationMode = "AUTO"
)

type ProfanityMode string

const (
	ProfanityBlock ProfanityMode = "BLOCK"
	ProfanityFlag  ProfanityMode = "FLAG"
	ProfanityOff   ProfanityMode = "OFF"
)

type ScrollBehavior string

const (
	ScrollLoop ScrollBehavior = "LOOP"
	ScrollOnce ScrollBehavior = "ONCE"
)

type DisplayMode string

const (
	DisplayNormal DisplayMode = "NORMAL"
	DisplayBurst  DisplayMode = "BURST"
)

// Settings is the global moderation and display configuration.
type Settings struct {
	ModerationMode         ModerationMode `json:"moderation_mode"`
	ProfanityMode          ProfanityMode  `json:"profanity_mode"`
	MaxMessageLength       int            `json:"max_message_length"`
	HardBannedWords        []string       `json:"hard_banned_words"`
	SoftBannedWords        []string       `json:"soft_banned_words"`
	ScrollBehavior         ScrollBehavior `json:"scroll_behavior"`
	DisplayMode            DisplayMode    `json:"display_mode"`
	MessageLifespanSeconds int            `json:"message_lifespan_seconds"`
	ScreenMuted            bool           `json:"screen_muted"`
	Version                int64          `json:"version"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// DefaultSettings is returned when the record was never written.
func DefaultSettings() *Settings {
	return &Settings{
		ModerationMode:         ModerationManual,
		ProfanityMode:          ProfanityFlag,
		MaxMessageLength:       160,
		HardBannedWords:        []string{},
		SoftBannedWords:        []string{},
		ScrollBehavior:         ScrollLoop,
		DisplayMode:            DisplayNormal,
		MessageLifespanSeconds: 120,
		ScreenMuted:            false,
	}
}

// Lifespan is MessageLifespanSeconds as a duration.
func (s *Settings) Lifespan() time.Duration {
	return time.Duration(s.MessageLifespanSeconds) * time.Second
}

func (s *Settings) Clone() *Settings {
	c := *s
	c.HardBannedWords = slices.Clone(s.HardBannedWords)
	c.SoftBannedWords = slices.Clone(s.SoftBannedWords)
	if c.HardBannedWords == nil {
		c.HardBannedWords = []string{}
	}
	if c.SoftBannedWords == nil {
		c.SoftBannedWords = []string{}
	}
	return &c
}

// SettingsPatch is a partial update. A nil field was not supplied and is left untouched.
type SettingsPatch struct {
	ModerationMode         *ModerationMode `json:"moderation_mode,omitempty"`
	ProfanityMode          *ProfanityMode  `json:"profanity_mode,omitempty"`
	MaxMessageLength       *int            `json:"max_message_length,omitempty"`
	HardBannedWords        *[]string       `json:"hard_banned_words,omitempty"`
	SoftBannedWords        *[]string       `json:"soft_banned_words,omitempty"`
	ScrollBehavior         *ScrollBehavior `json:"scroll_behavior,omitempty"`
	DisplayMode            *DisplayMode    `json:"display_mode,omitempty"`
	MessageLifespanSeconds *int            `json:"message_lifespan_seconds,omitempty"`
	ScreenMuted            *bool           `json:"screen_muted,omitempty"`
}

// IsEmpty reports whether no field was supplied.
func (p SettingsPatch) IsEmpty() bool {
	return p == SettingsPatch{}
}

// Validate upper-cases enum values, normalizes word lists and checks ranges.
func (p *SettingsPatch) Validate() error {
	if p.ModerationMode != nil {
		v := ModerationMode(strings.ToUpper(strings.TrimSpace(string(*p.ModerationMode))))
		if v != ModerationManual && v != ModerationAuto {
			return fmt.Errorf("%w: moderation_mode must be MANUAL or AUTO, got %q", ErrValidation, *p.ModerationMode)
		}
		p.ModerationMode = &v
	}
	if p.ProfanityMode != nil {
		v := ProfanityMode(strings.ToUpper(strings.TrimSpace(string(*p.ProfanityMode))))
		if v != ProfanityBlock && v != ProfanityFlag && v != ProfanityOff {
			return fmt.Errorf("%w: profanity_mode must be BLOCK, FLAG or OFF, got %q", ErrValidation, *p.ProfanityMode)
		}
		p.ProfanityMode = &v
	}
	if p.ScrollBehavior != nil {
		v := ScrollBehavior(strings.ToUpper(strings.TrimSpace(string(*p.ScrollBehavior))))
		if v != ScrollLoop && v != ScrollOnce {
			return fmt.Errorf("%w: scroll_behavior must be LOOP or ONCE, got %q", ErrValidation, *p.ScrollBehavior)
		}
		p.ScrollBehavior = &v
	}
	if p.DisplayMode != nil {
		v := DisplayMode(strings.ToUpper(strings.TrimSpace(string(*p.DisplayMode))))
		if v != DisplayNormal && v != DisplayBurst {
			return fmt.Errorf("%w: display_mode must be NORMAL or BURST, got %q", ErrValidation, *p.DisplayMode)
		}
		p.DisplayMode = &v
	}
	if p.MaxMessageLength != nil && (*p.MaxMessageLength <= 0 || *p.MaxMessageLength > MaxBodyRunes) {
		return fmt.Errorf("%w: max_message_length must be between 1 and %d", ErrValidation, MaxBodyRunes)
	}
	if p.MessageLifespanSeconds != nil && *p.MessageLifespanSeconds <= 0 {
		return fmt.Errorf("%w: message_lifespan_seconds must be positive", ErrValidation)
	}
	if p.HardBannedWords != nil {
		words := NormalizeWords(*p.HardBannedWords)
		p.HardBannedWords = &words
	}
	if p.SoftBannedWords != nil {
		words := NormalizeWords(*p.SoftBannedWords)
		p.SoftBannedWords = &words
	}
	return nil
}

// Apply returns a copy of base with every supplied field replaced.
// Version and UpdatedAt are the caller's responsibility.
func (p SettingsPatch) Apply(base *Settings) *Settings {
	out := base.Clone()
	if p.ModerationMode != nil {
		out.ModerationMode = *p.ModerationMode
	}
	if p.ProfanityMode != nil {
		out.ProfanityMode = *p.ProfanityMode
	}
	if p.MaxMessageLength != nil {
		out.MaxMessageLength = *p.MaxMessageLength
	}
	if p.HardBannedWords != nil {
		out.HardBannedWords = slices.Clone(*p.HardBannedWords)
	}
	if p.SoftBannedWords != nil {
		out.SoftBannedWords = slices.Clone(*p.SoftBannedWords)
	}
	if p.ScrollBehavior != nil {
		out.ScrollBehavior = *p.ScrollBehavior
	}
	if p.DisplayMode != nil {
		out.DisplayMode = *p.DisplayMode
	}
	if p.MessageLifespanSeconds != nil {
		out.MessageLifespanSeconds = *p.MessageLifespanSeconds
	}
	if p.ScreenMuted != nil {
		out.ScreenMuted = *p.ScreenMuted
	}
	if out.HardBannedWords == nil {
		out.HardBannedWords = []string{}
	}
	if out.SoftBannedWords == nil {
		out.SoftBannedWords = []string{}
	}
	return out
}

// NormalizeWords lower-cases and trims words, drops empties and duplicates, and sorts.
func NormalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
