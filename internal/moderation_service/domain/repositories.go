package domain

import "context"

// MessageRepository is the message store. Transition is the only mutation path after Create.
type MessageRepository interface {
	Create(ctx context.Context, msg NewMessage) (*Message, error)
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListByStatus returns messages in any of statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Message, error)
	// Transition moves id from expected to next atomically. ErrConflict if the stored
	// status is not expected, ErrNotFound if id is unknown.
	Transition(ctx context.Context, id string, expected, next Status, fields TransitionFields) (*Message, error)
}

// SettingsRepository stores the singleton settings record.
type SettingsRepository interface {
	// Get returns DefaultSettings when nothing was stored yet.
	Get(ctx context.Context) (*Settings, error)
	// Merge applies patch to the stored record (or the defaults) and bumps its version.
	Merge(ctx context.Context, patch SettingsPatch) (*Settings, error)
}
