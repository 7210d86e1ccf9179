package repository

import (
	"context"

	"supportchat/internal/domain/entity"
)

type PresenceRepository interface {
	// UpdatePresence merges the update into presence/{username} and refreshes lastSeen.
	UpdatePresence(ctx context.Context, username string, update entity.PresenceUpdate) error
	// GetPresence returns nil without error when no record exists yet.
	GetPresence(ctx context.Context, username string) (*entity.PresenceRecord, error)
	// WatchPresence pushes the record on every change; nil means no record.
	WatchPresence(ctx context.Context, username string, fn PresenceHandler) (Subscription, error)
}
