package cooldownstore

import (
	"context"
	"time"
)

// Tracks per-rule cooldown expiry timestamps.
type CooldownStore interface {
	// Returns the zero time if no cooldown is recorded for the key.
	GetExpiry(ctx context.Context, key string) (time.Time, error)
	SetExpiry(ctx context.Context, key string, expiry time.Time) error
}

// Builds the cooldown key for a rule firing. An empty userID means the cooldown applies guild-wide.
func Key(guildID, rule, userID string) string {
	if userID == "" {
		userID = "global"
	}
	return guildID + "/" + rule + "/" + userID
}
