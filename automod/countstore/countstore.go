package countstore

import (
	"context"
	"fmt"
)

// Identifies a single counter value. ChannelID and UserID are empty for counters which are not tracked per-channel or per-user.
type Ref struct {
	GuildID   string
	Counter   string
	ChannelID string
	UserID    string
}

type CountStore interface {
	// Returns the current value, and whether a value has been stored at all.
	GetCount(ctx context.Context, ref Ref) (int, bool, error)
	// Adds delta to the value, starting from initial if nothing is stored yet. Returns the values before and after.
	ChangeCount(ctx context.Context, ref Ref, initial, delta int) (int, int, error)
	// Overwrites the value. Returns the previous value (initial if nothing was stored).
	SetCount(ctx context.Context, ref Ref, initial, val int) (int, error)
}

func counterBucket(ref Ref) string {
	return fmt.Sprintf("%s/%s/%s/%s", ref.GuildID, ref.Counter, ref.ChannelID, ref.UserID)
}
