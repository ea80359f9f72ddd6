package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Max number of expired mutes lifted per pass.
const muteExpiryBatch = 100

// Lifts mutes whose expiry is at or before now: removes the guild's mute role (timeouts lapse on their own) and forgets the mute. Each mute is handled on its guild's queue, so it can't race with a new mute of the same user. Returns the number of mutes scheduled.
func (eng *Engine) ExpireMutes(ctx context.Context, now time.Time) (int, error) {
	store := eng.Deps.Mutes
	expired, err := store.ExpiredMutes(ctx, now, muteExpiryBatch)
	if err != nil {
		return 0, fmt.Errorf("listing expired mutes: %w", err)
	}
	n := 0
	for _, m := range expired {
		guildID, userID := m.GuildID, m.UserID
		err := eng.Queue.Enqueue(guildID, func(ctx context.Context) error {
			return eng.liftMute(ctx, guildID, userID, now)
		})
		if errors.Is(err, ErrQueueFull) {
			// picked up again on the next pass
			continue
		} else if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (eng *Engine) liftMute(ctx context.Context, guildID, userID string, now time.Time) error {
	logger := eng.Logger.With("guild", guildID, "user", userID)
	// re-read: the user may have been muted again since the mute was listed
	m, err := eng.Deps.Mutes.GetMute(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if m == nil || m.ExpiresAt == nil || m.ExpiresAt.After(now) {
		return nil
	}
	if gc, ok := eng.GuildConfig(guildID); ok && gc.MuteRole != "" {
		if err := eng.Deps.Platform.RemoveRole(ctx, guildID, userID, gc.MuteRole); err != nil {
			// the member may have left; the mute record is dropped regardless
			logger.Warn("failed to remove mute role", "role", gc.MuteRole, "err", err)
			mutesExpired.WithLabelValues("role_error").Inc()
		}
	}
	if err := eng.Deps.Mutes.RemoveMute(ctx, guildID, userID); err != nil {
		mutesExpired.WithLabelValues("error").Inc()
		return fmt.Errorf("removing expired mute: %w", err)
	}
	mutesExpired.WithLabelValues("ok").Inc()
	logger.Info("mute expired")
	return nil
}

// Periodically lifts expired mutes until the context is cancelled.
func (eng *Engine) RunMuteExpiry(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := eng.ExpireMutes(ctx, time.Now().UTC()); err != nil {
				eng.Logger.Error("mute expiry pass failed", "err", err)
			}
		}
	}
}
