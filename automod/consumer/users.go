package consumer

import (
	"context"
	"log/slog"

	"github.com/zeppelin-bot/zeppelin/automod/cachestore"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/bwmarrin/discordgo"
)

// Username given to users that could not be resolved (deleted accounts, failed lookups).
const UnknownUsername = "Unknown#0000"

var userCacheName = "user"

// Resolves user metadata, first from the cache and then (optionally) from the Discord API.
type UserResolver struct {
	Cache  cachestore.CacheStore
	Logger *slog.Logger
	// Optional fallback lookup on cache miss, eg (*discordgo.Session).User
	Fetch func(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

func convertUser(u *discordgo.User) *event.User {
	name := u.Username
	if u.Discriminator != "" && u.Discriminator != "0" {
		name = name + "#" + u.Discriminator
	}
	out := &event.User{
		ID:       u.ID,
		Username: name,
		Bot:      u.Bot,
	}
	if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		out.CreatedAt = ts.UTC()
	}
	return out
}

func placeholderUser(userID string) *event.User {
	out := &event.User{ID: userID, Username: UnknownUsername, Unknown: true}
	if ts, err := discordgo.SnowflakeTimestamp(userID); err == nil {
		out.CreatedAt = ts.UTC()
	}
	return out
}

// Converts a user carried on a gateway event, and refreshes the cache with it.
func (r *UserResolver) Observe(ctx context.Context, u *discordgo.User) *event.User {
	out := convertUser(u)
	if r.Cache != nil {
		if err := cachestore.SetJSON(ctx, r.Cache, userCacheName, u.ID, out); err != nil {
			r.Logger.Warn("failed to cache user", "user", u.ID, "err", err)
		}
	}
	return out
}

// Looks up a user by ID. Never fails: unresolvable users come back as a placeholder with Unknown set.
func (r *UserResolver) Resolve(ctx context.Context, userID string) *event.User {
	if r.Cache != nil {
		cached, ok, err := cachestore.GetJSON[event.User](ctx, r.Cache, userCacheName, userID)
		if err != nil {
			r.Logger.Warn("user cache read failed", "user", userID, "err", err)
		} else if ok {
			return cached
		}
	}
	if r.Fetch != nil {
		u, err := r.Fetch(userID, discordgo.WithContext(ctx))
		if err == nil && u != nil {
			return r.Observe(ctx, u)
		}
		r.Logger.Info("could not fetch user", "user", userID, "err", err)
	}
	return placeholderUser(userID)
}
