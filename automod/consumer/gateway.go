package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeppelin-bot/zeppelin/automod/engine"
	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
)

// Gateway intents needed for every event the builders handle.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildBans |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Subscribes to the Discord gateway and feeds every relevant event into the automod engine.
type GatewayConsumer struct {
	Logger  *slog.Logger
	Session *discordgo.Session
	Engine  *engine.Engine
	Builder *Builder
}

func (gc *GatewayConsumer) Run(ctx context.Context) error {
	if gc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if gc.Session == nil {
		return fmt.Errorf("nil discord session")
	}
	s := gc.Session
	if gc.Builder.IsThread == nil && s.State != nil {
		gc.Builder.IsThread = func(channelID string) bool {
			ch, err := s.State.Channel(channelID)
			return err == nil && ch.IsThread()
		}
	}

	removers := []func(){
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			gc.submit("message_create", gc.Builder.MessageCreate(ctx, m.Message))
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
			gc.submit("member_add", gc.Builder.MemberAdd(ctx, m.Member))
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
			gc.submit("member_remove", gc.Builder.MemberRemove(ctx, m.Member))
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
			for _, c := range gc.Builder.MemberUpdate(ctx, m) {
				gc.submit("member_update", c)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildBanAdd) {
			gc.submit("ban_add", gc.Builder.BanAdd(ctx, e))
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildBanRemove) {
			gc.submit("ban_remove", gc.Builder.BanRemove(ctx, e))
		}),
		// every dispatch is also delivered as a raw *discordgo.Event
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
			if e.Type != auditLogEntryCreateEvent {
				return
			}
			entry, err := ParseAuditLogEntryCreate(e.RawData)
			if err != nil {
				gc.Logger.Warn("dropping audit log entry", "err", err)
				return
			}
			gc.submit("audit_log", gc.Builder.AuditLogEntry(ctx, entry))
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadCreate) {
			gc.submit("thread_create", gc.Builder.ThreadCreate(ctx, e))
		}),
	}
	defer func() {
		for _, rm := range removers {
			rm()
		}
	}()

	s.Identify.Intents = Intents
	op := func() error {
		if err := s.Open(); err != nil {
			gc.Logger.Warn("gateway connect failed, retrying", "err", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return fmt.Errorf("connecting to discord gateway: %w", err)
	}
	gc.Logger.Info("connected to discord gateway")

	<-ctx.Done()
	gc.Logger.Info("closing discord gateway connection")
	if err := s.Close(); err != nil {
		gc.Logger.Error("failed to close gateway connection", "err", err)
	}
	return nil
}

// Enqueues a built context. Nil contexts are dropped events.
func (gc *GatewayConsumer) submit(evt string, c *event.Context) {
	if c == nil {
		return
	}
	err := gc.Engine.Enqueue(c)
	if errors.Is(err, engine.ErrQueueFull) {
		gc.Logger.Warn("guild queue full, dropping event", "event", evt, "guild", c.GuildID)
	} else if err != nil {
		gc.Logger.Error("failed to enqueue event", "event", evt, "guild", c.GuildID, "err", err)
	}
}
