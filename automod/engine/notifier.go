package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v3"
)

// Writes automod log entries and bot alerts to a slog logger. Used when no other sink is configured, and in tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) LogAutomodAction(ctx context.Context, entry LogEntry) error {
	n.Logger.Info("automod action",
		"guild", entry.GuildID,
		"rule", entry.Rule,
		"user", entry.UserID,
		"channel", entry.ChannelID,
		"summary", entry.Summary,
		"actions", strings.Join(entry.Actions, ","),
		"contexts", entry.Contexts,
	)
	return nil
}

func (n *LogNotifier) BotAlert(ctx context.Context, guildID, msg string) error {
	n.Logger.Warn("bot alert", "guild", guildID, "msg", msg)
	return nil
}

// Fans bot alerts out to several alerters. All are attempted; errors are joined.
type MultiAlerter []BotAlerter

func (m MultiAlerter) BotAlert(ctx context.Context, guildID, msg string) error {
	var errs []error
	for _, a := range m {
		if err := a.BotAlert(ctx, guildID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Writes log entries to several sinks. All are attempted; errors are joined.
type MultiLogSink []LogSink

func (m MultiLogSink) LogAutomodAction(ctx context.Context, entry LogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.LogAutomodAction(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Limits the volume of bot alerts per guild, so a misconfigured rule firing in a busy channel can't flood the log channel. Alerts over the limit are dropped.
type ThrottledAlerter struct {
	Inner  BotAlerter
	Window time.Duration
	Limit  int64

	limiters *xsync.MapOf[string, *slidingwindow.Limiter]
}

func NewThrottledAlerter(inner BotAlerter, window time.Duration, limit int64) *ThrottledAlerter {
	return &ThrottledAlerter{
		Inner:    inner,
		Window:   window,
		Limit:    limit,
		limiters: xsync.NewMapOf[string, *slidingwindow.Limiter](),
	}
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

func (t *ThrottledAlerter) BotAlert(ctx context.Context, guildID, msg string) error {
	lim, _ := t.limiters.LoadOrCompute(guildID, func() *slidingwindow.Limiter {
		l, _ := slidingwindow.NewLimiter(t.Window, t.Limit, windowFunc)
		return l
	})
	if !lim.Allow() {
		botAlertCount.WithLabelValues("throttled").Inc()
		return nil
	}
	botAlertCount.WithLabelValues("sent").Inc()
	return t.Inner.BotAlert(ctx, guildID, msg)
}
