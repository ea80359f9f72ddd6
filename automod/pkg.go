package automod

import (
	"github.com/zeppelin-bot/zeppelin/automod/engine"
)

type Engine = engine.Engine
type EngineConfig = engine.Config
type Deps = engine.Deps
type GuildConfig = engine.GuildConfig
type Rule = engine.Rule

type Platform = engine.Platform
type LogSink = engine.LogSink
type BotAlerter = engine.BotAlerter
type LogNotifier = engine.LogNotifier
type MultiAlerter = engine.MultiAlerter
type MultiLogSink = engine.MultiLogSink
type ThrottledAlerter = engine.ThrottledAlerter
type SlackNotifier = engine.SlackNotifier

var (
	NewEngine           = engine.NewEngine
	NewSlackNotifier    = engine.NewSlackNotifier
	NewThrottledAlerter = engine.NewThrottledAlerter

	ErrQueueFull   = engine.ErrQueueFull
	ErrQueueClosed = engine.ErrQueueClosed
)
