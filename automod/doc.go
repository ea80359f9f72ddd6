// Auto-moderation engine for Discord guilds.
//
// This package (`github.com/zeppelin-bot/zeppelin/automod`) re-exports the core types of the rules engine. Each guild carries a YAML config of named rules; every rule pairs a set of triggers (message filters, spam thresholds, member events, counter thresholds) with a set of actions (delete, warn, mute, kick, ban, alert, counter changes). Gateway events are converted into contexts, queued per guild, and evaluated serially in config order, so counters, cooldowns and spam windows observe a consistent history.
//
// Sub-packages hold the pieces: `engine` evaluates rules, `consumer` turns gateway events into contexts, `discord` performs actions against the Discord API, and the `*store` packages persist state. See `cmd/zeppelin` for the daemon built on this package.
package automod
