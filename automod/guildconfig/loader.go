package guildconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeppelin-bot/zeppelin/automod/engine"
	"github.com/zeppelin-bot/zeppelin/automod/setstore"
)

// Guild configs are named after the guild ID, eg "data/guilds/1234.yml".
func GuildIDFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Reads guild config files from a directory and installs them on an engine.
type Loader struct {
	Dir    string
	Engine *engine.Engine
	Sets   setstore.SetStore
	Logger *slog.Logger
}

func (l *Loader) path(guildID string) (string, error) {
	for _, ext := range []string{".yml", ".yaml"} {
		p := filepath.Join(l.Dir, guildID+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file for guild %s in %s", guildID, l.Dir)
}

// Loads every guild config file in the directory. Broken files are logged and skipped, so that one bad guild config doesn't prevent startup. Returns the number of guilds loaded.
func (l *Loader) LoadAll() (int, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return 0, fmt.Errorf("reading guild config dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		guildID := GuildIDFromPath(e.Name())
		if err := l.Reload(guildID); err != nil {
			l.Logger.Error("failed to load guild config", "guild", guildID, "err", err)
			continue
		}
		n++
	}
	l.Logger.Info("loaded guild configs", "count", n, "dir", l.Dir)
	return n, nil
}

// Re-reads a single guild's config file. On any error the guild keeps its previous config.
func (l *Loader) Reload(guildID string) error {
	p, err := l.path(guildID)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	gc, err := Parse(guildID, raw, l.Sets)
	if err != nil {
		return err
	}
	l.Engine.SetGuildConfig(guildID, gc)
	l.Logger.Info("guild config loaded", "guild", guildID, "rules", len(gc.Rules), "counters", len(gc.Counters))
	return nil
}
