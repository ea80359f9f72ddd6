package recentstore

import (
	"sync"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"
)

// Default age after which entries are pruned. Spam trigger windows may not exceed this.
const DefaultRetention = 10 * time.Minute

type Kind string

const (
	KindMessage      Kind = "message"
	KindMention      Kind = "mention"
	KindLink         Kind = "link"
	KindAttachment   Kind = "attachment"
	KindEmoji        Kind = "emoji"
	KindLine         Kind = "line"
	KindCharacter    Kind = "character"
	KindSticker      Kind = "sticker"
	KindMemberJoin   Kind = "member_join"
	KindThreadCreate Kind = "thread_create"
)

// A time-stamped counter contributed by a single context.
type Entry struct {
	Kind      Kind
	GuildID   string
	ChannelID string
	UserID    string
	Count     int
	Timestamp time.Time
	Context   *event.Context
}

// Selects entries of one kind within the half-open window (Since, Until]. Empty UserID or ChannelID match any value.
type Query struct {
	Kind      Kind
	GuildID   string
	UserID    string
	ChannelID string
	Since     time.Time
	Until     time.Time
}

// In-process buffer of recent actions, grouped by guild.
//
// Entries hold references to live contexts, so this is intentionally not backed by an external store.
type MemRecentStore struct {
	lk     sync.Mutex
	guilds map[string][]Entry
}

func NewMemRecentStore() *MemRecentStore {
	return &MemRecentStore{
		guilds: make(map[string][]Entry),
	}
}

func (s *MemRecentStore) Add(entries ...Entry) {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, e := range entries {
		if e.Count <= 0 {
			continue
		}
		s.guilds[e.GuildID] = append(s.guilds[e.GuildID], e)
	}
}

// Returns matching entries whose context has not already been actioned, oldest first.
func (s *MemRecentStore) Matching(q Query) []Entry {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []Entry
	for _, e := range s.guilds[q.GuildID] {
		if e.Kind != q.Kind {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.ChannelID != "" && e.ChannelID != q.ChannelID {
			continue
		}
		if !e.Timestamp.After(q.Since) || e.Timestamp.After(q.Until) {
			continue
		}
		if e.Context != nil && e.Context.Actioned {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Removes entries for the guild with a timestamp before the cutoff. Returns the number of removed entries.
func (s *MemRecentStore) Prune(guildID string, before time.Time) int {
	s.lk.Lock()
	defer s.lk.Unlock()
	l, ok := s.guilds[guildID]
	if !ok {
		return 0
	}
	kept := l[:0]
	for _, e := range l {
		if e.Timestamp.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(l) - len(kept)
	// clear the tail so pruned contexts can be collected
	for i := len(kept); i < len(l); i++ {
		l[i] = Entry{}
	}
	if len(kept) == 0 {
		delete(s.guilds, guildID)
	} else {
		s.guilds[guildID] = kept
	}
	return removed
}

func (s *MemRecentStore) Len(guildID string) int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.guilds[guildID])
}

// Sums the Count field of the given entries.
func Total(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.Count
	}
	return n
}
