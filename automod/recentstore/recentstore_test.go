package recentstore

import (
	"testing"
	"time"

	"github.com/zeppelin-bot/zeppelin/automod/event"

	"github.com/stretchr/testify/assert"
)

func TestMemRecentStoreBasics(t *testing.T) {
	assert := assert.New(t)
	rs := NewMemRecentStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rs.Add(Entry{
			Kind:      KindMessage,
			GuildID:   "g1",
			ChannelID: "c1",
			UserID:    "u1",
			Count:     1,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Context:   &event.Context{},
		})
	}
	rs.Add(Entry{Kind: KindMessage, GuildID: "g1", ChannelID: "c2", UserID: "u1", Count: 1, Timestamp: base})
	rs.Add(Entry{Kind: KindMention, GuildID: "g1", ChannelID: "c1", UserID: "u1", Count: 3, Timestamp: base})
	// zero counts are not recorded
	rs.Add(Entry{Kind: KindLink, GuildID: "g1", UserID: "u1", Count: 0, Timestamp: base})
	assert.Equal(6, rs.Len("g1"))

	q := Query{Kind: KindMessage, GuildID: "g1", UserID: "u1", Since: base.Add(-time.Second), Until: base.Add(10 * time.Second)}
	assert.Equal(5, Total(rs.Matching(q)))

	q.ChannelID = "c1"
	assert.Equal(4, Total(rs.Matching(q)))

	// window is exclusive at the start
	q.Since = base
	assert.Equal(3, Total(rs.Matching(q)))

	q.Kind = KindMention
	q.Since = base.Add(-time.Second)
	assert.Equal(3, Total(rs.Matching(q)))

	// other guilds are isolated
	q.GuildID = "g2"
	assert.Empty(rs.Matching(q))
}

func TestMemRecentStoreSkipsActioned(t *testing.T) {
	assert := assert.New(t)
	rs := NewMemRecentStore()
	base := time.Now()

	c1 := &event.Context{}
	c2 := &event.Context{}
	rs.Add(
		Entry{Kind: KindMessage, GuildID: "g1", UserID: "u1", Count: 1, Timestamp: base, Context: c1},
		Entry{Kind: KindMessage, GuildID: "g1", UserID: "u1", Count: 1, Timestamp: base, Context: c2},
	)
	q := Query{Kind: KindMessage, GuildID: "g1", UserID: "u1", Since: base.Add(-time.Minute), Until: base}
	assert.Equal(2, len(rs.Matching(q)))
	c1.Actioned = true
	assert.Equal(1, len(rs.Matching(q)))
}

func TestMemRecentStorePrune(t *testing.T) {
	assert := assert.New(t)
	rs := NewMemRecentStore()
	base := time.Now()

	rs.Add(
		Entry{Kind: KindMessage, GuildID: "g1", UserID: "u1", Count: 1, Timestamp: base.Add(-20 * time.Minute)},
		Entry{Kind: KindMessage, GuildID: "g1", UserID: "u1", Count: 1, Timestamp: base.Add(-time.Minute)},
	)
	assert.Equal(1, rs.Prune("g1", base.Add(-DefaultRetention)))
	assert.Equal(1, rs.Len("g1"))
	assert.Equal(1, rs.Prune("g1", base))
	assert.Equal(0, rs.Len("g1"))
	assert.Equal(0, rs.Prune("missing", base))
}
