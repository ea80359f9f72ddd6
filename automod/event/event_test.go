package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContextKind(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	u := &User{ID: "100", Username: "someone"}

	msg := NewMessageContext("1", u, nil, Message{ID: "m1", ChannelID: "c1", Content: "hello"}, now)
	assert.Equal(KindMessage, msg.Kind())
	assert.Equal("c1", msg.ChannelID)
	assert.Equal("100", msg.UserID())

	ar := NewAntiraidContext("1", "", "high", now)
	assert.Equal(KindAntiraidChange, ar.Kind())
	assert.Equal("", ar.UserID())

	ma := NewModActionContext("1", nil, ModAction{Kind: ModBan, TargetID: "200"}, now)
	assert.Equal(KindModAction, ma.Kind())
	assert.Equal("200", ma.UserID())

	ct := NewCounterTriggerContext("1", nil, CounterTrigger{Counter: "points", Trigger: "high", UserID: "300"}, now)
	assert.Equal(KindCounterTrigger, ct.Kind())
	assert.Equal("300", ct.UserID())

	assert.Equal(KindMemberLeave, NewMemberLeaveContext("1", u, now).Kind())
	assert.Equal(KindRoleChange, NewRoleChangeContext("1", u, nil, []string{"r1"}, nil, now).Kind())
	assert.Equal(KindThreadCreate, NewThreadCreateContext("1", u, ThreadCreate{ThreadID: "t1", ParentID: "c1"}, now).Kind())

	created := now.Add(-time.Hour)
	join := NewMemberJoinContext("1", &User{ID: "100", CreatedAt: created}, nil, now)
	assert.Equal(KindMemberJoin, join.Kind())
	assert.Equal(created, join.MemberJoin.AccountCreatedAt)

	assert.Equal(Kind(""), (&Context{}).Kind())
}
