package counters

import (
	"context"
	"testing"

	"github.com/zeppelin-bot/zeppelin/automod/countstore"

	"github.com/stretchr/testify/assert"
)

func TestParseCondition(t *testing.T) {
	assert := assert.New(t)

	c, err := ParseCondition(">=5")
	assert.NoError(err)
	assert.Equal(Condition{Op: ">=", Value: 5}, c)
	assert.True(c.Check(5))
	assert.False(c.Check(4))
	assert.Equal("<5", c.Negate().String())

	c, err = ParseCondition(" != -2 ")
	assert.NoError(err)
	assert.True(c.Check(0))
	assert.False(c.Check(-2))

	for _, bad := range []string{"", "5", "=>5", ">= five", "~3"} {
		_, err := ParseCondition(bad)
		assert.Error(err, bad)
	}
}

func TestCounterCrossings(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	high, _ := ParseCondition(">=3")
	low, _ := ParseCondition("<1")
	def := &Definition{
		Name:    "points",
		PerUser: true,
		Triggers: []Trigger{
			{Name: "too_many", Condition: high, ReverseCondition: low},
		},
	}
	svc := NewService(countstore.NewMemCountStore())

	_, err := svc.Change(ctx, "g1", def, "", "", 1)
	assert.ErrorIs(err, ErrMissingUser)

	cr, err := svc.Change(ctx, "g1", def, "c1", "u1", 2)
	assert.NoError(err)
	assert.Empty(cr)

	cr, err = svc.Change(ctx, "g1", def, "c1", "u1", 1)
	assert.NoError(err)
	assert.Equal([]Crossing{{Counter: "points", Trigger: "too_many", UserID: "u1", Value: 3}}, cr)

	// already triggered; doesn't fire again
	cr, err = svc.Change(ctx, "g1", def, "c1", "u1", 5)
	assert.NoError(err)
	assert.Empty(cr)

	// hysteresis: dropping below the trigger condition isn't enough
	cr, err = svc.Set(ctx, "g1", def, "c1", "u1", 2)
	assert.NoError(err)
	assert.Empty(cr)

	cr, err = svc.Set(ctx, "g1", def, "c1", "u1", 0)
	assert.NoError(err)
	assert.Equal(1, len(cr))
	assert.True(cr[0].Reverse)

	v, err := svc.Get(ctx, "g1", def, "", "u1")
	assert.NoError(err)
	assert.Equal(0, v)

	// can trigger again after reverse
	cr, err = svc.Change(ctx, "g1", def, "", "u1", 3)
	assert.NoError(err)
	assert.Equal(1, len(cr))
	assert.False(cr[0].Reverse)
}

func TestCounterInitialValue(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	def := &Definition{Name: "budget", PerChannel: true, InitialValue: 10}
	svc := NewService(countstore.NewMemCountStore())

	_, err := svc.Get(ctx, "g1", def, "", "")
	assert.ErrorIs(err, ErrMissingChannel)

	v, err := svc.Get(ctx, "g1", def, "c1", "")
	assert.NoError(err)
	assert.Equal(10, v)

	_, err = svc.Change(ctx, "g1", def, "c1", "", -4)
	assert.NoError(err)
	v, err = svc.Get(ctx, "g1", def, "c1", "")
	assert.NoError(err)
	assert.Equal(6, v)
}
