package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpireMutes(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	gc := f.MustLoadRules("g1", "{}")
	gc.MuteRole = "muted"

	past := testBase.Add(-time.Minute)
	future := testBase.Add(time.Hour)
	assert.NoError(f.Mod.AddMute(ctx, "g1", "100", 1, &past))
	assert.NoError(f.Mod.AddMute(ctx, "g1", "101", 2, &future))
	assert.NoError(f.Mod.AddMute(ctx, "g1", "102", 3, nil))
	// guild without a mute role: timeouts lapse by themselves
	assert.NoError(f.Mod.AddMute(ctx, "g2", "100", 4, &past))

	n, err := f.Engine.ExpireMutes(ctx, testBase)
	assert.NoError(err)
	assert.Equal(2, n)
	waitQueue(t, f.Engine)

	assert.Equal([]string{"RemoveRole g1 100 muted"}, f.Platform.CallsTo("RemoveRole"))
	m, err := f.Mod.GetMute(ctx, "g1", "100")
	assert.NoError(err)
	assert.Nil(m)
	m, err = f.Mod.GetMute(ctx, "g2", "100")
	assert.NoError(err)
	assert.Nil(m)
	m, err = f.Mod.GetMute(ctx, "g1", "101")
	assert.NoError(err)
	assert.NotNil(m)
	m, err = f.Mod.GetMute(ctx, "g1", "102")
	assert.NoError(err)
	assert.NotNil(m)

	// nothing left to do
	n, err = f.Engine.ExpireMutes(ctx, testBase)
	assert.NoError(err)
	assert.Equal(0, n)
}

func TestExpireMutesSkipsRenewed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := EngineTestFixture()
	gc := f.MustLoadRules("g1", "{}")
	gc.MuteRole = "muted"

	past := testBase.Add(-time.Minute)
	assert.NoError(f.Mod.AddMute(ctx, "g1", "100", 1, &past))
	// renewed between listing and lifting
	future := testBase.Add(time.Hour)
	assert.NoError(f.Mod.AddMute(ctx, "g1", "100", 2, &future))
	assert.NoError(f.Engine.liftMute(ctx, "g1", "100", testBase))

	assert.Empty(f.Platform.CallsTo("RemoveRole"))
	m, err := f.Mod.GetMute(ctx, "g1", "100")
	assert.NoError(err)
	assert.Equal(uint64(2), m.CaseID)
}
