package counters

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeppelin-bot/zeppelin/automod/countstore"
)

var (
	ErrMissingUser    = errors.New("counter is per-user, but no user is available")
	ErrMissingChannel = errors.New("counter is per-channel, but no channel is available")
)

type Trigger struct {
	Name             string
	Condition        Condition
	ReverseCondition Condition
}

// A configured counter. Values are kept per guild, and optionally per channel and/or per user.
type Definition struct {
	Name         string
	PerChannel   bool
	PerUser      bool
	InitialValue int
	Triggers     []Trigger
}

// A counter trigger whose state flipped as the result of a value change.
type Crossing struct {
	Counter   string
	Trigger   string
	Reverse   bool
	ChannelID string
	UserID    string
	Value     int
}

// Applies counter changes against a CountStore and reports trigger crossings.
//
// A trigger fires when its condition becomes true, then stays "triggered" (and won't fire again) until the reverse condition holds, at which point the reverse trigger fires. Trigger state is persisted next to the value in the same store.
type Service struct {
	Store countstore.CountStore
}

func NewService(store countstore.CountStore) *Service {
	return &Service{Store: store}
}

func (d *Definition) ref(guildID, channelID, userID string) (countstore.Ref, error) {
	ref := countstore.Ref{GuildID: guildID, Counter: d.Name}
	if d.PerChannel {
		if channelID == "" {
			return ref, ErrMissingChannel
		}
		ref.ChannelID = channelID
	}
	if d.PerUser {
		if userID == "" {
			return ref, ErrMissingUser
		}
		ref.UserID = userID
	}
	return ref, nil
}

func triggerStateRef(ref countstore.Ref, trigger string) countstore.Ref {
	ref.Counter = ref.Counter + "#trigger:" + trigger
	return ref
}

func (s *Service) Get(ctx context.Context, guildID string, def *Definition, channelID, userID string) (int, error) {
	ref, err := def.ref(guildID, channelID, userID)
	if err != nil {
		return 0, err
	}
	v, ok, err := s.Store.GetCount(ctx, ref)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def.InitialValue, nil
	}
	return v, nil
}

func (s *Service) Change(ctx context.Context, guildID string, def *Definition, channelID, userID string, delta int) ([]Crossing, error) {
	ref, err := def.ref(guildID, channelID, userID)
	if err != nil {
		return nil, err
	}
	_, val, err := s.Store.ChangeCount(ctx, ref, def.InitialValue, delta)
	if err != nil {
		return nil, fmt.Errorf("changing counter %s: %w", def.Name, err)
	}
	return s.checkTriggers(ctx, def, ref, val)
}

func (s *Service) Set(ctx context.Context, guildID string, def *Definition, channelID, userID string, val int) ([]Crossing, error) {
	ref, err := def.ref(guildID, channelID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.SetCount(ctx, ref, def.InitialValue, val); err != nil {
		return nil, fmt.Errorf("setting counter %s: %w", def.Name, err)
	}
	return s.checkTriggers(ctx, def, ref, val)
}

func (s *Service) checkTriggers(ctx context.Context, def *Definition, ref countstore.Ref, val int) ([]Crossing, error) {
	var out []Crossing
	for _, t := range def.Triggers {
		sref := triggerStateRef(ref, t.Name)
		state, _, err := s.Store.GetCount(ctx, sref)
		if err != nil {
			return out, err
		}
		triggered := state == 1
		var fire, reverse bool
		if !triggered && t.Condition.Check(val) {
			fire = true
		} else if triggered && t.ReverseCondition.Check(val) {
			fire = true
			reverse = true
		}
		if !fire {
			continue
		}
		next := 1
		if reverse {
			next = 0
		}
		if _, err := s.Store.SetCount(ctx, sref, 0, next); err != nil {
			return out, err
		}
		out = append(out, Crossing{
			Counter:   def.Name,
			Trigger:   t.Name,
			Reverse:   reverse,
			ChannelID: ref.ChannelID,
			UserID:    ref.UserID,
			Value:     val,
		})
	}
	return out, nil
}
