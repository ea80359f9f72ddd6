package engine

import (
	"errors"
)

var (
	// A rule or action referenced a counter which is not defined in the guild config.
	ErrUnknownCounter = errors.New("unknown counter")
	// A role referenced by an action does not exist in the guild.
	ErrUnknownRole = errors.New("unknown role")
	// The guild already has the maximum number of pending evaluations.
	ErrQueueFull = errors.New("guild queue is full")
	// The queue has been shut down and accepts no more work.
	ErrQueueClosed = errors.New("guild queue is closed")

	ErrUnknownTrigger = errors.New("unknown trigger type")
	ErrUnknownAction  = errors.New("unknown action type")
)
