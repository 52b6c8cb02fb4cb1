package escrow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from escrow.Status
		want []escrow.Transition
	}{
		{escrow.StatusUnknown, nil},
		{escrow.StatusListed, []escrow.Transition{escrow.TransitionStart, escrow.TransitionCancel}},
		{escrow.StatusStarted, []escrow.Transition{escrow.TransitionRunTask, escrow.TransitionCancel}},
		{escrow.StatusRunning, []escrow.Transition{
			escrow.TransitionRunTask, escrow.TransitionCompensate, escrow.TransitionComplete, escrow.TransitionCancel,
		}},
		{escrow.StatusCompensated, nil},
		{escrow.StatusUncompensated, nil},
		{escrow.StatusCancelled, nil},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, escrow.Allowed(tt.from))
			assert.Equal(t, tt.from.IsTerminal(), len(tt.want) == 0 && tt.from != escrow.StatusUnknown)
		})
	}

	assert.False(t, escrow.CanTransition(escrow.StatusListed, escrow.TransitionList), "list has no source state")
	assert.False(t, escrow.CanTransition(escrow.StatusRunning, "bogus"))
}

func TestTarget(t *testing.T) {
	tests := []struct {
		transition escrow.Transition
		want       escrow.Status
	}{
		{escrow.TransitionList, escrow.StatusListed},
		{escrow.TransitionStart, escrow.StatusStarted},
		{escrow.TransitionRunTask, escrow.StatusRunning},
		{escrow.TransitionCompensate, escrow.StatusCompensated},
		{escrow.TransitionComplete, escrow.StatusUncompensated},
		{escrow.TransitionCancel, escrow.StatusCancelled},
	}

	for _, tt := range tests {
		got, ok := escrow.Target(tt.transition)
		assert.True(t, ok, tt.transition)
		assert.Equal(t, tt.want, got, tt.transition)
	}

	_, ok := escrow.Target("bogus")
	assert.False(t, ok)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "listed", escrow.StatusListed.String())
	assert.Equal(t, "uncompensated", escrow.StatusUncompensated.String())
	assert.Equal(t, "status(42)", escrow.Status(42).String())
}
