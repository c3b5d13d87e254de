package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, CallCompleted, NormalizeStatus("HANDLED"))
	assert.Equal(t, CallCompleted, NormalizeStatus(CallCompleted))
	assert.Equal(t, CallPending, NormalizeStatus(CallPending))
}

func TestValidStatus(t *testing.T) {
	for _, st := range []CallStatus{CallPending, CallAcknowledged, CallInProgress, CallCompleted, CallMissed, CallCancelled} {
		assert.True(t, ValidStatus(st), string(st))
	}
	assert.True(t, ValidStatus("HANDLED"))
	assert.False(t, ValidStatus("DONE"))
	assert.False(t, ValidStatus(""))
}

func TestTransitionGraph(t *testing.T) {
	all := []CallStatus{CallPending, CallAcknowledged, CallInProgress, CallCompleted, CallMissed, CallCancelled}

	allowed := map[[2]CallStatus]bool{
		{CallPending, CallAcknowledged}:      true,
		{CallPending, CallMissed}:            true,
		{CallPending, CallCancelled}:         true,
		{CallAcknowledged, CallInProgress}:   true,
		{CallAcknowledged, CallCompleted}:    true,
		{CallAcknowledged, CallCancelled}:    true,
		{CallInProgress, CallCompleted}:      true,
		{CallInProgress, CallCancelled}:      true,
		{CallMissed, CallAcknowledged}:       true,
		{CallMissed, CallCancelled}:          true,
	}

	// Every pair outside the edge set must be rejected.
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			want := allowed[[2]CallStatus{from, to}]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(CallCompleted))
	assert.True(t, IsTerminal(CallCancelled))
	assert.True(t, IsTerminal("HANDLED"))
	assert.False(t, IsTerminal(CallMissed))
	assert.False(t, IsTerminal(CallPending))

	assert.True(t, IsActive(CallPending))
	assert.True(t, IsActive(CallAcknowledged))
	assert.True(t, IsActive(CallInProgress))
	assert.False(t, IsActive(CallMissed))
	assert.False(t, IsActive(CallCompleted))

	// The exported set and the predicate must agree.
	assert.Equal(t, []CallStatus{CallPending, CallAcknowledged, CallInProgress}, ActiveStatuses())
	for _, st := range ActiveStatuses() {
		assert.True(t, IsActive(st))
	}
}
