package poller

import (
	"testing"

	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"github.com/stretchr/testify/assert"
)

func startedMachine() *Machine {
	m := NewMachine()
	m.Transition(Started{TTLTicks: 120})
	return m
}

func TestStarted_ArmsBothTimers(t *testing.T) {
	m := NewMachine()

	effect := m.Transition(Started{TTLTicks: 120})
	assert.Equal(t, EffectStartTimers, effect)
	assert.Equal(t, paymentdomain.IntentStatusSent, m.State())
	assert.Equal(t, 120, m.Remaining())
	assert.True(t, m.CountdownRunning())
	assert.True(t, m.PollRunning())

	// A second Started while live must not arm a second pair of timers.
	assert.Equal(t, EffectNone, m.Transition(Started{TTLTicks: 120}))
}

func TestPollResult_WaitingKeepsTimersRunning(t *testing.T) {
	m := startedMachine()

	effect := m.Transition(PollResult{Status: paymentdomain.IntentStatusWaiting})
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, paymentdomain.IntentStatusWaiting, m.State())
	assert.True(t, m.CountdownRunning())
	assert.True(t, m.PollRunning())
}

func TestPollResult_CompletedStopsTimersAndHolds(t *testing.T) {
	m := startedMachine()
	m.Transition(PollResult{Status: paymentdomain.IntentStatusWaiting})

	effect := m.Transition(PollResult{Status: paymentdomain.IntentStatusCompleted, Message: "paid"})
	assert.Equal(t, EffectHoldThenDone, effect)
	assert.Equal(t, paymentdomain.IntentStatusCompleted, m.State())
	assert.Equal(t, "paid", m.ResultMessage())
	assert.False(t, m.CountdownRunning())
	assert.False(t, m.PollRunning())

	// Ticks and polls after the terminal state are inert.
	assert.Equal(t, EffectNone, m.Transition(Tick{}))
	assert.Equal(t, EffectNone, m.Transition(PollResult{Status: paymentdomain.IntentStatusFailed}))
	assert.Equal(t, paymentdomain.IntentStatusCompleted, m.State())
}

func TestPollResult_FailedExposesMessageAndAllowsRetry(t *testing.T) {
	m := startedMachine()

	effect := m.Transition(PollResult{Status: paymentdomain.IntentStatusFailed, Message: "Request cancelled by user"})
	assert.Equal(t, EffectStopAll, effect)
	assert.Equal(t, paymentdomain.IntentStatusFailed, m.State())
	assert.Equal(t, "Request cancelled by user", m.ResultMessage())

	assert.Equal(t, EffectStopAll, m.Transition(RetryRequested{}))
	assert.Equal(t, paymentdomain.IntentStatusCreated, m.State())
	assert.Empty(t, m.ResultMessage())
	assert.False(t, m.CountdownRunning())
	assert.False(t, m.PollRunning())

	// The reset machine can start a fresh attempt.
	assert.Equal(t, EffectStartTimers, m.Transition(Started{TTLTicks: 120}))
}

func TestTick_CountdownReachingZeroExpiresLocally(t *testing.T) {
	m := NewMachine()
	m.Transition(Started{TTLTicks: 3})
	m.Transition(PollResult{Status: paymentdomain.IntentStatusWaiting})

	assert.Equal(t, EffectNone, m.Transition(Tick{}))
	assert.Equal(t, EffectNone, m.Transition(Tick{}))
	effect := m.Transition(Tick{})
	assert.Equal(t, EffectStopAll, effect)
	assert.Equal(t, paymentdomain.IntentStatusExpired, m.State())
	assert.False(t, m.PollRunning())

	// Expired allows retry.
	assert.Equal(t, EffectStopAll, m.Transition(RetryRequested{}))
	assert.Equal(t, paymentdomain.IntentStatusCreated, m.State())
}

func TestRetry_RejectedWhileLive(t *testing.T) {
	m := startedMachine()

	assert.Equal(t, EffectNone, m.Transition(RetryRequested{}))
	assert.Equal(t, paymentdomain.IntentStatusSent, m.State())
	assert.True(t, m.PollRunning())
}

func TestDismissed_StopsTimersWithoutChangingState(t *testing.T) {
	m := startedMachine()
	m.Transition(PollResult{Status: paymentdomain.IntentStatusWaiting})

	effect := m.Transition(Dismissed{})
	assert.Equal(t, EffectStopAll, effect)
	assert.Equal(t, paymentdomain.IntentStatusWaiting, m.State())
	assert.False(t, m.CountdownRunning())
	assert.False(t, m.PollRunning())

	assert.Equal(t, EffectNone, m.Transition(Dismissed{}))
}
