package poller

import (
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
)

// Event is one input to the confirmation state machine.
type Event interface{ isEvent() }

// Started begins an attempt: arms the countdown and the poll loop.
type Started struct {
	TTLTicks int
}

// PollResult carries the server-reported status from one poll.
type PollResult struct {
	Status  paymentdomain.IntentStatus
	Message string
}

// Tick is one countdown step.
type Tick struct{}

// RetryRequested resets a finished attempt back to created.
type RetryRequested struct{}

// Dismissed stops the timers without touching the server-side intent.
type Dismissed struct{}

func (Started) isEvent()        {}
func (PollResult) isEvent()     {}
func (Tick) isEvent()           {}
func (RetryRequested) isEvent() {}
func (Dismissed) isEvent()      {}

// Effect tells the runner what to do after a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectStartTimers
	EffectStopAll
	EffectHoldThenDone
)

// Machine tracks the client-observed confirmation state. It mirrors the
// server statuses but owns only local concerns: the countdown, the
// timers, and the retry affordance. At most one countdown and one poll
// timer are ever armed.
type Machine struct {
	state            paymentdomain.IntentStatus
	remaining        int
	resultMessage    string
	countdownRunning bool
	pollRunning      bool
}

func NewMachine() *Machine {
	return &Machine{state: paymentdomain.IntentStatusCreated}
}

func (m *Machine) State() paymentdomain.IntentStatus { return m.state }
func (m *Machine) Remaining() int                    { return m.remaining }
func (m *Machine) ResultMessage() string             { return m.resultMessage }
func (m *Machine) CountdownRunning() bool            { return m.countdownRunning }
func (m *Machine) PollRunning() bool                 { return m.pollRunning }

func (m *Machine) Transition(event Event) Effect {
	switch e := event.(type) {
	case Started:
		if m.state != paymentdomain.IntentStatusCreated || m.countdownRunning || m.pollRunning {
			return EffectNone
		}
		m.state = paymentdomain.IntentStatusSent
		m.remaining = e.TTLTicks
		m.countdownRunning = true
		m.pollRunning = true
		return EffectStartTimers

	case PollResult:
		if !m.pollRunning {
			return EffectNone
		}
		switch e.Status {
		case paymentdomain.IntentStatusSent, paymentdomain.IntentStatusWaiting:
			m.state = e.Status
			return EffectNone
		case paymentdomain.IntentStatusCompleted:
			m.state = paymentdomain.IntentStatusCompleted
			m.resultMessage = e.Message
			m.stopTimers()
			return EffectHoldThenDone
		case paymentdomain.IntentStatusFailed:
			m.state = paymentdomain.IntentStatusFailed
			m.resultMessage = e.Message
			m.stopTimers()
			return EffectStopAll
		case paymentdomain.IntentStatusExpired:
			m.state = paymentdomain.IntentStatusExpired
			m.resultMessage = e.Message
			m.stopTimers()
			return EffectStopAll
		}
		return EffectNone

	case Tick:
		if !m.countdownRunning {
			return EffectNone
		}
		m.remaining--
		if m.remaining > 0 {
			return EffectNone
		}
		m.stopTimers()
		// Countdown hitting zero before a terminal poll means the
		// prompt went unanswered from this client's point of view.
		if m.state == paymentdomain.IntentStatusSent || m.state == paymentdomain.IntentStatusWaiting {
			m.state = paymentdomain.IntentStatusExpired
		}
		return EffectStopAll

	case RetryRequested:
		if m.state != paymentdomain.IntentStatusFailed && m.state != paymentdomain.IntentStatusExpired {
			return EffectNone
		}
		m.stopTimers()
		m.state = paymentdomain.IntentStatusCreated
		m.remaining = 0
		m.resultMessage = ""
		return EffectStopAll

	case Dismissed:
		if !m.countdownRunning && !m.pollRunning {
			return EffectNone
		}
		m.stopTimers()
		return EffectStopAll
	}
	return EffectNone
}

func (m *Machine) stopTimers() {
	m.countdownRunning = false
	m.pollRunning = false
}
