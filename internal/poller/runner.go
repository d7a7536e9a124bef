package poller

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentease/rentledger/internal/config"
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/zap"
)

// StatusFunc polls the coordinator for the server-side intent state.
type StatusFunc func(ctx context.Context, intentID snowflake.ID) (paymentdomain.StatusResponse, error)

// Outcome is the terminal result a confirmation attempt surfaces upward.
type Outcome struct {
	Status  paymentdomain.IntentStatus
	Message string
}

// Runner drives one confirmation attempt: a countdown ticker and a poll
// ticker feeding the Machine, with the Machine's effects deciding when
// to tear the timers down. Dismiss cancels the timers only; the server
// side proceeds on its own.
type Runner struct {
	log    *zap.Logger
	status StatusFunc
	cfg    config.PaymentsConfig

	mu      sync.Mutex
	machine *Machine
	cancel  context.CancelFunc
	done    chan Outcome
}

func NewRunner(log *zap.Logger, status StatusFunc, cfg config.PaymentsConfig) *Runner {
	return &Runner{
		log:     log.Named("poller"),
		status:  status,
		cfg:     cfg,
		machine: NewMachine(),
	}
}

// Done yields the attempt's terminal outcome. The channel is replaced on
// every Start.
func (r *Runner) Done() <-chan Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// State reports the machine's current client-observed status.
func (r *Runner) State() paymentdomain.IntentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.State()
}

// Start arms the countdown and poll timers for intentID. A second Start
// while an attempt is live is ignored by the machine.
func (r *Runner) Start(ctx context.Context, intentID snowflake.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ttlTicks := int(r.cfg.IntentTTL / r.cfg.CountdownTick)
	if r.machine.Transition(Started{TTLTicks: ttlTicks}) != EffectStartTimers {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan Outcome, 1)
	go r.loop(runCtx, intentID, r.done)
	return true
}

// Retry resets a failed or expired attempt back to created so the caller
// can initiate again. Any live timers are torn down first.
func (r *Runner) Retry() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.machine.Transition(RetryRequested{}) != EffectStopAll {
		return false
	}
	r.stopLocked()
	return true
}

// Dismiss stops the local timers and leaves the server-side intent alone.
func (r *Runner) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machine.Transition(Dismissed{})
	r.stopLocked()
}

func (r *Runner) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Runner) loop(ctx context.Context, intentID snowflake.ID, done chan<- Outcome) {
	countdown := time.NewTicker(r.cfg.CountdownTick)
	defer countdown.Stop()
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-countdown.C:
			r.mu.Lock()
			effect := r.machine.Transition(Tick{})
			state := r.machine.State()
			message := r.machine.ResultMessage()
			r.mu.Unlock()
			if effect == EffectStopAll {
				done <- Outcome{Status: state, Message: message}
				return
			}

		case <-poll.C:
			resp, err := r.status(ctx, intentID)
			if err != nil {
				// Transient poll failures leave the countdown running.
				r.log.Warn("status poll failed",
					zap.Int64("intent_id", int64(intentID)),
					zap.Error(err),
				)
				continue
			}
			var message string
			if resp.ResultMessage != nil {
				message = *resp.ResultMessage
			}
			r.mu.Lock()
			effect := r.machine.Transition(PollResult{Status: resp.Status, Message: message})
			state := r.machine.State()
			finalMessage := r.machine.ResultMessage()
			r.mu.Unlock()

			switch effect {
			case EffectHoldThenDone:
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.cfg.SuccessHold):
				}
				done <- Outcome{Status: state, Message: finalMessage}
				return
			case EffectStopAll:
				done <- Outcome{Status: state, Message: finalMessage}
				return
			}
		}
	}
}
