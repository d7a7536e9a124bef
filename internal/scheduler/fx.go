package scheduler

import (
	"context"

	"github.com/rentease/rentledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

// ProvideConfig derives scheduler tuning from the payments config.
func ProvideConfig(holder *config.PaymentsConfigHolder) Config {
	payments := holder.Get()
	return Config{
		RunInterval:    payments.SweepInterval,
		SweepBatchSize: payments.SweepBatchSize,
	}.withDefaults()
}

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
