// Package runner dispatches the watched command on a fixed-resolution tick,
// leaving admission decisions to the state coordinator.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpataki/boda/internal/state"
)

const DefaultTick = 100 * time.Millisecond

// Dispatcher is the coordinator side of the runner.
type Dispatcher interface {
	Dispatch(ctx context.Context, at time.Time, force bool) (state.Admission, error)
	Report(r state.RunResult) bool
}

type Options struct {
	Shell     string
	Command   []string
	Tick      time.Duration
	MaxOutput int
}

type Runner struct {
	opts  Options
	coord Dispatcher
	log   zerolog.Logger

	now func() time.Time
	wg  sync.WaitGroup
}

func New(coord Dispatcher, opts Options, log zerolog.Logger) *Runner {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = 1 << 20
	}
	return &Runner{
		opts:  opts,
		coord: coord,
		log:   log,
		now:   time.Now,
	}
}

// Run dispatches once immediately, then evaluates admission on every tick
// until the coordinator reports that the watcher stopped or ctx is done.
// In-flight executions are left running; use Wait to join them.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Strs("command", r.opts.Command).Str("shell", r.opts.Shell).Msg("runner started")
	defer r.log.Info().Msg("runner stopped")

	if stop, err := r.dispatch(ctx, r.now(), true); stop {
		return err
	}

	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if stop, err := r.dispatch(ctx, t, false); stop {
				return err
			}
		}
	}
}

// Wait blocks until every launched execution has reported its result.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) dispatch(ctx context.Context, at time.Time, force bool) (bool, error) {
	adm, err := r.coord.Dispatch(ctx, at, force)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true, nil
		}
		return true, err
	}
	if adm.Stopped {
		return true, nil
	}
	if !adm.Admitted {
		return false, nil
	}

	r.wg.Add(1)
	go r.execute(adm.ID, at)
	return false, nil
}

func (r *Runner) execute(id int64, start time.Time) {
	defer r.wg.Done()

	res := Execute(r.opts.Shell, r.opts.Command, r.opts.MaxOutput)
	end := r.now()

	if res.Err != nil {
		r.log.Warn().Err(res.Err).Int64("id", id).Msg("execution failed to launch")
	}
	if res.Truncated {
		r.log.Debug().Int64("id", id).Int("limit", r.opts.MaxOutput).Msg("output truncated")
	}

	ok := r.coord.Report(state.RunResult{
		ID:       id,
		Start:    start,
		End:      end,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
	if !ok {
		r.log.Warn().Int64("id", id).Msg("result dropped after shutdown")
	}
}
