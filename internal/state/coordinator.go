package state

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mpataki/boda/internal/models"
	"github.com/mpataki/boda/internal/storage"
)

const (
	eventBuffer  = 64
	storeTimeout = 2 * time.Second
)

// Log is the execution store as used by the coordinator.
type Log interface {
	Chain
	Create(ctx context.Context, start time.Time) (int64, error)
	Complete(ctx context.Context, c storage.Completion) error
	Get(ctx context.Context, target models.Target) (*models.Execution, error)
}

// Coordinator is the single writer of the shared state. Runner events and
// viewer actions are queued on one channel and applied in arrival order by
// the goroutine started with Run.
type Coordinator struct {
	log   zerolog.Logger
	store Log

	events chan event
	done   chan struct{}

	snap atomic.Pointer[Snapshot]

	// Owned by the Run goroutine.
	cur        Snapshot
	errLimit   *rate.Limiter
	suppressed int
}

func New(store Log, g Global, log zerolog.Logger) *Coordinator {
	g.Running = true
	c := &Coordinator{
		log:      log,
		store:    store,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		cur:      Snapshot{Global: g},
		errLimit: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
	c.publish()
	return c
}

// Run applies events until ctx is cancelled. Events posted afterwards are
// dropped.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.log.Debug().Msg("coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Int("in_flight", c.cur.Runner.InFlight).Msg("coordinator stopped")
			return
		case ev := <-c.events:
			c.apply(ev)
			c.publish()
		}
	}
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns the state as of the last applied event.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Dispatch asks for admission of an execution starting at. force skips the
// interval check but never the concurrency ceiling.
func (c *Coordinator) Dispatch(ctx context.Context, at time.Time, force bool) (Admission, error) {
	reply := make(chan Admission, 1)
	if !c.post(ctx, startRun{at: at, force: force, reply: reply}) {
		return Admission{Stopped: true}, ctx.Err()
	}
	select {
	case a := <-reply:
		return a, nil
	case <-c.done:
		return Admission{Stopped: true}, nil
	case <-ctx.Done():
		return Admission{}, ctx.Err()
	}
}

// Report posts a finished execution. It returns false when the coordinator
// is no longer running and the result was dropped.
func (c *Coordinator) Report(r RunResult) bool {
	return c.post(context.Background(), runResult{r})
}

// Do posts a viewer action.
func (c *Coordinator) Do(a models.Action) bool {
	return c.post(context.Background(), uiAction{a})
}

func (c *Coordinator) post(ctx context.Context, ev event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) publish() {
	s := c.cur
	c.snap.Store(&s)
}

func (c *Coordinator) apply(ev event) {
	switch ev := ev.(type) {
	case startRun:
		ev.reply <- c.admit(ev.at, ev.force)
	case runResult:
		c.complete(ev.RunResult)
	case uiAction:
		c.act(ev.action)
	default:
		c.log.Error().Type("event", ev).Msg("unknown event")
	}
}

func (c *Coordinator) admit(at time.Time, force bool) Admission {
	g, r := &c.cur.Global, &c.cur.Runner

	if !g.Running {
		return Admission{Stopped: true}
	}
	if !force && at.Sub(r.PreviousDispatch) < g.Interval {
		return Admission{}
	}
	if r.InFlight >= g.Concurrency {
		return Admission{}
	}

	r.InFlight++
	r.PreviousDispatch = at

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	id, err := c.store.Create(ctx, at)
	if err != nil {
		c.persistenceError(err, "create")
	}
	c.log.Debug().Int64("id", id).Int("in_flight", r.InFlight).Msg("dispatch admitted")

	return Admission{Admitted: true, ID: id}
}

func (c *Coordinator) complete(res RunResult) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.Complete(ctx, storage.Completion{
		ID:       res.ID,
		Start:    res.Start,
		End:      res.End,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	})
	switch {
	case errors.Is(err, storage.ErrNoPendingRecord):
		c.log.Warn().Err(err).Int64("id", res.ID).Msg("result has no pending record")
	case err != nil:
		c.persistenceError(err, "complete")
	}

	r := &c.cur.Runner
	if r.InFlight <= 0 {
		c.log.Error().Err(ErrStateRace).Int("in_flight", r.InFlight).Msg("completion without dispatch")
		r.InFlight = 0
		return
	}
	r.InFlight--
	c.log.Debug().Int64("id", res.ID).Int("exit_code", res.ExitCode).
		Dur("took", res.End.Sub(res.Start)).Int("in_flight", r.InFlight).Msg("execution finished")
}

func (c *Coordinator) act(a models.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	nav := c.cur.Navigation
	var err error

	switch a {
	case models.ActionQuit:
		c.cur.Global.Running = false
		c.log.Info().Msg("shutdown requested")
	case models.ActionScrollUp:
		nav = nav.ScrollUp()
	case models.ActionScrollDown:
		var exec *models.Execution
		exec, err = c.store.Get(ctx, nav.Target)
		if err == nil && exec != nil {
			nav = nav.ScrollDown(exec.Lines())
		}
	case models.ActionToggleShowHistory:
		nav.ShowHistory = !nav.ShowHistory
	case models.ActionToggleShowHelp:
		nav.ShowHelp = !nav.ShowHelp
	case models.ActionSelectNext:
		nav, err = nav.Next(ctx, c.store)
	case models.ActionSelectPrev:
		nav, err = nav.Prev(ctx, c.store)
	case models.ActionSelectLatest:
		nav = nav.Select(models.Latest())
	default:
		c.log.Warn().Stringer("action", a).Msg("unknown action")
	}

	if err != nil {
		c.persistenceError(err, a.String())
		return
	}
	c.cur.Navigation = nav
}

func (c *Coordinator) persistenceError(err error, op string) {
	if !c.errLimit.Allow() {
		c.suppressed++
		return
	}
	c.log.Error().Err(err).Str("op", op).Int("suppressed", c.suppressed).Msg("execution store failed")
	c.suppressed = 0
}
