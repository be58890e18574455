package addelete

import (
	"context"
	"log"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/effector"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// Parker is the durable timer: park a task until resumeAt, list due tasks,
// drop finished ones.
type Parker interface {
	Park(ctx context.Context, task Task, resumeAt int64) error
	Due(ctx context.Context, now int64) ([]Task, error)
	Remove(ctx context.Context, username string) error
}

// Runner drives tasks through the handler across the durable wait.
type Runner struct {
	handler     *Handler
	parked      Parker
	waitSeconds int64
	now         func() time.Time
}

func NewRunner(handler *Handler, parked Parker, waitSeconds int64) *Runner {
	return &Runner{handler: handler, parked: parked, waitSeconds: waitSeconds, now: time.Now}
}

// Start runs the day-0 suspend phase and parks the delete phase for
// waitSeconds. The park must land before Start returns success; losing it
// would orphan the suspend with no paired delete.
func (r *Runner) Start(ctx context.Context, rec models.EventRecord) error {
	task := Task{Record: rec, Action: ActionSuspend, WaitSeconds: r.waitSeconds}

	next, err := r.handler.Handle(ctx, task)
	if err != nil {
		return err
	}
	return r.parked.Park(ctx, next, r.now().Unix()+r.waitSeconds)
}

// Tick resumes every due task. A task that fails stays parked and is
// re-attempted next tick.
func (r *Runner) Tick(ctx context.Context) error {
	due, err := r.parked.Due(ctx, r.now().Unix())
	if err != nil {
		return err
	}

	for _, task := range due {
		next, err := r.handler.Handle(ctx, task)
		if err != nil {
			log.Printf("addelete: resume %s for %s: %v", task.Action, task.Record.Username, err)
			continue
		}
		if next.Action == ActionEnd {
			if err := r.parked.Remove(ctx, task.Record.Username); err != nil {
				log.Printf("addelete: remove resume point for %s: %v", task.Record.Username, err)
			}
		}
	}
	return nil
}

// EntryEffector starts the workflow when a record reaches the configured
// entry step. It is a regular effector so failures flow through the standard
// flag/retry path.
type EntryEffector struct {
	runner *Runner
	steps  []string
}

func NewEntryEffector(runner *Runner, steps []string) *EntryEffector {
	return &EntryEffector{runner: runner, steps: steps}
}

func (e *EntryEffector) Name() string { return "ad_delete_entry" }

func (e *EntryEffector) Steps() []string { return e.steps }

func (e *EntryEffector) Process(ctx context.Context, rec models.EventRecord) error {
	if err := e.runner.Start(ctx, rec); err != nil {
		return effector.Retryable(err)
	}
	return nil
}
