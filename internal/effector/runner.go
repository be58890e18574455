// Package effector defines the uniform contract every deprovisioning action
// implements and the runner that wraps a body with per-record isolation,
// timeouts, skip handling and failure-signal emission.
package effector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// Effector is one deprovisioning action against one external system.
// Process handles a single record; the runner owns batching, classification
// and signalling. Implementations must be idempotent: re-running against a
// target already in the desired state is a no-op, and a missing target is
// ErrNotInTarget.
type Effector interface {
	Name() string
	Steps() []string
	Process(ctx context.Context, rec models.EventRecord) error
}

// FailureSignaler publishes failure/success signals to the failure pipeline.
type FailureSignaler interface {
	PublishSignal(ctx context.Context, sig dispatch.Signal) error
}

// AckPublisher hands completed records to the step advancer.
type AckPublisher interface {
	PublishAck(ctx context.Context, step string, records []models.EventRecord) error
}

// Runner executes one effector over delivered batches.
type Runner struct {
	eff     Effector
	signals FailureSignaler
	acks    AckPublisher
	timeout time.Duration
}

func NewRunner(eff Effector, signals FailureSignaler, acks AckPublisher, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{eff: eff, signals: signals, acks: acks, timeout: timeout}
}

// Run processes one delivery. step is the dispatch tag: a step name for
// scheduled work, or this effector's own name when the retry sweep routed a
// record back. Records are independent; one failure never aborts siblings.
// Advancement acks go out only for step-tagged work, never for name-routed
// retries, so a late retry success cannot advance an unrelated current step.
func (r *Runner) Run(ctx context.Context, step string, batch dispatch.Batch) {
	name := r.eff.Name()

	var completed []models.EventRecord
	for _, rec := range batch.Records {
		if r.processOne(ctx, rec) {
			completed = append(completed, rec)
		}
	}

	if step == name || len(completed) == 0 {
		return
	}
	if err := r.acks.PublishAck(ctx, step, completed); err != nil {
		// Dropped ack: the records stay at their step and the next scheduler
		// tick re-dispatches them. Idempotent effectors make that safe.
		log.Println(name+": publish ack failed:", err)
	}
}

func (r *Runner) processOne(ctx context.Context, rec models.EventRecord) bool {
	name := r.eff.Name()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.protect(cctx, rec)
	cancel()

	if errors.Is(err, ErrNotInTarget) {
		log.Printf("%s: skipping %s: not found in target, no action required", name, rec.Username)
		err = nil
	}

	if err == nil {
		// Implicit success. The explicit clear signal only matters when a
		// previous run flagged this effector for this user.
		if rec.FailedLambdas[name] > 0 {
			r.signal(ctx, dispatch.Signal{
				Username:         rec.Username,
				LambdaName:       name,
				PreviousFailures: rec.FailedLambdas[name],
				Classification:   dispatch.ClassSuccess,
			})
		}
		return true
	}

	log.Printf("%s: %s failed: %v", name, rec.Username, err)
	r.signal(ctx, dispatch.Signal{
		Username:         rec.Username,
		LambdaName:       name,
		Error:            err.Error(),
		PreviousFailures: rec.FailedLambdas[name],
		Classification:   Classify(err),
	})
	return false
}

// protect invokes the effector body, converting a panic into a retryable
// failure so one record cannot take down the batch loop.
func (r *Runner) protect(ctx context.Context, rec models.EventRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Retryable(fmt.Errorf("panic processing %s: %v", rec.Username, p))
		}
	}()
	return r.eff.Process(ctx, rec)
}

func (r *Runner) signal(ctx context.Context, sig dispatch.Signal) {
	if err := r.signals.PublishSignal(ctx, sig); err != nil {
		log.Println(r.eff.Name()+": publish signal failed:", err)
	}
}
