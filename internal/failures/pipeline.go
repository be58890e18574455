// Package failures is the per-(user, effector) failure state machine:
// Healthy -> Flagged(n) -> Terminal, cleared by success or manual
// intervention.
package failures

import (
	"context"
	"fmt"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/dispatch"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// FailureStore is the slice of the event store the pipeline mutates.
type FailureStore interface {
	FlagFailure(ctx context.Context, username, effectorName string) (*models.EventRecord, error)
	ClearFailure(ctx context.Context, username, effectorName string) error
}

// Notifier escalates a terminal failure to a human. Delivery failure is
// logged, not retried.
type Notifier interface {
	NotifyFailure(ctx context.Context, username, effectorName, errMsg string) error
}

type Pipeline struct {
	store      FailureStore
	notifier   Notifier
	retryLimit int
}

func New(store FailureStore, notifier Notifier, retryLimit int) *Pipeline {
	return &Pipeline{store: store, notifier: notifier, retryLimit: retryLimit}
}

// Handle applies one signal. Store failures abort this signal only.
func (p *Pipeline) Handle(ctx context.Context, sig dispatch.Signal) error {
	switch sig.Classification {
	case dispatch.ClassRetryable:
		return p.handleRetryable(ctx, sig)
	case dispatch.ClassTerminal:
		return p.handleTerminal(ctx, sig)
	case dispatch.ClassSuccess:
		// A success after any number of flagged failures clears the entry,
		// moving the pair back to Healthy.
		return p.store.ClearFailure(ctx, sig.Username, sig.LambdaName)
	default:
		return fmt.Errorf("unknown signal classification %q", sig.Classification)
	}
}

func (p *Pipeline) handleRetryable(ctx context.Context, sig dispatch.Signal) error {
	rec, err := p.store.FlagFailure(ctx, sig.Username, sig.LambdaName)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Printf("failures: %s no longer in store, dropping flag for %s", sig.Username, sig.LambdaName)
		return nil
	}

	// The transition that exhausts the retries escalates exactly once; the
	// sweep stops republishing at the limit and the counter stays for audit
	// until cleared.
	if rec.FailedLambdas[sig.LambdaName] == p.retryLimit {
		p.notify(ctx, sig)
	}
	return nil
}

func (p *Pipeline) handleTerminal(ctx context.Context, sig dispatch.Signal) error {
	// Terminal classification bypasses the counter entirely.
	p.notify(ctx, sig)

	if sig.PreviousFailures > 0 {
		return p.store.ClearFailure(ctx, sig.Username, sig.LambdaName)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, sig dispatch.Signal) {
	if err := p.notifier.NotifyFailure(ctx, sig.Username, sig.LambdaName, sig.Error); err != nil {
		log.Printf("failures: notify for %s/%s: %v", sig.Username, sig.LambdaName, err)
	}
}
