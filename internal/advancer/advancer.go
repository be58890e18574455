// Package advancer moves records to their next step once an effector has
// acked them. Advancement follows explicit per-record success, not bare
// delivery.
package advancer

import (
	"context"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
	"github.com/ofelix-plnu/acct-deprov/internal/steps"
)

// AdvanceStore is the slice of the event store the advancer writes.
type AdvanceStore interface {
	Advance(ctx context.Context, username, previousStep, nextStep, nextStepDate string) (bool, error)
}

// ParamLoader provides a fresh step-configuration snapshot per batch.
type ParamLoader interface {
	Load(ctx context.Context) (steps.Params, error)
}

type Advancer struct {
	store  AdvanceStore
	params ParamLoader
}

func New(store AdvanceStore, params ParamLoader) *Advancer {
	return &Advancer{store: store, params: params}
}

// HandleBatch advances each acked record from step. A record some other ack
// already advanced is a no-op; a record at a step missing from the chain
// (the "end" sentinel, or a stale config) is skipped with a log line.
func (a *Advancer) HandleBatch(ctx context.Context, step string, records []models.EventRecord) error {
	params, err := a.params.Load(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		param, ok := params.Lookup(rec.AccountType, step)
		if !ok {
			log.Printf("advancer: no step parameter for %s:%s, skipping %s", rec.AccountType, step, rec.Username)
			continue
		}

		newDate, err := steps.NextDate(rec.NextStepDate, param.NextStepDelay)
		if err != nil {
			log.Printf("advancer: %s: %v", rec.Username, err)
			continue
		}

		advanced, err := a.store.Advance(ctx, rec.Username, step, param.NextStep, newDate)
		if err != nil {
			log.Printf("advancer: advance %s: %v", rec.Username, err)
			continue
		}
		if !advanced {
			// Another effector's ack for the same step got here first.
			log.Printf("advancer: %s already past %s", rec.Username, step)
			continue
		}
		log.Printf("advancer: %s %s -> %s due %s", rec.Username, step, param.NextStep, newDate)
	}
	return nil
}
