// Package scheduler decides when a user's turn has come: it scans the store
// for records whose next step is due and fans them out by step name.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
	"github.com/ofelix-plnu/acct-deprov/internal/steps"
)

// DueQuerier is the slice of the event store the scheduler reads.
type DueQuerier interface {
	QueryDue(ctx context.Context, step string, now time.Time) ([]models.EventRecord, error)
}

// ParamLoader provides a fresh step-configuration snapshot per run.
type ParamLoader interface {
	Load(ctx context.Context) (steps.Params, error)
}

// Publisher fans a due batch out tagged with its step name.
type Publisher interface {
	Publish(ctx context.Context, step string, records []models.EventRecord) error
}

type Scheduler struct {
	store  DueQuerier
	params ParamLoader
	pub    Publisher
	now    func() time.Time
}

func New(store DueQuerier, params ParamLoader, pub Publisher) *Scheduler {
	return &Scheduler{store: store, params: params, pub: pub, now: time.Now}
}

// Run performs one scheduling pass. One step's empty result or publish
// failure never halts the remaining steps.
func (s *Scheduler) Run(ctx context.Context) error {
	params, err := s.params.Load(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for acctType, chain := range params {
		log.Println("scheduler: processing steps for account type", acctType)
		for step := range chain {
			pending, err := s.store.QueryDue(ctx, step, now)
			if err != nil {
				log.Printf("scheduler: query %s:%s: %v", acctType, step, err)
				continue
			}
			if len(pending) == 0 {
				log.Printf("scheduler: no pending records found for %s:%s", acctType, step)
				continue
			}
			if err := s.pub.Publish(ctx, step, pending); err != nil {
				log.Printf("scheduler: publish %s:%s: %v", acctType, step, err)
			}
		}
	}
	return nil
}
