// Package record holds the effector that retires a user's event record once
// the chain reaches its end.
package record

import (
	"context"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/effector"
	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// Deleter is the slice of the event store this effector needs.
type Deleter interface {
	Delete(ctx context.Context, username string) error
}

// DeleteEffector subscribes only to the "end" sentinel and removes the record
// from the store; the lifecycle terminus is deletion, not a terminal mark.
type DeleteEffector struct {
	store Deleter
}

func NewDeleteEffector(store Deleter) *DeleteEffector {
	return &DeleteEffector{store: store}
}

func (e *DeleteEffector) Name() string { return "delete_record" }

func (e *DeleteEffector) Steps() []string { return []string{models.EndStep} }

func (e *DeleteEffector) Process(ctx context.Context, rec models.EventRecord) error {
	if err := e.store.Delete(ctx, rec.Username); err != nil {
		return effector.Retryable(err)
	}
	log.Println("delete_record: removed", rec.Username)
	return nil
}
