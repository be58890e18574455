// Package sweep republishes flagged records to the effectors that failed
// them, bounded by the retry limit.
package sweep

import (
	"context"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// FailedQuerier is the slice of the event store the sweep reads.
type FailedQuerier interface {
	QueryFailed(ctx context.Context) ([]models.EventRecord, error)
}

// Publisher republishes a retry batch. The tag is the effector's own name,
// not a step, so only the effector that failed re-attempts.
type Publisher interface {
	Publish(ctx context.Context, step string, records []models.EventRecord) error
}

type Sweep struct {
	store      FailedQuerier
	pub        Publisher
	retryLimit int
}

func New(store FailedQuerier, pub Publisher, retryLimit int) *Sweep {
	return &Sweep{store: store, pub: pub, retryLimit: retryLimit}
}

// Run performs one retry pass. Entries at or past the limit are left for the
// notification path; they stay flagged until a success or a manual clear.
func (s *Sweep) Run(ctx context.Context) error {
	log.Println("sweep: retrying failed effectors")

	flagged, err := s.store.QueryFailed(ctx)
	if err != nil {
		return err
	}

	for _, rec := range flagged {
		log.Println("sweep: found failed effectors for", rec.Username)
		for name, count := range rec.FailedLambdas {
			if count >= s.retryLimit {
				continue
			}
			log.Printf("sweep: publishing retry of %s for %s", name, rec.Username)
			// Downstream expects list form even for a single record.
			if err := s.pub.Publish(ctx, name, []models.EventRecord{rec}); err != nil {
				log.Printf("sweep: publish retry %s for %s: %v", name, rec.Username, err)
			}
		}
	}
	return nil
}
