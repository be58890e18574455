package httpapi

import (
	"context"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// RecordStore is the slice of the event store the API uses.
type RecordStore interface {
	Insert(ctx context.Context, rec models.EventRecord) error
	Get(ctx context.Context, username string) (*models.EventRecord, error)
	Delete(ctx context.Context, username string) error
	List(ctx context.Context, limit int32) ([]models.EventRecord, error)
}

// ReEnrollmentHook is the side-channel fired when a student record is
// deleted; the default wiring just logs.
type ReEnrollmentHook func(ctx context.Context, rec models.EventRecord)

type App struct {
	Store        RecordStore
	ReEnrollment ReEnrollmentHook
}
