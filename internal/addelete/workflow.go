// Package addelete is the two-phase directory deletion workflow: suspend the
// account now, wait out the grace period, then confirm the user was not
// rehired and enqueue the delete. The wait is a durable resume point in the
// workflow table, not an in-memory sleep.
package addelete

import (
	"context"
	"fmt"
	"log"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// Workflow actions, in order.
const (
	ActionSuspend = "suspend"
	ActionDelete  = "delete"
	ActionEnd     = "end"
)

// Task is the workflow state passed into the handler at each phase and
// returned with the next action.
type Task struct {
	Record      models.EventRecord `json:"record"`
	Action      string             `json:"action"`
	WaitSeconds int64              `json:"waitSeconds"`
}

// WorkItem is one suspend/delete instruction on the outbound queue.
type WorkItem struct {
	Action      string `json:"action"`
	ID          string `json:"id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type"`
}

// QueueSender enqueues a work item, ordered per username.
type QueueSender interface {
	Send(ctx context.Context, item WorkItem) error
}

// RecordGetter is the rehire check against the event store.
type RecordGetter interface {
	Get(ctx context.Context, username string) (*models.EventRecord, error)
}

// Handler runs one workflow phase.
type Handler struct {
	queue QueueSender
	store RecordGetter
}

func NewHandler(queue QueueSender, store RecordGetter) *Handler {
	return &Handler{queue: queue, store: store}
}

// Handle processes the task's current action and returns the task pointed at
// the next one, waitSeconds unchanged.
func (h *Handler) Handle(ctx context.Context, task Task) (Task, error) {
	switch task.Action {
	case ActionSuspend:
		if err := h.processSuspend(ctx, task.Record); err != nil {
			return task, err
		}
		task.Action = ActionDelete
		return task, nil
	case ActionDelete:
		if err := h.processDelete(ctx, task.Record); err != nil {
			return task, err
		}
		task.Action = ActionEnd
		return task, nil
	default:
		return task, fmt.Errorf("unknown workflow action %q", task.Action)
	}
}

func (h *Handler) processSuspend(ctx context.Context, rec models.EventRecord) error {
	log.Println("addelete: processing suspend for", rec.Username)
	return h.queue.Send(ctx, WorkItem{
		Action:      ActionSuspend,
		ID:          rec.UniversalID,
		Username:    rec.Username,
		AccountType: rec.AccountType,
	})
}

func (h *Handler) processDelete(ctx context.Context, rec models.EventRecord) error {
	log.Println("addelete: processing delete for", rec.Username)

	current, err := h.store.Get(ctx, rec.Username)
	if err != nil {
		return err
	}
	if current == nil {
		// Gone from the store during the wait means rehired or re-enrolled;
		// the paired delete must not go out.
		log.Printf("addelete: user %s not in store, assuming rehire, moving on", rec.Username)
		return nil
	}

	return h.queue.Send(ctx, WorkItem{
		Action:      ActionDelete,
		ID:          rec.UniversalID,
		Username:    rec.Username,
		AccountType: rec.AccountType,
	})
}
