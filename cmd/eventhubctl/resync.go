package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var resyncCmd = &cobra.Command{
	Use:   "resync-event <event-id>",
	Short: "Rebuild an event's scheduled notifications from its settings",
	Long: "resync-event reconciles scheduled_notifications with the event's current " +
		"reminder settings. When the event no longer exists its notifications are removed.",
	Args: cobra.ExactArgs(1),
	RunE: runResync,
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}

type eventGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Event, error)
}

type resyncer interface {
	Reconcile(ctx context.Context, e models.Event, newTimes []int) (reminders.Diff, error)
	CancelAll(ctx context.Context, eventID primitive.ObjectID) (int64, error)
}

type resyncResult struct {
	EventID      string          `json:"event_id"`
	EventMissing bool            `json:"event_missing,omitempty"`
	Cancelled    int64           `json:"cancelled,omitempty"`
	Diff         *reminders.Diff `json:"diff,omitempty"`
}

func runResync(cmd *cobra.Command, args []string) error {
	id, err := primitive.ObjectIDFromHex(args[0])
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", args[0], err)
	}
	ctx := cmd.Context()
	svc, _, closeFn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := resyncEvent(ctx, svc.Events, svc.Scheduler, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func resyncEvent(ctx context.Context, events eventGetter, sched resyncer, id primitive.ObjectID) (resyncResult, error) {
	res := resyncResult{EventID: id.Hex()}
	ev, err := events.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, err := sched.CancelAll(ctx, id)
		if err != nil {
			return res, err
		}
		res.EventMissing = true
		res.Cancelled = n
		return res, nil
	}
	if err != nil {
		return res, err
	}

	diff, err := sched.Reconcile(ctx, ev, ev.ReminderTimes())
	if err != nil {
		return res, err
	}
	res.Diff = &diff
	return res, nil
}
