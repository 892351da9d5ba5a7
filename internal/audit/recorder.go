package audit

import (
	"context"
	"time"

	"github.com/wesmun/nfc-core/internal/events"
	"github.com/wesmun/nfc-core/internal/infrastructure/database"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
)

// EventPrefix is prepended to the action to form the published event type.
const EventPrefix = "audit."

// recordTimeout bounds a single audit write once the request context is gone.
const recordTimeout = 5 * time.Second

// Recorder writes audit entries on a best-effort basis and publishes one
// event per entry that was stored.
type Recorder struct {
	repo      Repository
	logger    *logging.Logger
	publisher events.Publisher
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(repo Repository, logger *logging.Logger, publisher events.Publisher) *Recorder {
	return &Recorder{repo: repo, logger: logger, publisher: publisher}
}

// Record stores e. Failures are logged and swallowed.
//
// The write is detached from ctx cancellation so a client hanging up
// after a mutation has committed cannot drop its audit entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	id, err := r.repo.Create(wctx, &e)
	if err != nil {
		r.logger.Error("audit log write failed",
			"action", e.Action,
			"actor_id", e.ActorID,
			"target_user_id", e.TargetUserID,
			"code", database.ErrorCode(err),
			"error", err,
		)
		return
	}

	if r.publisher == nil {
		return
	}

	payload := map[string]any{"id": id}
	if e.ActorID != "" {
		payload["actor_id"] = e.ActorID
	}
	if e.TargetUserID != "" {
		payload["target_user_id"] = e.TargetUserID
	}
	for k, v := range e.Details {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}

	r.publisher.Publish(events.Event{
		Type:      EventPrefix + e.Action,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
