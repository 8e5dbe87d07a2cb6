package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mailpilot-dev/mailpilot/internal/provider"
	"github.com/mailpilot-dev/mailpilot/internal/queue"
	"github.com/mailpilot-dev/mailpilot/internal/store"
)

// ErrNotAuthenticated means the user has no stored provider credential.
// The orchestrator does not attempt a refresh; that is the identity
// service's job, triggered separately.
var ErrNotAuthenticated = errors.New("user not found or not authenticated")

// SyncStore is the record-store surface the sync orchestrator needs.
type SyncStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateSyncRun(ctx context.Context, userID, provider, syncType string) (string, error)
	CompleteSyncRun(ctx context.Context, id string, emailsCount int) error
	FailSyncRun(ctx context.Context, id, errMsg string) error
	UpsertEmail(ctx context.Context, e *store.Email) error
}

// SyncWorker consumes sync jobs: it drives a provider mailbox and merges
// the fetched page into the record store. Safe under at-least-once
// delivery because the merge is an idempotent upsert.
type SyncWorker struct {
	store     SyncStore
	mailboxes provider.Factory
}

// NewSyncWorker creates the sync orchestrator.
func NewSyncWorker(st SyncStore, mailboxes provider.Factory) *SyncWorker {
	return &SyncWorker{store: st, mailboxes: mailboxes}
}

// Handle processes one sync job payload.
func (w *SyncWorker) Handle(ctx context.Context, data []byte) error {
	var job queue.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("invalid sync job payload: %w", err)
	}

	log.Printf("[sync] starting %s sync for user %s (%s)", job.SyncType, job.UserID, job.Provider)

	// The audit record exists even if this handler never finishes, so a
	// stuck job is visible as a lingering in_progress run.
	runID, err := w.store.CreateSyncRun(ctx, job.UserID, job.Provider, job.SyncType)
	if err != nil {
		return fmt.Errorf("failed to open sync run: %w", err)
	}

	saved, err := w.sync(ctx, job)
	if err != nil {
		if failErr := w.store.FailSyncRun(ctx, runID, err.Error()); failErr != nil {
			log.Printf("[sync] error recording failure for run %s: %v", runID, failErr)
		}
		return err
	}

	if err := w.store.CompleteSyncRun(ctx, runID, saved); err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}

	log.Printf("[sync] completed for user %s: %d emails persisted", job.UserID, saved)
	return nil
}

func (w *SyncWorker) sync(ctx context.Context, job queue.SyncJob) (int, error) {
	name, err := provider.Parse(job.Provider)
	if err != nil {
		return 0, err
	}

	user, err := w.store.GetUser(ctx, job.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || user.AccessToken == "" {
		return 0, ErrNotAuthenticated
	}

	mailbox, err := w.mailboxes(ctx, name, user.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s mailbox: %w", name, err)
	}

	var since *time.Time
	if job.SyncType == queue.SyncTypeIncremental {
		since = job.LastSyncTime
	}

	fetched, err := mailbox.Fetch(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("fetch from %s failed: %w", name, err)
	}

	// Per-email failures are isolated: log, skip, keep going. The run's
	// final count reflects what actually landed.
	saved := 0
	for _, pe := range fetched {
		e := &store.Email{
			UserID:         user.ID,
			ExternalID:     pe.ExternalID,
			Subject:        pe.Subject,
			Sender:         pe.From,
			To:             pe.To,
			Cc:             pe.Cc,
			Body:           pe.Body,
			BodyPreview:    pe.BodyPreview,
			ReceivedAt:     pe.ReceivedAt,
			HasAttachments: pe.HasAttachments,
			IsRead:         pe.IsRead,
			Importance:     pe.Importance,
			Categories:     pe.Categories,
			ConversationID: pe.ConversationID,
		}
		if err := w.store.UpsertEmail(ctx, e); err != nil {
			log.Printf("[sync] error saving email %s: %v", pe.ExternalID, err)
			continue
		}
		saved++
	}

	return saved, nil
}
