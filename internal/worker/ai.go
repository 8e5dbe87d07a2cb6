package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mailpilot-dev/mailpilot/internal/ai"
	"github.com/mailpilot-dev/mailpilot/internal/queue"
	"github.com/mailpilot-dev/mailpilot/internal/store"
)

// maxSentEmails bounds how many of the user's sent emails a tone-learning
// run loads from local storage.
const maxSentEmails = 20

// AIStore is the record-store surface the AI orchestrator needs.
type AIStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetEmail(ctx context.Context, id string) (*store.Email, error)
	GetSummary(ctx context.Context, emailID string) (*store.EmailSummary, error)
	CreateSummary(ctx context.Context, sum *store.EmailSummary) error
	SetEmailCategories(ctx context.Context, emailID string, categories []string) error
	ListSentEmails(ctx context.Context, userID, senderEmail string, limit int) ([]*store.Email, error)
	UpsertToneProfile(ctx context.Context, p *store.ToneProfile) error
}

// Analyzer is the prompt/parse layer over the completion service.
type Analyzer interface {
	SummarizeEmail(ctx context.Context, subject, body string) (*ai.Analysis, error)
	ClassifyEmail(ctx context.Context, subject, body string) string
	LearnTone(ctx context.Context, bodies []string) (*store.ToneProfile, error)
}

// AIWorker consumes AI enrichment jobs and writes derived artifacts back
// to the record store, guarding against duplicate work.
type AIWorker struct {
	store AIStore
	ai    Analyzer
}

// NewAIWorker creates the AI enrichment orchestrator.
func NewAIWorker(st AIStore, analyzer Analyzer) *AIWorker {
	return &AIWorker{store: st, ai: analyzer}
}

// Handle processes one AI task payload.
func (w *AIWorker) Handle(ctx context.Context, data []byte) error {
	var task queue.AITask
	if err := json.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("invalid AI task payload: %w", err)
	}

	log.Printf("[ai-worker] processing %s for user %s", task.TaskType, task.UserID)

	switch task.TaskType {
	case queue.TaskSummarize:
		return w.summarize(ctx, task.EmailID)
	case queue.TaskClassify:
		return w.classify(ctx, task.EmailID)
	case queue.TaskLearnTone:
		return w.learnTone(ctx, task.UserID)
	case queue.TaskDraftReply:
		// Drafting is served synchronously on the request path; a queued
		// draft task is ignored rather than failed.
		log.Printf("[ai-worker] draft_reply task ignored, handled synchronously")
		return nil
	default:
		return fmt.Errorf("unknown AI task type %q", task.TaskType)
	}
}

// summarize creates the email's summary at most once. An existing summary
// makes a redelivered or duplicate job a no-op success.
func (w *AIWorker) summarize(ctx context.Context, emailID string) error {
	email, err := w.store.GetEmail(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to load email: %w", err)
	}
	if email == nil {
		return fmt.Errorf("email %s not found", emailID)
	}

	existing, err := w.store.GetSummary(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to check existing summary: %w", err)
	}
	if existing != nil {
		log.Printf("[ai-worker] summary already exists for email %s", emailID)
		return nil
	}

	analysis, err := w.ai.SummarizeEmail(ctx, email.Subject, email.Body)
	if err != nil {
		return err
	}

	if err := w.store.CreateSummary(ctx, &store.EmailSummary{
		EmailID:   emailID,
		Summary:   analysis.Summary,
		KeyPoints: analysis.KeyPoints,
		Sentiment: analysis.Sentiment,
		Urgency:   analysis.Urgency,
		Category:  analysis.Category,
	}); err != nil {
		return err
	}

	log.Printf("[ai-worker] email %s summarized", emailID)
	return nil
}

// classify overwrites the email's category tag. The analyzer already
// falls back to Other on any model failure, so this job only fails when
// the store does.
func (w *AIWorker) classify(ctx context.Context, emailID string) error {
	email, err := w.store.GetEmail(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to load email: %w", err)
	}
	if email == nil {
		return fmt.Errorf("email %s not found", emailID)
	}

	category := w.ai.ClassifyEmail(ctx, email.Subject, email.Body)

	if err := w.store.SetEmailCategories(ctx, email.ID, []string{category}); err != nil {
		return err
	}

	log.Printf("[ai-worker] email %s classified as %s", emailID, category)
	return nil
}

// learnTone rebuilds the user's tone profile from locally stored sent
// emails. With no samples available it exits without touching the
// profile: no profile beats one built on nothing.
func (w *AIWorker) learnTone(ctx context.Context, userID string) error {
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || user.AccessToken == "" {
		return ErrNotAuthenticated
	}

	sent, err := w.store.ListSentEmails(ctx, userID, user.Email, maxSentEmails)
	if err != nil {
		return fmt.Errorf("failed to load sent emails: %w", err)
	}

	var bodies []string
	for _, e := range sent {
		if e.Body != "" {
			bodies = append(bodies, e.Body)
		}
	}
	if len(bodies) == 0 {
		log.Printf("[ai-worker] no sent emails for user %s, skipping tone learning", userID)
		return nil
	}

	profile, err := w.ai.LearnTone(ctx, bodies)
	if err != nil {
		return err
	}

	profile.UserID = userID
	profile.SampleCount = len(bodies)
	if err := w.store.UpsertToneProfile(ctx, profile); err != nil {
		return err
	}

	log.Printf("[ai-worker] tone profile learned for user %s from %d samples", userID, len(bodies))
	return nil
}
