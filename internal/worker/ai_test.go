package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailpilot-dev/mailpilot/internal/ai"
	"github.com/mailpilot-dev/mailpilot/internal/queue"
	"github.com/mailpilot-dev/mailpilot/internal/store"
)

type fakeAnalyzer struct {
	summarizeCalls int
	classifyCalls  int
	learnCalls     int

	analysis     *ai.Analysis
	summarizeErr error
	category     string
	toneProfile  *store.ToneProfile
	learnErr     error
}

func (f *fakeAnalyzer) SummarizeEmail(ctx context.Context, subject, body string) (*ai.Analysis, error) {
	f.summarizeCalls++
	if f.summarizeErr != nil {
		return nil, f.summarizeErr
	}
	return f.analysis, nil
}

func (f *fakeAnalyzer) ClassifyEmail(ctx context.Context, subject, body string) string {
	f.classifyCalls++
	return f.category
}

func (f *fakeAnalyzer) LearnTone(ctx context.Context, bodies []string) (*store.ToneProfile, error) {
	f.learnCalls++
	if f.learnErr != nil {
		return nil, f.learnErr
	}
	p := *f.toneProfile
	return &p, nil
}

func newAIFixture(t *testing.T) (*store.Store, *store.User, *store.Email) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	user, err := st.CreateUser(ctx, "me@example.com", "Me", "hash")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateUserCredentials(ctx, user.ID, "gmail", "tok", "refresh", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	email := &store.Email{
		UserID:     user.ID,
		ExternalID: "ext-1",
		Subject:    "Lunch?",
		Sender:     "friend@example.com",
		Body:       "Want to grab lunch tomorrow?",
		ReceivedAt: time.Now(),
	}
	if err := st.UpsertEmail(ctx, email); err != nil {
		t.Fatal(err)
	}
	return st, user, email
}

func aiPayload(t *testing.T, task queue.AITask) []byte {
	t.Helper()
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestSummarizeCreatesSummaryOnce(t *testing.T) {
	st, user, email := newAIFixture(t)
	analyzer := &fakeAnalyzer{analysis: &ai.Analysis{
		Summary:   "An invitation to lunch.",
		KeyPoints: []string{"lunch tomorrow"},
		Sentiment: "positive",
		Urgency:   "low",
	}}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{EmailID: email.ID, UserID: user.ID, TaskType: queue.TaskSummarize})

	if err := w.Handle(context.Background(), payload); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	// Redelivery of the same task must be a no-op success with no model call.
	if err := w.Handle(context.Background(), payload); err != nil {
		t.Fatalf("redelivered handle failed: %v", err)
	}

	if analyzer.summarizeCalls != 1 {
		t.Errorf("model called %d times, want 1", analyzer.summarizeCalls)
	}

	sum, err := st.GetSummary(context.Background(), email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum == nil {
		t.Fatal("summary not created")
	}
	if sum.Summary != "An invitation to lunch." || sum.Urgency != "low" {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestSummarizeFailsForMissingEmail(t *testing.T) {
	st, user, _ := newAIFixture(t)
	analyzer := &fakeAnalyzer{}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{EmailID: "missing", UserID: user.ID, TaskType: queue.TaskSummarize})
	if err := w.Handle(context.Background(), payload); err == nil {
		t.Fatal("expected error for missing email")
	}
	if analyzer.summarizeCalls != 0 {
		t.Errorf("model called for a missing email")
	}
}

func TestSummarizeErrorPropagatesForRetry(t *testing.T) {
	st, user, email := newAIFixture(t)
	analyzer := &fakeAnalyzer{summarizeErr: errors.New("model unavailable")}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{EmailID: email.ID, UserID: user.ID, TaskType: queue.TaskSummarize})
	if err := w.Handle(context.Background(), payload); err == nil {
		t.Fatal("expected error when the model is unavailable")
	}

	sum, err := st.GetSummary(context.Background(), email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum != nil {
		t.Errorf("summary written despite model failure: %+v", sum)
	}
}

func TestClassifyOverwritesCategories(t *testing.T) {
	st, user, email := newAIFixture(t)
	analyzer := &fakeAnalyzer{category: "Personal"}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{EmailID: email.ID, UserID: user.ID, TaskType: queue.TaskClassify})
	if err := w.Handle(context.Background(), payload); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetEmail(context.Background(), email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Categories) != 1 || got.Categories[0] != "Personal" {
		t.Errorf("categories = %v, want [Personal]", got.Categories)
	}
}

func TestLearnToneSkipsWithoutSentEmails(t *testing.T) {
	st, user, _ := newAIFixture(t)
	analyzer := &fakeAnalyzer{toneProfile: &store.ToneProfile{FormalityLevel: 0.5}}
	w := NewAIWorker(st, analyzer)

	// The fixture email was received, not sent; nothing matches the
	// account address as sender.
	payload := aiPayload(t, queue.AITask{UserID: user.ID, TaskType: queue.TaskLearnTone})
	if err := w.Handle(context.Background(), payload); err != nil {
		t.Fatalf("no-sample run should succeed: %v", err)
	}

	if analyzer.learnCalls != 0 {
		t.Errorf("model called with no samples")
	}
	profile, err := st.GetToneProfile(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile != nil {
		t.Errorf("profile created from nothing: %+v", profile)
	}
}

func TestLearnToneBuildsProfileFromSentEmails(t *testing.T) {
	st, user, _ := newAIFixture(t)
	ctx := context.Background()

	// Two sent emails plus one with an empty body that must not count.
	sent := []*store.Email{
		{UserID: user.ID, ExternalID: "s1", Sender: user.Email, Body: "Hi, sounds good. Cheers", ReceivedAt: time.Unix(100, 0)},
		{UserID: user.ID, ExternalID: "s2", Sender: user.Email, Body: "Thanks, will do. Cheers", ReceivedAt: time.Unix(200, 0)},
		{UserID: user.ID, ExternalID: "s3", Sender: user.Email, Body: "", ReceivedAt: time.Unix(300, 0)},
	}
	for _, e := range sent {
		if err := st.UpsertEmail(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	analyzer := &fakeAnalyzer{toneProfile: &store.ToneProfile{
		FormalityLevel: 0.3,
		AverageLength:  12,
		CommonPhrases:  []string{"Cheers"},
		SignatureStyle: "Cheers",
	}}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{UserID: user.ID, TaskType: queue.TaskLearnTone})
	if err := w.Handle(ctx, payload); err != nil {
		t.Fatal(err)
	}

	profile, err := st.GetToneProfile(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile == nil {
		t.Fatal("profile not stored")
	}
	if profile.SampleCount != 2 {
		t.Errorf("sample count = %d, want 2 (empty bodies excluded)", profile.SampleCount)
	}
	if profile.FormalityLevel != 0.3 {
		t.Errorf("formality = %v, want 0.3", profile.FormalityLevel)
	}
}

func TestLearnToneRequiresCredential(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	user, err := st.CreateUser(context.Background(), "me@example.com", "Me", "hash")
	if err != nil {
		t.Fatal(err)
	}

	w := NewAIWorker(st, &fakeAnalyzer{})
	payload := aiPayload(t, queue.AITask{UserID: user.ID, TaskType: queue.TaskLearnTone})

	if err := w.Handle(context.Background(), payload); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestDraftReplyTaskIsIgnored(t *testing.T) {
	st, user, email := newAIFixture(t)
	analyzer := &fakeAnalyzer{}
	w := NewAIWorker(st, analyzer)

	payload := aiPayload(t, queue.AITask{EmailID: email.ID, UserID: user.ID, TaskType: queue.TaskDraftReply})
	if err := w.Handle(context.Background(), payload); err != nil {
		t.Fatalf("queued draft task should be a no-op success, got: %v", err)
	}
	if analyzer.summarizeCalls+analyzer.classifyCalls+analyzer.learnCalls != 0 {
		t.Error("draft task touched the model")
	}
}

func TestUnknownTaskTypeFails(t *testing.T) {
	st, user, _ := newAIFixture(t)
	w := NewAIWorker(st, &fakeAnalyzer{})

	payload := aiPayload(t, queue.AITask{UserID: user.ID, TaskType: "transmogrify"})
	if err := w.Handle(context.Background(), payload); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}
