package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mailpilot-dev/mailpilot/internal/store"
)

type fakeCompleter struct {
	response string
	err      error

	calls      int
	lastSystem string
	lastUser   string
	lastOpts   CompleteOptions
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestSummarizeEmailParsesFullResponse(t *testing.T) {
	llm := &fakeCompleter{response: `{
		"summary": "A lunch invitation.",
		"keyPoints": ["tomorrow", "noon"],
		"sentiment": "positive",
		"urgency": "low",
		"category": "Personal"
	}`}
	s := NewService(llm)

	got, err := s.SummarizeEmail(context.Background(), "Lunch?", "Want to grab lunch tomorrow at noon?")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "A lunch invitation." {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyPoints) != 2 {
		t.Errorf("keyPoints = %v", got.KeyPoints)
	}
	if got.Sentiment != "positive" || got.Urgency != "low" || got.Category != "Personal" {
		t.Errorf("unexpected analysis: %+v", got)
	}
	if !llm.lastOpts.JSONObject {
		t.Error("summarize should request a JSON object response")
	}
}

func TestSummarizeEmailFillsMissingFields(t *testing.T) {
	llm := &fakeCompleter{response: `{"keyPoints": ["one point"]}`}
	s := NewService(llm)

	got, err := s.SummarizeEmail(context.Background(), "subj", "body")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != DefaultSummary {
		t.Errorf("summary = %q, want default", got.Summary)
	}
	if got.Sentiment != DefaultSentiment {
		t.Errorf("sentiment = %q, want %q", got.Sentiment, DefaultSentiment)
	}
	if got.Urgency != DefaultUrgency {
		t.Errorf("urgency = %q, want %q", got.Urgency, DefaultUrgency)
	}
	if len(got.KeyPoints) != 1 {
		t.Errorf("keyPoints = %v", got.KeyPoints)
	}
}

func TestSummarizeEmailSurvivesMalformedResponse(t *testing.T) {
	llm := &fakeCompleter{response: "I'm sorry, I cannot do that."}
	s := NewService(llm)

	got, err := s.SummarizeEmail(context.Background(), "subj", "body")
	if err != nil {
		t.Fatalf("malformed response should not fail: %v", err)
	}
	if got.Summary != DefaultSummary || got.Sentiment != DefaultSentiment || got.Urgency != DefaultUrgency {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.KeyPoints == nil {
		t.Error("keyPoints should be empty, not nil")
	}
}

func TestSummarizeEmailStripsCodeFences(t *testing.T) {
	llm := &fakeCompleter{response: "```json\n{\"summary\": \"fenced\"}\n```"}
	s := NewService(llm)

	got, err := s.SummarizeEmail(context.Background(), "subj", "body")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "fenced" {
		t.Errorf("summary = %q, want fenced content parsed", got.Summary)
	}
}

func TestSummarizeEmailPropagatesCompletionError(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("rate limited")}
	s := NewService(llm)

	if _, err := s.SummarizeEmail(context.Background(), "subj", "body"); err == nil {
		t.Fatal("expected completion error to propagate")
	}
}

func TestClassifyEmail(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     string
	}{
		{name: "exact label", response: "Finance", want: "Finance"},
		{name: "case and whitespace", response: "  work/professional \n", want: "Work/Professional"},
		{name: "out of set", response: "Spam", want: CategoryOther},
		{name: "empty response", response: "", want: CategoryOther},
		{name: "completion error", err: errors.New("boom"), want: CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&fakeCompleter{response: tt.response, err: tt.err})
			if got := s.ClassifyEmail(context.Background(), "subj", "body"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLearnToneAppliesDefaults(t *testing.T) {
	llm := &fakeCompleter{response: `{"signatureStyle": "Best, X"}`}
	s := NewService(llm)

	got, err := s.LearnTone(context.Background(), []string{"hello there"})
	if err != nil {
		t.Fatal(err)
	}
	if got.FormalityLevel != DefaultFormality {
		t.Errorf("formality = %v, want %v", got.FormalityLevel, DefaultFormality)
	}
	if got.AverageLength != DefaultAverageLength {
		t.Errorf("averageLength = %d, want %d", got.AverageLength, DefaultAverageLength)
	}
	if got.SignatureStyle != "Best, X" {
		t.Errorf("signatureStyle = %q", got.SignatureStyle)
	}
	if got.CommonPhrases == nil {
		t.Error("commonPhrases should be empty, not nil")
	}
}

func TestLearnToneZeroFormalityIsPreserved(t *testing.T) {
	// An explicit 0 from the model is a real value, not a missing field.
	llm := &fakeCompleter{response: `{"formalityLevel": 0, "averageLength": 30}`}
	s := NewService(llm)

	got, err := s.LearnTone(context.Background(), []string{"yo"})
	if err != nil {
		t.Fatal(err)
	}
	if got.FormalityLevel != 0 {
		t.Errorf("formality = %v, want explicit 0", got.FormalityLevel)
	}
	if got.AverageLength != 30 {
		t.Errorf("averageLength = %d, want 30", got.AverageLength)
	}
}

func TestLearnToneCapsPhrasesAndSamples(t *testing.T) {
	llm := &fakeCompleter{response: `{"commonPhrases": ["a","b","c","d","e","f","g"]}`}
	s := NewService(llm)

	bodies := make([]string, 15)
	for i := range bodies {
		bodies[i] = "sample"
	}

	got, err := s.LearnTone(context.Background(), bodies)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.CommonPhrases) != 5 {
		t.Errorf("phrases = %d, want capped at 5", len(got.CommonPhrases))
	}

	// 10 samples joined by 9 separators.
	if n := strings.Count(llm.lastUser, toneSampleSeparator); n != 9 {
		t.Errorf("prompt carries %d separators, want 9 (10 samples)", n)
	}
}

func TestGenerateReplyUsesToneProfile(t *testing.T) {
	llm := &fakeCompleter{response: "Hi,\n\nSounds great, see you then.\n\nCheers"}
	s := NewService(llm)

	profile := &store.ToneProfile{
		FormalityLevel: 0.2,
		AverageLength:  40,
		CommonPhrases:  []string{"cheers", "sounds great", "no worries", "catch you later"},
		SignatureStyle: "Cheers",
	}

	reply, tone, err := s.GenerateReply(context.Background(), "Lunch?", "Want lunch?", "yes, 12pm works", profile)
	if err != nil {
		t.Fatal(err)
	}
	if reply == "" {
		t.Error("empty reply")
	}
	if tone != "casual" {
		t.Errorf("tone = %q, want casual for low formality", tone)
	}
	if !strings.Contains(llm.lastUser, "casual and conversational") {
		t.Error("tone instructions missing from prompt")
	}
	// Only the first three phrases go into the prompt.
	if strings.Contains(llm.lastUser, "catch you later") {
		t.Error("phrase list not capped at 3 in prompt")
	}
}

func TestGenerateReplyWithoutProfile(t *testing.T) {
	llm := &fakeCompleter{response: "Dear sender, ..."}
	s := NewService(llm)

	_, tone, err := s.GenerateReply(context.Background(), "s", "b", "ok", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tone != "professional" {
		t.Errorf("tone = %q, want professional default", tone)
	}
	if !strings.Contains(llm.lastUser, "Use a professional, friendly tone.") {
		t.Error("default tone instruction missing from prompt")
	}
}

func TestBuildToneInstructionsThresholds(t *testing.T) {
	tests := []struct {
		formality float64
		length    int
		wantStyle string
		wantLen   string
	}{
		{0.71, 151, "very formal and professional", "detailed and comprehensive"},
		{0.7, 150, "professional but friendly", "moderate length"},
		{0.41, 81, "professional but friendly", "moderate length"},
		{0.4, 80, "casual and conversational", "concise and brief"},
		{0.0, 0, "casual and conversational", "concise and brief"},
	}

	for _, tt := range tests {
		got := buildToneInstructions(&store.ToneProfile{
			FormalityLevel: tt.formality,
			AverageLength:  tt.length,
		})
		if !strings.Contains(got, tt.wantStyle) {
			t.Errorf("formality %v: missing %q in %q", tt.formality, tt.wantStyle, got)
		}
		if !strings.Contains(got, tt.wantLen) {
			t.Errorf("length %d: missing %q in %q", tt.length, tt.wantLen, got)
		}
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := strings.Repeat("é", 100) // 2 bytes per rune

	got := truncate(s, 51)
	if !utf8.ValidString(got) {
		t.Errorf("truncate split a rune: %q", got[len(got)-2:])
	}
	if len(got) != 50 {
		t.Errorf("len = %d, want 50 (backed off the split byte)", len(got))
	}

	if got := truncate("short", 100); got != "short" {
		t.Errorf("short input modified: %q", got)
	}
	if got := truncate("ascii only", 5); got != "ascii" {
		t.Errorf("ascii cut = %q", got)
	}
}

func TestDescribeTone(t *testing.T) {
	tests := []struct {
		profile *store.ToneProfile
		want    string
	}{
		{nil, "professional"},
		{&store.ToneProfile{FormalityLevel: 0.8}, "formal"},
		{&store.ToneProfile{FormalityLevel: 0.7}, "professional"},
		{&store.ToneProfile{FormalityLevel: 0.5}, "professional"},
		{&store.ToneProfile{FormalityLevel: 0.4}, "casual"},
		{&store.ToneProfile{FormalityLevel: 0.1}, "casual"},
	}

	for _, tt := range tests {
		if got := describeTone(tt.profile); got != tt.want {
			t.Errorf("describeTone(%+v) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}
