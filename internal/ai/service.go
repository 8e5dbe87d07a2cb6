package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/mailpilot-dev/mailpilot/internal/store"
)

// Defaults filled in when the model omits or mangles a field. Data-shape
// problems are absorbed here; they never fail a job.
const (
	DefaultSummary       = "No summary available"
	DefaultSentiment     = "neutral"
	DefaultUrgency       = "medium"
	DefaultFormality     = 0.5
	DefaultAverageLength = 100
)

// CategoryOther is the catch-all classification label.
const CategoryOther = "Other"

// Categories is the closed label set for classification.
var Categories = []string{
	"Work/Professional",
	"Personal",
	"Marketing/Promotional",
	"Social/Notifications",
	"Finance",
	"Travel",
	"Shopping",
	CategoryOther,
}

const (
	maxSummaryBodyChars  = 2000
	maxClassifyBodyChars = 500
	maxReplyBodyChars    = 1000
	maxToneSamples       = 10
	maxCommonPhrases     = 5
	toneSampleSeparator  = "\n\n---\n\n"
)

// Completer is the completion-service collaborator.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, error)
}

// Analysis is the structured result of summarizing one email.
type Analysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
	Sentiment string   `json:"sentiment"`
	Urgency   string   `json:"urgency"`
	Category  string   `json:"category"`
}

// ToneAnalysis is the structured result of a tone-learning run.
type ToneAnalysis struct {
	FormalityLevel *float64 `json:"formalityLevel"`
	AverageLength  *int     `json:"averageLength"`
	CommonPhrases  []string `json:"commonPhrases"`
	SignatureStyle string   `json:"signatureStyle"`
}

// Service builds prompts, calls the completion service and decodes the
// responses defensively.
type Service struct {
	llm Completer
}

// NewService creates the AI service over a completion client.
func NewService(llm Completer) *Service {
	return &Service{llm: llm}
}

// SummarizeEmail asks for a structured analysis of one email. Missing or
// malformed fields in the response fall back to named defaults; only a
// completion-service failure returns an error.
func (s *Service) SummarizeEmail(ctx context.Context, subject, body string) (*Analysis, error) {
	prompt := fmt.Sprintf(`Analyze the following email and provide:
1. A concise summary (2-3 sentences)
2. Key points (bullet points)
3. Sentiment (positive/neutral/negative)
4. Urgency level (low/medium/high)
5. Suggested category

Email Subject: %s
Email Body: %s

Respond in JSON format with keys: summary, keyPoints (array), sentiment, urgency, category`,
		subject, truncate(body, maxSummaryBodyChars))

	content, err := s.llm.Complete(ctx,
		"You are an expert email analyst. Analyze emails and provide structured insights.",
		prompt,
		CompleteOptions{Temperature: 0.3, JSONObject: true})
	if err != nil {
		return nil, fmt.Errorf("summarize completion failed: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal(stripFences(content), &analysis); err != nil {
		log.Printf("[ai] malformed summary response, using defaults: %v", err)
	}

	if analysis.Summary == "" {
		analysis.Summary = DefaultSummary
	}
	if analysis.KeyPoints == nil {
		analysis.KeyPoints = []string{}
	}
	if analysis.Sentiment == "" {
		analysis.Sentiment = DefaultSentiment
	}
	if analysis.Urgency == "" {
		analysis.Urgency = DefaultUrgency
	}

	return &analysis, nil
}

// ClassifyEmail returns one label from the closed category set. Any model
// failure or out-of-set answer falls back to Other; classification never
// fails the caller.
func (s *Service) ClassifyEmail(ctx context.Context, subject, body string) string {
	prompt := fmt.Sprintf(`Classify this email into one of these categories:
- %s

Email Subject: %s
Email Body: %s

Return only the category name.`,
		strings.Join(Categories, "\n- "), subject, truncate(body, maxClassifyBodyChars))

	content, err := s.llm.Complete(ctx,
		"You are an email classifier. Respond with only the category name.",
		prompt,
		CompleteOptions{Temperature: 0.2, MaxTokens: 20})
	if err != nil {
		log.Printf("[ai] classify failed, falling back to %s: %v", CategoryOther, err)
		return CategoryOther
	}

	label := strings.TrimSpace(content)
	for _, c := range Categories {
		if strings.EqualFold(label, c) {
			return c
		}
	}
	return CategoryOther
}

// LearnTone derives writing-style parameters from sent-email bodies. At
// most the first maxToneSamples bodies are sent to the model. Numeric
// fields absent from the response get neutral defaults.
func (s *Service) LearnTone(ctx context.Context, bodies []string) (*store.ToneProfile, error) {
	samples := bodies
	if len(samples) > maxToneSamples {
		samples = samples[:maxToneSamples]
	}

	prompt := fmt.Sprintf(`Analyze these sent emails and extract the writing style characteristics:

%s

Provide analysis in JSON format with:
- formalityLevel: 0-1 (0=casual, 1=very formal)
- averageLength: average word count
- commonPhrases: array of frequently used phrases (max 5)
- signatureStyle: description of how they sign off

Respond in JSON format.`, strings.Join(samples, toneSampleSeparator))

	content, err := s.llm.Complete(ctx,
		"You are an expert in writing style analysis.",
		prompt,
		CompleteOptions{Temperature: 0.3, JSONObject: true})
	if err != nil {
		return nil, fmt.Errorf("tone analysis completion failed: %w", err)
	}

	var analysis ToneAnalysis
	if err := json.Unmarshal(stripFences(content), &analysis); err != nil {
		log.Printf("[ai] malformed tone response, using defaults: %v", err)
	}

	profile := &store.ToneProfile{
		FormalityLevel: DefaultFormality,
		AverageLength:  DefaultAverageLength,
		CommonPhrases:  []string{},
		SignatureStyle: analysis.SignatureStyle,
	}
	if analysis.FormalityLevel != nil {
		profile.FormalityLevel = *analysis.FormalityLevel
	}
	if analysis.AverageLength != nil {
		profile.AverageLength = *analysis.AverageLength
	}
	if len(analysis.CommonPhrases) > maxCommonPhrases {
		profile.CommonPhrases = analysis.CommonPhrases[:maxCommonPhrases]
	} else if analysis.CommonPhrases != nil {
		profile.CommonPhrases = analysis.CommonPhrases
	}

	return profile, nil
}

// GenerateReply expands a shorthand instruction into a full reply in the
// user's tone. The returned tone label is derived from the profile alone,
// independent of the generated content.
func (s *Service) GenerateReply(ctx context.Context, subject, body, shorthand string, profile *store.ToneProfile) (string, string, error) {
	prompt := fmt.Sprintf(`Generate a professional email reply based on the shorthand input.

Original Email Subject: %s
Original Email Body: %s

Shorthand Reply: %s

%s

Generate a complete, well-formatted email reply that expands on the shorthand while maintaining the user's tone and style.`,
		subject, truncate(body, maxReplyBodyChars), shorthand, buildToneInstructions(profile))

	content, err := s.llm.Complete(ctx,
		"You are an expert email writer. Generate professional, contextual email replies.",
		prompt,
		CompleteOptions{Temperature: 0.7, MaxTokens: 500})
	if err != nil {
		return "", "", fmt.Errorf("reply completion failed: %w", err)
	}

	return content, describeTone(profile), nil
}

// buildToneInstructions turns profile numbers into a natural-language
// instruction block. Thresholds are strict greater-than on both sides.
func buildToneInstructions(profile *store.ToneProfile) string {
	if profile == nil {
		return "Use a professional, friendly tone."
	}

	var formality string
	switch {
	case profile.FormalityLevel > 0.7:
		formality = "very formal and professional"
	case profile.FormalityLevel > 0.4:
		formality = "professional but friendly"
	default:
		formality = "casual and conversational"
	}

	var length string
	switch {
	case profile.AverageLength > 150:
		length = "detailed and comprehensive"
	case profile.AverageLength > 80:
		length = "moderate length"
	default:
		length = "concise and brief"
	}

	phrases := profile.CommonPhrases
	if len(phrases) > 3 {
		phrases = phrases[:3]
	}

	return fmt.Sprintf(`Tone Instructions:
- Writing style: %s
- Response length: %s (aim for ~%d words)
- Common phrases to use: %s
- Sign-off style: %s`,
		formality, length, profile.AverageLength,
		strings.Join(phrases, ", "), profile.SignatureStyle)
}

// describeTone reduces the profile to a coarse label for the client.
func describeTone(profile *store.ToneProfile) string {
	if profile == nil {
		return "professional"
	}
	if profile.FormalityLevel > 0.7 {
		return "formal"
	}
	if profile.FormalityLevel > 0.4 {
		return "professional"
	}
	return "casual"
}

// stripFences removes a markdown code fence the model sometimes wraps
// JSON responses in.
func stripFences(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
