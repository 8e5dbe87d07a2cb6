package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Sync run statuses. A run is created in_progress and moves exactly once
// to success or failed.
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusFailed     = "failed"
)

// User is an account with provider credentials attached after the
// OAuth callback. Credentials are replaced wholesale on every refresh.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PasswordHash   string     `json:"-"`
	Provider       string     `json:"provider"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Email is the local copy of a provider message. The (UserID, ExternalID)
// pair is the merge key; subject, body and received_at never change after
// the first observation.
type Email struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ExternalID     string    `json:"externalId"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"from"`
	To             []string  `json:"to"`
	Cc             []string  `json:"cc"`
	Body           string    `json:"body"`
	BodyPreview    string    `json:"bodyPreview"`
	ReceivedAt     time.Time `json:"receivedDateTime"`
	HasAttachments bool      `json:"hasAttachments"`
	IsRead         bool      `json:"isRead"`
	Importance     string    `json:"importance"`
	Categories     []string  `json:"categories"`
	ConversationID string    `json:"conversationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EmailSummary is the one-per-email enrichment artifact.
type EmailSummary struct {
	ID        string    `json:"id"`
	EmailID   string    `json:"emailId"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"keyPoints"`
	Sentiment string    `json:"sentiment"`
	Urgency   string    `json:"urgency"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DraftReply is an append-only generated reply; every request makes a new one.
type DraftReply struct {
	ID             string    `json:"id"`
	EmailID        string    `json:"emailId"`
	Shorthand      string    `json:"shorthand"`
	GeneratedReply string    `json:"generatedReply"`
	Tone           string    `json:"tone"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ToneProfile holds per-user writing-style parameters, fully replaced on
// each learning run.
type ToneProfile struct {
	UserID         string    `json:"userId"`
	FormalityLevel float64   `json:"formalityLevel"`
	AverageLength  int       `json:"averageLength"`
	CommonPhrases  []string  `json:"commonPhrases"`
	SignatureStyle string    `json:"signatureStyle"`
	SampleCount    int       `json:"sampleCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SyncRun is the audit record for one sync job execution.
type SyncRun struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Provider    string     `json:"provider"`
	SyncType    string     `json:"syncType"`
	Status      string     `json:"status"`
	EmailsCount int        `json:"emailsCount"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Store is the durable record store backing the whole service.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	now := time.Now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.PasswordHash, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// GetUser returns the user by id, or nil when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, provider, access_token, refresh_token,
		       token_expires_at, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

// GetUserByEmail returns the user by email address, or nil when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, provider, access_token, refresh_token,
		       token_expires_at, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var expires sql.NullInt64
	var created, updated int64

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Provider,
		&u.AccessToken, &u.RefreshToken, &expires, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if expires.Valid {
		t := time.Unix(expires.Int64, 0)
		u.TokenExpiresAt = &t
	}
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return &u, nil
}

// UpdateUserCredentials replaces the user's provider credential after an
// OAuth callback or refresh.
func (s *Store) UpdateUserCredentials(ctx context.Context, userID, provider, accessToken, refreshToken string, expiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET provider = ?, access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`, provider, accessToken, refreshToken, expiry.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return nil
}

// ListConnectedUsers returns users that have a provider credential stored.
func (s *Store) ListConnectedUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, password_hash, provider, access_token, refresh_token,
		       token_expires_at, created_at, updated_at
		FROM users WHERE provider != '' AND access_token != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var expires sql.NullInt64
		var created, updated int64
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Provider,
			&u.AccessToken, &u.RefreshToken, &expires, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if expires.Valid {
			t := time.Unix(expires.Int64, 0)
			u.TokenExpiresAt = &t
		}
		u.CreatedAt = time.Unix(created, 0)
		u.UpdatedAt = time.Unix(updated, 0)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpsertEmail merges a fetched email by (user_id, external_id). On first
// observation the full record is inserted; on conflict only the mutable
// fields (is_read, importance, categories) are updated.
func (s *Store) UpsertEmail(ctx context.Context, e *Email) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (id, user_id, external_id, subject, sender, to_addrs, cc_addrs,
		                    body, body_preview, received_at, has_attachments, is_read,
		                    importance, categories, conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, external_id) DO UPDATE SET
			is_read    = excluded.is_read,
			importance = excluded.importance,
			categories = excluded.categories
	`, e.ID, e.UserID, e.ExternalID, e.Subject, e.Sender, marshalStrings(e.To),
		marshalStrings(e.Cc), e.Body, e.BodyPreview, e.ReceivedAt.Unix(),
		boolToInt(e.HasAttachments), boolToInt(e.IsRead), e.Importance,
		marshalStrings(e.Categories), e.ConversationID, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}
	return nil
}

// GetEmail returns the email by id, or nil when absent.
func (s *Store) GetEmail(ctx context.Context, id string) (*Email, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, external_id, subject, sender, to_addrs, cc_addrs, body,
		       body_preview, received_at, has_attachments, is_read, importance,
		       categories, conversation_id, created_at
		FROM emails WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query email: %w", err)
	}
	defer rows.Close()

	emails, err := scanEmails(rows)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, nil
	}
	return emails[0], nil
}

// ListEmails returns a page of the user's emails, newest first.
func (s *Store) ListEmails(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]*Email, error) {
	query := `
		SELECT id, user_id, external_id, subject, sender, to_addrs, cc_addrs, body,
		       body_preview, received_at, has_attachments, is_read, importance,
		       categories, conversation_id, created_at
		FROM emails WHERE user_id = ?`
	args := []interface{}{userID}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY received_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

// CountEmails counts the user's emails, optionally unread only.
func (s *Store) CountEmails(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM emails WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return n, nil
}

// ListSentEmails returns up to limit of the user's own sent emails, newest
// first, identified by the sender matching the account address.
func (s *Store) ListSentEmails(ctx context.Context, userID, senderEmail string, limit int) ([]*Email, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, external_id, subject, sender, to_addrs, cc_addrs, body,
		       body_preview, received_at, has_attachments, is_read, importance,
		       categories, conversation_id, created_at
		FROM emails
		WHERE user_id = ? AND sender = ?
		ORDER BY received_at DESC
		LIMIT ?
	`, userID, senderEmail, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent emails: %w", err)
	}
	defer rows.Close()

	return scanEmails(rows)
}

// MarkEmailRead flips the read flag on one of the user's emails.
func (s *Store) MarkEmailRead(ctx context.Context, userID, emailID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE emails SET is_read = 1 WHERE id = ? AND user_id = ?
	`, emailID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark email read: %w", err)
	}
	return nil
}

// SetEmailCategories overwrites the email's category tags.
func (s *Store) SetEmailCategories(ctx context.Context, emailID string, categories []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE emails SET categories = ? WHERE id = ?
	`, marshalStrings(categories), emailID)
	if err != nil {
		return fmt.Errorf("failed to set categories: %w", err)
	}
	return nil
}

func scanEmails(rows *sql.Rows) ([]*Email, error) {
	var emails []*Email
	for rows.Next() {
		var e Email
		var toJSON, ccJSON, catJSON string
		var received, created int64
		var hasAtt, isRead int

		if err := rows.Scan(&e.ID, &e.UserID, &e.ExternalID, &e.Subject, &e.Sender,
			&toJSON, &ccJSON, &e.Body, &e.BodyPreview, &received, &hasAtt, &isRead,
			&e.Importance, &catJSON, &e.ConversationID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}

		e.To = unmarshalStrings(toJSON)
		e.Cc = unmarshalStrings(ccJSON)
		e.Categories = unmarshalStrings(catJSON)
		e.ReceivedAt = time.Unix(received, 0)
		e.CreatedAt = time.Unix(created, 0)
		e.HasAttachments = hasAtt != 0
		e.IsRead = isRead != 0
		emails = append(emails, &e)
	}
	return emails, rows.Err()
}

// GetSummary returns the summary for an email, or nil when none exists.
func (s *Store) GetSummary(ctx context.Context, emailID string) (*EmailSummary, error) {
	var sum EmailSummary
	var keyPointsJSON string
	var created int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email_id, summary, key_points, sentiment, urgency, category, created_at
		FROM email_summaries WHERE email_id = ?
	`, emailID).Scan(&sum.ID, &sum.EmailID, &sum.Summary, &keyPointsJSON,
		&sum.Sentiment, &sum.Urgency, &sum.Category, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	sum.KeyPoints = unmarshalStrings(keyPointsJSON)
	sum.CreatedAt = time.Unix(created, 0)
	return &sum, nil
}

// CreateSummary inserts the summary for an email. The UNIQUE constraint on
// email_id makes a concurrent duplicate a silent no-op rather than an error.
func (s *Store) CreateSummary(ctx context.Context, sum *EmailSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_summaries (id, email_id, summary, key_points, sentiment, urgency, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email_id) DO NOTHING
	`, sum.ID, sum.EmailID, sum.Summary, marshalStrings(sum.KeyPoints),
		sum.Sentiment, sum.Urgency, sum.Category, sum.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	return nil
}

// CreateDraftReply appends a generated draft.
func (s *Store) CreateDraftReply(ctx context.Context, d *DraftReply) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draft_replies (id, email_id, shorthand, generated_reply, tone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.EmailID, d.Shorthand, d.GeneratedReply, d.Tone, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create draft reply: %w", err)
	}
	return nil
}

// ListDraftReplies returns up to limit drafts for an email, newest first.
func (s *Store) ListDraftReplies(ctx context.Context, emailID string, limit int) ([]*DraftReply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email_id, shorthand, generated_reply, tone, created_at
		FROM draft_replies WHERE email_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, emailID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft replies: %w", err)
	}
	defer rows.Close()

	var drafts []*DraftReply
	for rows.Next() {
		var d DraftReply
		var created int64
		if err := rows.Scan(&d.ID, &d.EmailID, &d.Shorthand, &d.GeneratedReply, &d.Tone, &created); err != nil {
			return nil, fmt.Errorf("failed to scan draft reply: %w", err)
		}
		d.CreatedAt = time.Unix(created, 0)
		drafts = append(drafts, &d)
	}
	return drafts, rows.Err()
}

// GetToneProfile returns the user's tone profile, or nil when none exists.
func (s *Store) GetToneProfile(ctx context.Context, userID string) (*ToneProfile, error) {
	var p ToneProfile
	var phrasesJSON string
	var updated int64

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, formality_level, average_length, common_phrases, signature_style, sample_count, updated_at
		FROM tone_profiles WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.FormalityLevel, &p.AverageLength, &phrasesJSON,
		&p.SignatureStyle, &p.SampleCount, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tone profile: %w", err)
	}

	p.CommonPhrases = unmarshalStrings(phrasesJSON)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

// UpsertToneProfile fully replaces the user's tone profile.
func (s *Store) UpsertToneProfile(ctx context.Context, p *ToneProfile) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tone_profiles (user_id, formality_level, average_length, common_phrases, signature_style, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			formality_level = excluded.formality_level,
			average_length  = excluded.average_length,
			common_phrases  = excluded.common_phrases,
			signature_style = excluded.signature_style,
			sample_count    = excluded.sample_count,
			updated_at      = excluded.updated_at
	`, p.UserID, p.FormalityLevel, p.AverageLength, marshalStrings(p.CommonPhrases),
		p.SignatureStyle, p.SampleCount, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert tone profile: %w", err)
	}
	return nil
}

// CreateSyncRun opens a new in_progress audit record and returns its id.
func (s *Store) CreateSyncRun(ctx context.Context, userID, provider, syncType string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, user_id, provider, sync_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, provider, syncType, SyncStatusInProgress, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to create sync run: %w", err)
	}
	return id, nil
}

// CompleteSyncRun marks the run success with the persisted-email count.
// Terminal states are write-once: an already finished run is left untouched.
func (s *Store) CompleteSyncRun(ctx context.Context, id string, emailsCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, emails_count = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, SyncStatusSuccess, emailsCount, time.Now().Unix(), id, SyncStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	return nil
}

// FailSyncRun marks the run failed with the error detail, same write-once rule.
func (s *Store) FailSyncRun(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, SyncStatusFailed, errMsg, time.Now().Unix(), id, SyncStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to fail sync run: %w", err)
	}
	return nil
}

// GetSyncRun returns the run by id, or nil when absent.
func (s *Store) GetSyncRun(ctx context.Context, id string) (*SyncRun, error) {
	var r SyncRun
	var started int64
	var completed sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, sync_type, status, emails_count, error, started_at, completed_at
		FROM sync_runs WHERE id = ?
	`, id).Scan(&r.ID, &r.UserID, &r.Provider, &r.SyncType, &r.Status,
		&r.EmailsCount, &r.Error, &started, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}

	r.StartedAt = time.Unix(started, 0)
	if completed.Valid {
		t := time.Unix(completed.Int64, 0)
		r.CompletedAt = &t
	}
	return &r, nil
}

// ListSyncRuns returns up to limit of the user's sync runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, userID string, limit int) ([]*SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, sync_type, status, emails_count, error, started_at, completed_at
		FROM sync_runs WHERE user_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		var started int64
		var completed sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Provider, &r.SyncType, &r.Status,
			&r.EmailsCount, &r.Error, &started, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if completed.Valid {
			t := time.Unix(completed.Int64, 0)
			r.CompletedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// LastSuccessfulSyncTime returns when the user's latest successful sync
// finished, or nil if there has never been one.
func (s *Store) LastSuccessfulSyncTime(ctx context.Context, userID string) (*time.Time, error) {
	var completed sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT completed_at FROM sync_runs
		WHERE user_id = ? AND status = ?
		ORDER BY completed_at DESC LIMIT 1
	`, userID, SyncStatusSuccess).Scan(&completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last sync time: %w", err)
	}
	if !completed.Valid {
		return nil, nil
	}
	t := time.Unix(completed.Int64, 0)
	return &t, nil
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return []string{}
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
