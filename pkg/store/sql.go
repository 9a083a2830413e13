package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"voicenotes/pkg/domain"
)

// DBProvider is implemented by database clients that expose a sql.DB handle.
// It lets the SQLite and Postgres clients back the same store.
type DBProvider interface {
	DB() *sql.DB
}

// Dialect selects the SQL placeholder style of the underlying database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements SessionStore on any database/sql handle.
type SQLStore struct {
	provider DBProvider
	dialect  Dialect
	now      func() time.Time
}

// NewSQLStore creates a session store over an already-connected provider.
func NewSQLStore(provider DBProvider, dialect Dialect) *SQLStore {
	return &SQLStore{
		provider: provider,
		dialect:  dialect,
		now:      time.Now,
	}
}

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const sessionColumns = `sessionId, time, location, people, hashtags, note, audioUri,
	transcript, transcribeSource, transcribeError, audioState,
	title, summary, summaryError, summaryState, fileState, createdAt, updatedAt`

// CreateOrUpdate upserts one session, preserving unprovided fields and
// CreatedAt on update.
func (s *SQLStore) CreateOrUpdate(ctx context.Context, sessionID string, fields UpsertFields) (*domain.Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	db := s.provider.DB()
	now := s.now().UTC()

	existing, err := s.BySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		sess := &domain.Session{
			SessionID:    sessionID,
			AudioState:   domain.AudioNone,
			SummaryState: domain.SummaryNone,
			FileState:    domain.FileSaving,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		applyFields(sess, fields)
		_, err := db.ExecContext(ctx, s.rebind(`INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			sess.SessionID, sess.Time, sess.Location, joinList(sess.People), joinList(sess.Hashtags),
			sess.Note, sess.AudioURI,
			sess.Transcript, sess.TranscribeSource, sess.TranscribeError, string(sess.AudioState),
			sess.Title, sess.Summary, sess.SummaryError, string(sess.SummaryState), string(sess.FileState),
			formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
		if err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		return sess, nil
	}

	applyFields(existing, fields)
	existing.UpdatedAt = now
	_, err = db.ExecContext(ctx, s.rebind(`UPDATE sessions SET
		time = ?, location = ?, people = ?, hashtags = ?, note = ?, audioUri = ?,
		fileState = ?, updatedAt = ?
		WHERE sessionId = ?`),
		existing.Time, existing.Location, joinList(existing.People), joinList(existing.Hashtags),
		existing.Note, existing.AudioURI, string(existing.FileState),
		formatTime(existing.UpdatedAt), sessionID)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return existing, nil
}

// applyFields copies provided upsert fields onto a session. A saved audio
// URI flips FileState to saved.
func applyFields(sess *domain.Session, fields UpsertFields) {
	if fields.Time != nil {
		sess.Time = *fields.Time
	}
	if fields.Location != nil {
		sess.Location = *fields.Location
	}
	if fields.People != nil {
		sess.People = fields.People
	}
	if fields.Hashtags != nil {
		sess.Hashtags = fields.Hashtags
	}
	if fields.Note != nil {
		sess.Note = *fields.Note
	}
	if fields.AudioURI != nil {
		sess.AudioURI = *fields.AudioURI
		sess.FileState = domain.FileSaved
	}
}

// BySessionID returns one session, or nil when it does not exist.
func (s *SQLStore) BySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.provider.DB().QueryRowContext(ctx,
		s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE sessionId = ?`), sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// ListAll returns every session, newest first.
func (s *SQLStore) ListAll(ctx context.Context) ([]domain.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions
		ORDER BY CASE WHEN time = '' THEN 1 ELSE 0 END, time DESC, createdAt DESC`)
}

// Search matches q against note, transcript, and summary.
func (s *SQLStore) Search(ctx context.Context, q string) ([]domain.Session, error) {
	like := "%" + q + "%"
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE note LIKE ? OR transcript LIKE ? OR summary LIKE ?
		ORDER BY CASE WHEN time = '' THEN 1 ELSE 0 END, time DESC, createdAt DESC`,
		like, like, like)
}

// ListPendingTranscription returns sessions needing a (re-)enqueued
// transcription after a restart.
func (s *SQLStore) ListPendingTranscription(ctx context.Context) ([]domain.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE audioUri != '' AND transcript = '' AND transcribeError = '' AND audioState != ?`,
		string(domain.AudioDone))
}

// SetTranscribing marks the transcription attempt active.
func (s *SQLStore) SetTranscribing(ctx context.Context, sessionID string) error {
	return s.exec(ctx, `UPDATE sessions SET transcript = '', transcribeSource = '',
		audioState = ?, updatedAt = ? WHERE sessionId = ?`,
		string(domain.AudioTranscribing), formatTime(s.now().UTC()), sessionID)
}

// SetTranscript is the only path to audioState=done; it refuses empty text.
func (s *SQLStore) SetTranscript(ctx context.Context, sessionID, text, source string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("refusing to mark session %s done with an empty transcript", sessionID)
	}
	return s.exec(ctx, `UPDATE sessions SET transcript = ?, transcribeSource = ?,
		transcribeError = '', audioState = ?, updatedAt = ? WHERE sessionId = ?`,
		text, source, string(domain.AudioDone), formatTime(s.now().UTC()), sessionID)
}

// SetTranscribeError records the classified failure and leaves the session
// re-attemptable (audioState back to none).
func (s *SQLStore) SetTranscribeError(ctx context.Context, sessionID, errMsg, source string) error {
	return s.exec(ctx, `UPDATE sessions SET transcribeError = ?, transcribeSource = ?,
		audioState = ?, updatedAt = ? WHERE sessionId = ?`,
		errMsg, source, string(domain.AudioNone), formatTime(s.now().UTC()), sessionID)
}

// SetSummaryWaiting parks the summary sub-machine.
func (s *SQLStore) SetSummaryWaiting(ctx context.Context, sessionID string) error {
	return s.exec(ctx, `UPDATE sessions SET summaryState = ?, updatedAt = ? WHERE sessionId = ?`,
		string(domain.SummaryWaitingNetwork), formatTime(s.now().UTC()), sessionID)
}

// SetSummary records the summarization result; an empty title keeps the
// stored one.
func (s *SQLStore) SetSummary(ctx context.Context, sessionID, title, summary string) error {
	return s.exec(ctx, `UPDATE sessions SET title = CASE WHEN ? = '' THEN title ELSE ? END,
		summary = ?, summaryError = '', summaryState = ?, updatedAt = ? WHERE sessionId = ?`,
		title, title, summary, string(domain.SummaryDone), formatTime(s.now().UTC()), sessionID)
}

// SetSummaryError records a summarization failure without touching the
// transcript fields.
func (s *SQLStore) SetSummaryError(ctx context.Context, sessionID, errMsg string) error {
	return s.exec(ctx, `UPDATE sessions SET summaryError = ?, summaryState = ?, updatedAt = ?
		WHERE sessionId = ?`,
		errMsg, string(domain.SummaryDone), formatTime(s.now().UTC()), sessionID)
}

// Close closes the underlying handle.
func (s *SQLStore) Close() error {
	return s.provider.DB().Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.provider.DB().ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

func (s *SQLStore) querySessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.provider.DB().QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                 domain.Session
		people, hashtags     string
		audioState, sumState string
		fileState            string
		createdAt, updatedAt string
	)
	err := row.Scan(&sess.SessionID, &sess.Time, &sess.Location, &people, &hashtags,
		&sess.Note, &sess.AudioURI,
		&sess.Transcript, &sess.TranscribeSource, &sess.TranscribeError, &audioState,
		&sess.Title, &sess.Summary, &sess.SummaryError, &sumState, &fileState,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.People = splitList(people)
	sess.Hashtags = splitList(hashtags)
	sess.AudioState = domain.AudioState(audioState)
	sess.SummaryState = domain.SummaryState(sumState)
	sess.FileState = domain.FileState(fileState)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// Timestamps are stored as RFC 3339 strings, like the recorder that produced
// the original data.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
