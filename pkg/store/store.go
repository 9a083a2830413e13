// Package store is the single source of truth for pipeline progress.
//
// Session rows are owned exclusively by this package: the orchestrator and
// every other caller mutate sessions only through the operations below, each
// of which is a single atomic per-row statement. No operation can set
// audioState=done without writing a non-empty transcript in the same
// statement, so the store invariant holds by construction.
package store

import (
	"context"
	"fmt"
	"strings"

	"voicenotes/pkg/domain"
)

// UpsertFields carries the optional fields of CreateOrUpdate. A nil field
// means "leave unchanged", not "clear".
type UpsertFields struct {
	Time     *string
	Location *string
	People   []string
	Hashtags []string
	Note     *string

	// AudioURI, once set, marks the recording artifact as saved.
	AudioURI *string
}

// SessionStore is the pipeline's job store, keyed by session id.
type SessionStore interface {
	// CreateOrUpdate upserts a session row. On update, fields left nil keep
	// their stored value and CreatedAt is preserved; UpdatedAt is always
	// stamped.
	CreateOrUpdate(ctx context.Context, sessionID string, fields UpsertFields) (*domain.Session, error)

	// BySessionID returns one session or nil when absent.
	BySessionID(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListAll returns all sessions, newest first.
	ListAll(ctx context.Context) ([]domain.Session, error)

	// Search returns sessions whose note, transcript, or summary contains q.
	Search(ctx context.Context, q string) ([]domain.Session, error)

	// SetTranscribing marks the transcription attempt as active.
	SetTranscribing(ctx context.Context, sessionID string) error

	// SetTranscript records a successful transcription: it writes the text
	// and source, clears the error, and flips audioState to done in one
	// statement. Empty text is rejected.
	SetTranscript(ctx context.Context, sessionID, text, source string) error

	// SetTranscribeError records a classified failure and resets audioState
	// to none so the session is never stuck "transcribing".
	SetTranscribeError(ctx context.Context, sessionID, errMsg, source string) error

	// SetSummaryWaiting parks the summary sub-machine until network/work is
	// available.
	SetSummaryWaiting(ctx context.Context, sessionID string) error

	// SetSummary records the summarization result. An empty title keeps the
	// stored title.
	SetSummary(ctx context.Context, sessionID, title, summary string) error

	// SetSummaryError records a summarization failure; the transcript is
	// untouched.
	SetSummaryError(ctx context.Context, sessionID, errMsg string) error

	// ListPendingTranscription returns sessions with audio saved but no
	// transcript, no transcription error, and audioState != done. Used for
	// crash-recovery re-enqueue.
	ListPendingTranscription(ctx context.Context) ([]domain.Session, error)

	Close() error
}

// joinList flattens a string list for a TEXT column.
func joinList(items []string) string {
	return strings.Join(items, ",")
}

// splitList restores a string list from a TEXT column.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// validateSessionID rejects blank keys early with a clear error.
func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}
