// Package records publishes finished sessions to a Supabase table for the
// owner's cross-device search index. Publishing is best effort: the pipeline
// never fails a session because the records sink was unreachable.
package records

import (
	"context"
	"fmt"
	"strings"

	supabase "github.com/supabase-community/supabase-go"

	"voicenotes/pkg/domain"
)

const recordsTable = "records"

// Config holds the Supabase project coordinates. Leave both empty to run
// without a records sink.
type Config struct {
	// SupabaseURL is the project URL, e.g. "https://[project-ref].supabase.co".
	SupabaseURL string

	// SupabaseKey is the API key. Use the service_role key server-side.
	SupabaseKey string
}

// Sink inserts finished session records through the Supabase REST API.
type Sink struct {
	sdk *supabase.Client
}

// NewSink connects the SDK client. Returns (nil, nil) when unconfigured so
// callers can treat the sink as optional.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.SupabaseURL == "" && cfg.SupabaseKey == "" {
		return nil, nil
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("both supabase URL and key are required")
	}
	sdk, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	return &Sink{sdk: sdk}, nil
}

// record is the wire shape of one row in the records table.
type record struct {
	SessionID  string `json:"sessionId"`
	Time       string `json:"time"`
	Location   string `json:"location"`
	People     string `json:"people"`
	Hashtags   string `json:"hashtags"`
	Note       string `json:"note"`
	Transcript string `json:"transcript"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
}

// Publish upserts one finished session into the records table, keyed by
// sessionId so republishing after a retry never duplicates rows.
func (s *Sink) Publish(ctx context.Context, sess *domain.Session) error {
	row := record{
		SessionID:  sess.SessionID,
		Time:       sess.Time,
		Location:   sess.Location,
		People:     strings.Join(sess.People, ", "),
		Hashtags:   strings.Join(sess.Hashtags, ", "),
		Note:       sess.Note,
		Transcript: sess.Transcript,
		Title:      sess.Title,
		Summary:    sess.Summary,
	}

	_, _, err := s.sdk.From(recordsTable).
		Insert(row, true, "sessionId", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert record %s: %w", sess.SessionID, err)
	}
	return nil
}
