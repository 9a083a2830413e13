package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/store"
)

// Small inspection utility: lists sessions from the local database, or
// searches notes, transcripts, and summaries when a query is given.
func main() {
	var (
		dbPath = flag.String("db", "voicenotes.db", "Path to the session database")
		max    = flag.Int("max", 10, "Max sessions to show")
	)
	flag.Parse()

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open session database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	query := strings.Join(flag.Args(), " ")

	var sessions []domain.Session
	if query == "" {
		sessions, err = st.ListAll(ctx)
	} else {
		sessions, err = st.Search(ctx, query)
	}
	if err != nil {
		log.Fatalf("Failed to load sessions: %v", err)
	}

	shown := len(sessions)
	if shown > *max {
		shown = *max
	}
	fmt.Printf("Found %d sessions. Showing first %d:\n\n", len(sessions), shown)

	for i := 0; i < shown; i++ {
		sess := sessions[i]
		fmt.Printf("Session %s [%s]\n", sess.SessionID, sess.StateLabel())
		if sess.Title != "" {
			fmt.Printf("  Title: %s\n", sess.Title)
		}
		if sess.Time != "" {
			fmt.Printf("  Time: %s\n", sess.Time)
		}
		if sess.Location != "" {
			fmt.Printf("  Location: %s\n", sess.Location)
		}
		if sess.Note != "" {
			fmt.Printf("  Note: %s\n", sess.Note)
		}
		if sess.Summary != "" {
			fmt.Printf("  Summary: %s\n", firstLine(sess.Summary))
		}
		if sess.TranscribeError != "" {
			fmt.Printf("  Error: %s\n", sess.TranscribeError)
		}
		fmt.Println()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
