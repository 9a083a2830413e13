package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voicenotes/pkg/blob"
	"voicenotes/pkg/domain"
	"voicenotes/pkg/orchestrator"
	"voicenotes/pkg/records"
	"voicenotes/pkg/segment"
	"voicenotes/pkg/store"
	"voicenotes/pkg/summarize"
	"voicenotes/pkg/sync"
	"voicenotes/pkg/transcribe"
)

func main() {
	var (
		dbPath    = flag.String("db", "voicenotes.db", "Path to the session database")
		blobsRoot = flag.String("blobs", "blobs", "Root folder for session artifacts")

		backendURLs = flag.String("backend", "", "Comma-separated backend base URLs (primary first)")
		openaiBase  = flag.String("openai-base", "https://api.openai.com", "OpenAI-compatible API base URL (used when no backend is set)")
		openaiKey   = flag.String("openai-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
		model       = flag.String("model", "whisper-1", "Transcription model")

		deepseekBase = flag.String("deepseek-base", "https://api.deepseek.com", "Summarization API base URL")
		deepseekKey  = flag.String("deepseek-key", os.Getenv("DEEPSEEK_API_KEY"), "Summarization API key (empty disables summarization)")
		chatModel    = flag.String("chat-model", "deepseek-chat", "Summarization model")

		uploadBase   = flag.String("upload-base", "", "Backend base URL for artifact uploads (empty disables uploads)")
		uploadFolder = flag.String("upload-folder", "", "Remote folder id for artifact uploads")

		supabaseURL = flag.String("supabase-url", os.Getenv("SUPABASE_URL"), "Supabase project URL (empty disables the records sink)")
		supabaseKey = flag.String("supabase-key", os.Getenv("SUPABASE_KEY"), "Supabase API key")

		note     = flag.String("note", "", "Free-form note attached to ingested sessions")
		location = flag.String("location", "", "Location attached to ingested sessions")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open session database: %v", err)
	}
	defer st.Close()

	blobs := &blob.Store{Root: *blobsRoot}

	var provider transcribe.Provider
	if *backendURLs != "" {
		provider = transcribe.NewBackendProvider(splitCSV(*backendURLs), *deepseekKey == "")
	} else {
		if *openaiKey == "" {
			log.Fatal("Either -backend or -openai-key is required")
		}
		provider = transcribe.NewOpenAIProvider(*openaiBase, *openaiKey, *model)
	}

	var summarizer orchestrator.Summarizer
	if *deepseekKey != "" {
		summarizer = summarize.NewClient(*deepseekBase, *deepseekKey, *chatModel)
	}

	queue := orchestrator.New(orchestrator.Config{
		Store:       st,
		Segmenter:   segment.NewSegmenter(),
		Transcriber: transcribe.NewClient(provider),
		Summarizer:  summarizer,
		OnProgress: func(sessionID string, percent int) {
			log.Printf("Progress: session %s at %d%%", sessionID, percent)
		},
	})
	queue.Start(ctx)

	if err := queue.Recover(ctx); err != nil {
		log.Fatalf("Failed to recover pending sessions: %v", err)
	}

	sessionIDs, err := ingest(ctx, st, blobs, queue, flag.Args(), *note, *location)
	if err != nil {
		log.Fatalf("Failed to ingest recordings: %v", err)
	}

	waitForIdle(ctx, queue)

	sink, err := records.NewSink(records.Config{SupabaseURL: *supabaseURL, SupabaseKey: *supabaseKey})
	if err != nil {
		log.Fatalf("Failed to initialize records sink: %v", err)
	}

	var dispatcher *sync.Dispatcher
	if *uploadBase != "" {
		dispatcher = sync.NewDispatcher(sync.Config{
			Uploader: sync.NewBackendUploader(*uploadBase, *uploadFolder),
		})
	}

	for _, sessionID := range sessionIDs {
		finish(ctx, st, blobs, sink, dispatcher, sessionID)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	log.Printf("Done: %d sessions processed", len(sessionIDs))
}

// ingest creates a session per audio file, stores the audio artifact, and
// enqueues transcription.
func ingest(ctx context.Context, st store.SessionStore, blobs *blob.Store, queue *orchestrator.Queue, paths []string, note, location string) ([]string, error) {
	sessionIDs := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read recording %s: %w", path, err)
		}

		sessionID := domain.NewSessionID(time.Now())
		name := sessionID + filepath.Ext(path)
		uri, err := blobs.Save(sessionID, name, data)
		if err != nil {
			return nil, err
		}

		now := time.Now().Format(time.RFC3339)
		fields := store.UpsertFields{Time: &now, AudioURI: &uri}
		if note != "" {
			fields.Note = &note
		}
		if location != "" {
			fields.Location = &location
		}
		if _, err := st.CreateOrUpdate(ctx, sessionID, fields); err != nil {
			return nil, err
		}

		if err := queue.Enqueue(sessionID, uri); err != nil {
			return nil, err
		}
		log.Printf("Ingested %s as session %s", path, sessionID)
		sessionIDs = append(sessionIDs, sessionID)
	}
	return sessionIDs, nil
}

// finish writes the note artifact, hands both artifacts to the upload
// dispatcher, and publishes the record. All of it is best effort.
func finish(ctx context.Context, st store.SessionStore, blobs *blob.Store, sink *records.Sink, dispatcher *sync.Dispatcher, sessionID string) {
	sess, err := st.BySessionID(ctx, sessionID)
	if err != nil || sess == nil {
		log.Printf("Session %s: %v", sessionID, err)
		return
	}
	if sess.AudioState != domain.AudioDone {
		log.Printf("Session %s did not finish (state=%s, error=%q)", sessionID, sess.AudioState, sess.TranscribeError)
		return
	}

	textURI, err := blobs.Save(sessionID, sessionID+".txt", []byte(noteText(sess)))
	if err != nil {
		log.Printf("Session %s: %v", sessionID, err)
		return
	}

	if dispatcher != nil {
		dispatcher.EnqueueSession(ctx, sessionID, sess.AudioURI, textURI)
	}
	if sink != nil {
		if err := sink.Publish(ctx, sess); err != nil {
			log.Printf("Session %s: %v", sessionID, err)
		}
	}
}

// noteText renders the shareable text artifact of a finished session.
func noteText(sess *domain.Session) string {
	var b strings.Builder
	if sess.Title != "" {
		b.WriteString(sess.Title + "\n\n")
	}
	if sess.Summary != "" {
		b.WriteString(sess.Summary + "\n\n")
	}
	b.WriteString(sess.Transcript)
	b.WriteString("\n")
	return b.String()
}

// waitForIdle polls the queue until every enqueued session is terminal.
func waitForIdle(ctx context.Context, queue *orchestrator.Queue) {
	for !queue.Idle() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
