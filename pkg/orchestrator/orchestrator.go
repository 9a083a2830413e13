// Package orchestrator drives sessions through the transcode, transcribe,
// summarize, and persist stages.
//
// One queue owns one worker goroutine: sessions are processed strictly one
// at a time, bounding remote-API concurrency and keeping large uploads from
// interleaving. Enqueue is append + dedupe by session id, so re-enqueueing a
// session that is already queued or running never creates a second worker
// for it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"voicenotes/pkg/blob"
	"voicenotes/pkg/domain"
	"voicenotes/pkg/segment"
	"voicenotes/pkg/store"
	"voicenotes/pkg/summarize"
	"voicenotes/pkg/transcribe"
)

// Preparer produces provider-compliant chunks from one audio file.
type Preparer interface {
	Prepare(ctx context.Context, audioPath string) (*segment.Prepared, error)
}

// Transcriber turns a chunk list into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, chunks []segment.Chunk) (transcribe.Result, error)
}

// Summarizer derives title/summary/tags from transcript text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, meta *summarize.Meta) (summarize.Summary, error)
}

// LivenessSignaler marks a unit of work as foreground/keep-alive for the
// host so it is not reclaimed under resource pressure. Start returns the
// release function.
type LivenessSignaler interface {
	Start(sessionID string) (release func())
}

// NopSignaler is the default no-op liveness signaler.
type NopSignaler struct{}

func (NopSignaler) Start(string) func() { return func() {} }

// ProgressFunc receives coarse progress updates in percent.
type ProgressFunc func(sessionID string, percent int)

// Config wires the queue dependencies.
type Config struct {
	Store       store.SessionStore
	Segmenter   Preparer
	Transcriber Transcriber

	// Summarizer may be nil when the transcription backend already
	// summarizes inline.
	Summarizer Summarizer

	Signaler   LivenessSignaler
	OnProgress ProgressFunc

	// InitialBackoff is the first retry delay; each further retry doubles
	// it. Defaults to 10s.
	InitialBackoff time.Duration

	// MaxAttempts bounds retryable failures per enqueue. Defaults to 5.
	MaxAttempts int
}

// job is one unit of queued work.
type job struct {
	sessionID string
	audioURI  string
}

// Queue is the pipeline scheduler. Construct one at process start and pass
// it to whoever creates sessions; there is no ambient singleton.
type Queue struct {
	cfg Config

	mu     sync.Mutex
	queued map[string]bool
	jobs   chan job

	wg      sync.WaitGroup
	started bool
}

// New creates a queue. Call Start to launch the worker.
func New(cfg Config) *Queue {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Signaler == nil {
		cfg.Signaler = NopSignaler{}
	}
	return &Queue{
		cfg:    cfg,
		queued: make(map[string]bool),
		jobs:   make(chan job, 128),
	}
}

// Start launches the single worker goroutine. The worker drains until ctx is
// cancelled; Wait blocks until it exits.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-q.jobs:
				q.process(ctx, j)
				q.mu.Lock()
				delete(q.queued, j.sessionID)
				q.mu.Unlock()
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Enqueue appends a transcription job for the session. A session that is
// already queued or running is not enqueued again.
func (q *Queue) Enqueue(sessionID, audioURI string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued[sessionID] {
		log.Printf("Orchestrator: session %s already queued, skipping", sessionID)
		return nil
	}
	select {
	case q.jobs <- job{sessionID: sessionID, audioURI: audioURI}:
		q.queued[sessionID] = true
		return nil
	default:
		return fmt.Errorf("transcription queue is full")
	}
}

// Idle reports whether nothing is queued or running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued) == 0
}

// Recover scans the store for sessions with audio but no transcript and
// re-enqueues them. Called once at process start.
func (q *Queue) Recover(ctx context.Context) error {
	pending, err := q.cfg.Store.ListPendingTranscription(ctx)
	if err != nil {
		return fmt.Errorf("list pending transcriptions: %w", err)
	}
	for _, sess := range pending {
		log.Printf("Orchestrator: recovering session %s", sess.SessionID)
		if err := q.Enqueue(sess.SessionID, sess.AudioURI); err != nil {
			return err
		}
	}
	return nil
}

// process runs the full pipeline for one session, retrying retryable
// failures with exponential backoff up to MaxAttempts.
func (q *Queue) process(ctx context.Context, j job) {
	release := q.cfg.Signaler.Start(j.sessionID)
	defer release()

	backoff := q.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := q.runAttempt(ctx, j)
		if err == nil {
			return
		}

		if ctx.Err() != nil {
			// Shutting down mid-attempt: reset to a clean pending state so
			// crash recovery re-enqueues the session.
			q.resetForRecovery(j.sessionID)
			return
		}

		if domain.Fatal(err) {
			code := domain.ErrorCode(err)
			log.Printf("Orchestrator: session %s failed permanently: %v", j.sessionID, err)
			q.writeError(j.sessionID, code)
			return
		}

		if attempt >= q.cfg.MaxAttempts {
			log.Printf("Orchestrator: session %s exhausted %d attempts: %v", j.sessionID, attempt, err)
			q.writeError(j.sessionID, err.Error())
			return
		}

		log.Printf("Orchestrator: session %s attempt %d failed (%v), retrying in %s", j.sessionID, attempt, err, backoff)
		select {
		case <-ctx.Done():
			q.resetForRecovery(j.sessionID)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// runAttempt is one idempotent pass over the pipeline; it may be re-entered
// from scratch after an interruption.
func (q *Queue) runAttempt(ctx context.Context, j job) error {
	st := q.cfg.Store

	if err := st.SetTranscribing(ctx, j.sessionID); err != nil {
		return err
	}
	q.progress(j.sessionID, 0)

	audioURI := j.audioURI
	if audioURI == "" {
		sess, err := st.BySessionID(ctx, j.sessionID)
		if err != nil {
			return err
		}
		if sess == nil || sess.AudioURI == "" {
			return &domain.AudioNotFoundError{URI: j.sessionID}
		}
		audioURI = sess.AudioURI
	}

	audioPath, err := blob.PathFromURI(audioURI)
	if err != nil {
		return err
	}

	prepared, err := q.cfg.Segmenter.Prepare(ctx, audioPath)
	if err != nil {
		return err
	}
	defer prepared.Cleanup()
	q.progress(j.sessionID, 10)

	res, err := q.cfg.Transcriber.Transcribe(ctx, prepared.Chunks)
	if err != nil {
		return err
	}
	q.progress(j.sessionID, 80)

	if err := st.SetTranscript(ctx, j.sessionID, res.Text, res.Source); err != nil {
		return err
	}
	log.Printf("Orchestrator: session %s transcribed (source=%s, %d chars)", j.sessionID, res.Source, len(res.Text))

	q.summarizeSession(ctx, j.sessionID, res)
	q.progress(j.sessionID, 100)
	return nil
}

// summarizeSession runs the summary sub-machine. Its failures never roll
// back or invalidate the transcript that was just written.
func (q *Queue) summarizeSession(ctx context.Context, sessionID string, res transcribe.Result) {
	st := q.cfg.Store

	if err := st.SetSummaryWaiting(ctx, sessionID); err != nil {
		log.Printf("Orchestrator: session %s: %v", sessionID, err)
		return
	}

	// Backends that summarize in the same request hand the result over
	// without a second network call.
	if res.Summary != "" {
		if err := st.SetSummary(ctx, sessionID, res.Title, res.Summary); err != nil {
			log.Printf("Orchestrator: session %s: %v", sessionID, err)
		}
		return
	}

	if q.cfg.Summarizer == nil {
		return
	}

	meta := q.sessionMeta(ctx, sessionID)
	sum, err := q.cfg.Summarizer.Summarize(ctx, res.Text, meta)
	if err != nil {
		var transport *domain.TransportError
		if errors.As(err, &transport) {
			// Network trouble: stay in waiting_network for a later pass.
			log.Printf("Orchestrator: session %s summary deferred: %v", sessionID, err)
			return
		}
		log.Printf("Orchestrator: session %s summary failed: %v", sessionID, err)
		if serr := st.SetSummaryError(ctx, sessionID, err.Error()); serr != nil {
			log.Printf("Orchestrator: session %s: %v", sessionID, serr)
		}
		return
	}

	if err := st.SetSummary(ctx, sessionID, sum.Title, sum.Summary); err != nil {
		log.Printf("Orchestrator: session %s: %v", sessionID, err)
	}
}

// sessionMeta builds optional summarization context from the session row.
func (q *Queue) sessionMeta(ctx context.Context, sessionID string) *summarize.Meta {
	sess, err := q.cfg.Store.BySessionID(ctx, sessionID)
	if err != nil || sess == nil {
		return nil
	}
	if sess.Time == "" && sess.Location == "" {
		return nil
	}
	return &summarize.Meta{StartedAt: sess.Time, Location: sess.Location}
}

// writeError records a terminal failure; audioState goes back to none so
// the session is never stuck "transcribing".
func (q *Queue) writeError(sessionID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.cfg.Store.SetTranscribeError(ctx, sessionID, msg, "error"); err != nil {
		log.Printf("Orchestrator: session %s: failed to record error: %v", sessionID, err)
	}
}

// resetForRecovery clears the in-flight marker without recording an error,
// so ListPendingTranscription picks the session up after restart.
func (q *Queue) resetForRecovery(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.cfg.Store.SetTranscribeError(ctx, sessionID, "", ""); err != nil {
		log.Printf("Orchestrator: session %s: failed to reset state: %v", sessionID, err)
	}
}

func (q *Queue) progress(sessionID string, percent int) {
	if q.cfg.OnProgress != nil {
		q.cfg.OnProgress(sessionID, percent)
	}
}
