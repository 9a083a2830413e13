package archive

import (
	"context"
	"fmt"
	"log"
	"sync"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/store"
)

// Config wires the replication dependencies.
type Config struct {
	Store store.SessionStore
	Mongo *Client

	// OnlyFinished restricts archiving to sessions whose transcription
	// completed.
	OnlyFinished bool
}

// Replicator copies sessions from the local store into the Mongo archive.
//
// This is intentionally a one-shot, "copy everything missing" flow: it is
// run from a cron or by hand, and upserts make reruns safe.
type Replicator struct {
	store        store.SessionStore
	mongo        *Client
	onlyFinished bool
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Mongo == nil {
		return nil, fmt.Errorf("mongo client is required")
	}
	return &Replicator{
		store:        cfg.Store,
		mongo:        cfg.Mongo,
		onlyFinished: cfg.OnlyFinished,
	}, nil
}

// Replicate reads all sessions from the store and archives the ones Mongo
// does not have yet.
func (r *Replicator) Replicate(ctx context.Context) error {
	sessions, err := r.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	existing, err := r.mongo.ArchivedIDs(ctx)
	if err != nil {
		return err
	}

	toArchive := r.filterNew(sessions, existing)
	if len(toArchive) == 0 {
		log.Printf("Archive: nothing to do, %d sessions already archived", len(existing))
		return nil
	}

	log.Printf("Archive: %d sessions loaded, %d to archive", len(sessions), len(toArchive))

	archived, err := r.archiveBatches(ctx, toArchive)
	log.Printf("Archive: archived %d/%d sessions", archived, len(toArchive))
	return err
}

// filterNew drops sessions Mongo already has and, optionally, unfinished ones.
func (r *Replicator) filterNew(all []domain.Session, existing map[string]bool) []domain.Session {
	out := make([]domain.Session, 0, len(all))
	for _, sess := range all {
		if sess.SessionID == "" || existing[sess.SessionID] {
			continue
		}
		if r.onlyFinished && sess.AudioState != domain.AudioDone {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// archiveBatches upserts sessions with a small worker pool and returns how
// many were archived. The first worker error wins; remaining jobs drain.
func (r *Replicator) archiveBatches(ctx context.Context, sessions []domain.Session) (int, error) {
	const numWorkers = 5

	jobs := make(chan domain.Session, len(sessions))
	results := make(chan error, len(sessions))

	for _, sess := range sessions {
		jobs <- sess
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sess := range jobs {
				if err := r.mongo.SaveSession(ctx, &sess); err != nil {
					results <- fmt.Errorf("archive session %s: %w", sess.SessionID, err)
					continue
				}
				results <- nil
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	archived := 0
	var firstErr error
	for err := range results {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		archived++
		if archived%100 == 0 {
			log.Printf("Archive: progress %d/%d", archived, len(sessions))
		}
	}
	return archived, firstErr
}
