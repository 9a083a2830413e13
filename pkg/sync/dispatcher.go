// Package sync delivers finished artifacts to remote storage.
//
// Each upload task has its own retry loop with exponential backoff; audio
// and note artifacts of one session are independent tasks that may complete
// out of order and never block one another. Uploads share the pipeline's
// retry discipline but run on their own dispatcher.
package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"voicenotes/pkg/domain"
)

// Uploader pushes one artifact to the remote store.
type Uploader interface {
	Upload(ctx context.Context, task domain.UploadTask) error
}

// NetworkGate reports whether the network constraint is satisfied. Wait
// blocks until connectivity is available or ctx is done. Tasks are gated,
// not polled: a blocked task sits in Wait instead of burning attempts.
type NetworkGate interface {
	Wait(ctx context.Context) error
}

// AlwaysOnline is the default gate for environments with stable
// connectivity.
type AlwaysOnline struct{}

func (AlwaysOnline) Wait(context.Context) error { return nil }

// Config wires the dispatcher dependencies.
type Config struct {
	Uploader Uploader
	Gate     NetworkGate

	// InitialBackoff is the first retry delay; each retry doubles it.
	// Defaults to 10s.
	InitialBackoff time.Duration

	// MaxAttempts bounds retries per task. Defaults to 8.
	MaxAttempts int
}

// Dispatcher schedules durable, constrained, retried artifact uploads.
type Dispatcher struct {
	cfg Config
	wg  sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Construct one at process start and
// inject it; there is no ambient singleton.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Gate == nil {
		cfg.Gate = AlwaysOnline{}
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &Dispatcher{cfg: cfg}
}

// Enqueue starts the independent delivery loop for one task.
func (d *Dispatcher) Enqueue(ctx context.Context, task domain.UploadTask) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, task)
	}()
}

// EnqueueSession enqueues the audio and note artifacts of one session as
// two separate tasks.
func (d *Dispatcher) EnqueueSession(ctx context.Context, basename, audioURI, textURI string) {
	d.Enqueue(ctx, domain.UploadTask{
		Basename: basename,
		Name:     basename + ".m4a",
		Mime:     "audio/mp4",
		URI:      audioURI,
	})
	d.Enqueue(ctx, domain.UploadTask{
		Basename: basename,
		Name:     basename + ".txt",
		Mime:     "text/plain",
		URI:      textURI,
	})
}

// Wait blocks until every enqueued task has finished or given up.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// run retries one task with exponential backoff until success, attempt
// exhaustion, or cancellation.
func (d *Dispatcher) run(ctx context.Context, task domain.UploadTask) {
	backoff := d.cfg.InitialBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.cfg.Gate.Wait(ctx); err != nil {
			log.Printf("Sync: %s cancelled waiting for network: %v", task.Name, err)
			return
		}

		err := d.cfg.Uploader.Upload(ctx, task)
		if err == nil {
			log.Printf("Sync: uploaded %s (%s)", task.Name, task.Mime)
			return
		}

		if attempt == d.cfg.MaxAttempts {
			log.Printf("Sync: %s failed after %d attempts: %v", task.Name, attempt, err)
			return
		}

		log.Printf("Sync: %s attempt %d failed (%v), retrying in %s", task.Name, attempt, err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
