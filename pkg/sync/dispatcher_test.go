package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voicenotes/pkg/domain"
)

// fakeUploader is a mock implementation of Uploader for testing
type fakeUploader struct {
	mu sync.Mutex
	// failuresPerTask maps task name to how many attempts fail first
	failuresPerTask map[string]int
	attempts        map[string]int
	uploaded        []string
}

func newFakeUploader(failures map[string]int) *fakeUploader {
	return &fakeUploader{
		failuresPerTask: failures,
		attempts:        make(map[string]int),
	}
}

func (f *fakeUploader) Upload(ctx context.Context, task domain.UploadTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[task.Name]++
	if f.attempts[task.Name] <= f.failuresPerTask[task.Name] {
		return errors.New("temporary failure")
	}
	f.uploaded = append(f.uploaded, task.Name)
	return nil
}

func (f *fakeUploader) uploadedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

func (f *fakeUploader) attemptCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[name]
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	up := newFakeUploader(map[string]int{"a.m4a": 2})
	d := NewDispatcher(Config{Uploader: up, InitialBackoff: time.Millisecond})

	d.Enqueue(context.Background(), domain.UploadTask{Name: "a.m4a", Mime: "audio/mp4", URI: "/b/a.m4a"})
	d.Wait()

	if got := up.attemptCount("a.m4a"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if got := up.uploadedNames(); len(got) != 1 || got[0] != "a.m4a" {
		t.Errorf("Expected upload to succeed, got %v", got)
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	up := newFakeUploader(map[string]int{"a.m4a": 100})
	d := NewDispatcher(Config{Uploader: up, InitialBackoff: time.Millisecond, MaxAttempts: 3})

	d.Enqueue(context.Background(), domain.UploadTask{Name: "a.m4a", URI: "/b/a.m4a"})
	d.Wait()

	if got := up.attemptCount("a.m4a"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if got := up.uploadedNames(); len(got) != 0 {
		t.Errorf("Expected no successful upload, got %v", got)
	}
}

func TestDispatcher_TasksAreIndependent(t *testing.T) {
	// The audio upload keeps failing; the note upload must still complete.
	up := newFakeUploader(map[string]int{"s.m4a": 100})
	d := NewDispatcher(Config{Uploader: up, InitialBackoff: time.Millisecond, MaxAttempts: 4})

	d.EnqueueSession(context.Background(), "s", "/b/s.m4a", "/b/s.txt")
	d.Wait()

	if got := up.uploadedNames(); len(got) != 1 || got[0] != "s.txt" {
		t.Errorf("Expected the note to upload despite the audio failing, got %v", got)
	}
}

func TestEnqueueSession_BuildsBothArtifacts(t *testing.T) {
	up := newFakeUploader(nil)
	d := NewDispatcher(Config{Uploader: up, InitialBackoff: time.Millisecond})

	d.EnqueueSession(context.Background(), "20250831120000", "/b/a.m4a", "/b/a.txt")
	d.Wait()

	got := up.uploadedNames()
	if len(got) != 2 {
		t.Fatalf("Expected 2 uploads, got %v", got)
	}
	names := map[string]bool{got[0]: true, got[1]: true}
	if !names["20250831120000.m4a"] || !names["20250831120000.txt"] {
		t.Errorf("Expected basename-derived artifact names, got %v", got)
	}
}

// blockedGate is a NetworkGate that stays closed until released.
type blockedGate struct {
	release chan struct{}
}

func (g *blockedGate) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
		return nil
	}
}

func TestDispatcher_WaitsForNetwork(t *testing.T) {
	up := newFakeUploader(nil)
	gate := &blockedGate{release: make(chan struct{})}
	d := NewDispatcher(Config{Uploader: up, Gate: gate, InitialBackoff: time.Millisecond})

	d.Enqueue(context.Background(), domain.UploadTask{Name: "a.m4a", URI: "/b/a.m4a"})

	time.Sleep(10 * time.Millisecond)
	if got := up.attemptCount("a.m4a"); got != 0 {
		t.Fatalf("Expected no attempts while offline, got %d", got)
	}

	close(gate.release)
	d.Wait()
	if got := up.uploadedNames(); len(got) != 1 {
		t.Errorf("Expected upload after connectivity returned, got %v", got)
	}
}

func TestDispatcher_CancelledWhileOffline(t *testing.T) {
	up := newFakeUploader(nil)
	gate := &blockedGate{release: make(chan struct{})}
	d := NewDispatcher(Config{Uploader: up, Gate: gate, InitialBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	d.Enqueue(ctx, domain.UploadTask{Name: "a.m4a", URI: "/b/a.m4a"})
	cancel()
	d.Wait()

	if got := up.attemptCount("a.m4a"); got != 0 {
		t.Errorf("Expected no attempts after cancellation, got %d", got)
	}
}
