package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"voicenotes/pkg/domain"
)

// writeChunk creates a small audio file the provider can submit.
func writeChunk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.m4a")
	if err := os.WriteFile(path, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return path
}

func fastPollProvider(urls []string, summarize bool) *BackendProvider {
	p := NewBackendProvider(urls, summarize)
	p.SetPollPolicy(time.Millisecond, 20)
	return p
}

func TestBackendProvider_InlineResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, false)
	res, err := p.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Expected inline text, got %q", res.Text)
	}
	if res.Source != "backend" {
		t.Errorf("Expected source backend, got %q", res.Source)
	}
}

func TestBackendProvider_AsyncJobPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/transcribe-and-summarize":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1"})
		case "/api/jobs/job-1":
			n := polls.Add(1)
			job := domain.Job{ID: "job-1", Status: domain.JobProcessing, Progress: 40}
			if n >= 3 {
				job = domain.Job{ID: "job-1", Status: domain.JobDone, Text: "long text", Title: "t", Summary: "s"}
			}
			json.NewEncoder(w).Encode(job)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, true)
	res, err := p.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "long text" || res.Title != "t" || res.Summary != "s" {
		t.Errorf("Expected job result, got %+v", res)
	}
	if res.Source != "backend:async" {
		t.Errorf("Expected async source, got %q", res.Source)
	}
	if polls.Load() < 3 {
		t.Errorf("Expected at least 3 polls, got %d", polls.Load())
	}
}

func TestBackendProvider_PollToleratesTransientErrors(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/transcribe":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-2"})
		case "/api/jobs/job-2":
			switch polls.Add(1) {
			case 1:
				w.WriteHeader(http.StatusInternalServerError)
			case 2:
				w.Write([]byte("{not json"))
			default:
				json.NewEncoder(w).Encode(domain.Job{ID: "job-2", Status: domain.JobDone, Text: "recovered"})
			}
		}
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, false)
	res, err := p.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("Expected poll loop to survive transient failures, got %q", res.Text)
	}
}

func TestBackendProvider_PollJobLost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/transcribe":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-3"})
		default:
			// Server restarted and forgot the job.
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, false)
	_, err := p.Transcribe(context.Background(), writeChunk(t))

	var transport *domain.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Expected retryable TransportError for a lost job, got %v", err)
	}
	if transport.Status != http.StatusNotFound {
		t.Errorf("Expected 404 status, got %d", transport.Status)
	}
	if domain.Fatal(err) {
		t.Error("A lost job must stay retryable")
	}
}

func TestBackendProvider_PollBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/transcribe":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-4"})
		default:
			json.NewEncoder(w).Encode(domain.Job{ID: "job-4", Status: domain.JobProcessing})
		}
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, false)
	p.SetPollPolicy(time.Millisecond, 3)
	_, err := p.Transcribe(context.Background(), writeChunk(t))

	var timeout *domain.PollTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Expected PollTimeoutError, got %v", err)
	}
	if timeout.Attempts != 3 {
		t.Errorf("Expected 3 attempts in error, got %d", timeout.Attempts)
	}
	if !domain.Fatal(err) {
		t.Error("An exhausted poll budget is terminal")
	}
}

func TestBackendProvider_JobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/transcribe":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"jobId": "job-5"})
		default:
			json.NewEncoder(w).Encode(domain.Job{ID: "job-5", Status: domain.JobError, Error: "decode failed"})
		}
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL}, false)
	_, err := p.Transcribe(context.Background(), writeChunk(t))
	if err == nil {
		t.Fatal("Expected error for failed job")
	}
	if domain.Fatal(err) {
		t.Error("A server-side job failure should be retried with a fresh submission")
	}
}

func TestBackendProvider_FallsBackOnSubmit404(t *testing.T) {
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer legacy.Close()

	current := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "served by fallback"})
	}))
	defer current.Close()

	p := fastPollProvider([]string{legacy.URL, current.URL}, false)
	res, err := p.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "served by fallback" {
		t.Errorf("Expected fallback base URL to serve, got %q", res.Text)
	}
}

func TestBackendProvider_AllCandidates404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := fastPollProvider([]string{srv.URL, srv.URL}, false)
	_, err := p.Transcribe(context.Background(), writeChunk(t))

	var transport *domain.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if transport.Status != http.StatusNotFound {
		t.Errorf("Expected 404 status, got %d", transport.Status)
	}
}
