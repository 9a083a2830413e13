package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/httpclient"
)

const (
	// DefaultPollInterval is the fixed delay between job status polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxPolls bounds the polling loop (~3 hours at 3s).
	DefaultMaxPolls = 3600
)

// BackendProvider submits chunks to the notes backend. The backend answers
// small requests inline and oversized requests with 202 + a job id to poll.
type BackendProvider struct {
	// baseURLs are candidate API roots tried in order. Only a 404 on the
	// submit path falls through to the next candidate; any other failure is
	// reported immediately.
	baseURLs []string

	// summarize selects /api/transcribe-and-summarize over /api/transcribe.
	summarize bool

	client       *httpclient.HTTPClient
	pollInterval time.Duration
	maxPolls     int
}

// NewBackendProvider creates a backend provider with default polling policy.
func NewBackendProvider(baseURLs []string, summarize bool) *BackendProvider {
	trimmed := make([]string, 0, len(baseURLs))
	for _, u := range baseURLs {
		trimmed = append(trimmed, strings.TrimRight(u, "/"))
	}
	return &BackendProvider{
		baseURLs:     trimmed,
		summarize:    summarize,
		client:       httpclient.NewClient(),
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
	}
}

// SetPollPolicy overrides the poll interval and attempt bound (tests, or
// deployments with a different patience budget).
func (p *BackendProvider) SetPollPolicy(interval time.Duration, maxPolls int) {
	p.pollInterval = interval
	p.maxPolls = maxPolls
}

type backendResponse struct {
	Text    string `json:"text"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	JobID   string `json:"jobId"`
	Error   string `json:"error"`
}

// Transcribe submits one chunk, following the async job path when the
// backend answers 202.
func (p *BackendProvider) Transcribe(ctx context.Context, chunkPath string) (Result, error) {
	if len(p.baseURLs) == 0 {
		return Result{}, fmt.Errorf("no backend base URL configured")
	}

	path := "/api/transcribe"
	if p.summarize {
		path = "/api/transcribe-and-summarize"
	}

	for i, base := range p.baseURLs {
		resp, err := p.client.PostFile(base+path, chunkPath, nil)
		if err != nil {
			return Result{}, &domain.TransportError{Op: "transcribe", Err: err}
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			if i < len(p.baseURLs)-1 {
				log.Printf("BackendProvider: %s%s not found, trying next candidate", base, path)
				continue
			}
			return Result{}, &domain.TransportError{
				Op:     "transcribe",
				Status: http.StatusNotFound,
				Err:    fmt.Errorf("no backend candidate serves %s", path),
			}
		}

		return p.handleSubmitResponse(ctx, base, resp)
	}
	// Unreachable: the loop always returns.
	return Result{}, fmt.Errorf("no backend candidate accepted the request")
}

// handleSubmitResponse resolves an inline answer or enters the polling loop.
func (p *BackendProvider) handleSubmitResponse(ctx context.Context, base string, resp *http.Response) (Result, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		var out backendResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.JobID == "" {
			return Result{}, &domain.TransportError{Op: "transcribe", Err: fmt.Errorf("202 without job id")}
		}
		return p.poll(ctx, base, out.JobID)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out backendResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Result{}, &domain.TransportError{Op: "transcribe", Err: fmt.Errorf("decode response: %w", err)}
		}
		return Result{Text: out.Text, Title: out.Title, Summary: out.Summary, Source: "backend"}, nil

	default:
		body := httpclient.ReadBody(resp)
		return Result{}, &domain.TransportError{
			Op:     "transcribe",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(body)),
		}
	}
}

// poll watches one job until it is terminal or the attempt budget runs out.
// Transient poll failures retry the same poll; a 404 means the server lost
// the job (restart) and the whole submission must be retried, so it surfaces
// as a retryable transport error.
func (p *BackendProvider) poll(ctx context.Context, base, jobID string) (Result, error) {
	url := base + "/api/jobs/" + jobID
	log.Printf("BackendProvider: polling job %s", jobID)

	for attempt := 0; attempt < p.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return Result{}, &domain.TransportError{Op: "poll", Err: ctx.Err()}
		case <-time.After(p.pollInterval):
		}

		resp, err := p.client.Get(url)
		if err != nil {
			log.Printf("BackendProvider: poll %s failed (%v), retrying", jobID, err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return Result{}, &domain.TransportError{
				Op:     "poll",
				Status: http.StatusNotFound,
				Err:    fmt.Errorf("job %s lost by server, resubmission required", jobID),
			}
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			log.Printf("BackendProvider: poll %s got status %d, retrying", jobID, resp.StatusCode)
			continue
		}

		var job domain.Job
		decodeErr := json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if decodeErr != nil {
			log.Printf("BackendProvider: poll %s returned malformed body, retrying", jobID)
			continue
		}

		switch job.Status {
		case domain.JobDone:
			return Result{Text: job.Text, Title: job.Title, Summary: job.Summary, Source: "backend:async"}, nil
		case domain.JobError:
			return Result{}, fmt.Errorf("job %s failed: %s", jobID, job.Error)
		}
		// pending/processing: keep waiting.
	}

	return Result{}, &domain.PollTimeoutError{JobID: jobID, Attempts: p.maxPolls}
}
