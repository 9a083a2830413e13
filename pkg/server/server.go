// Package server exposes the transcription backend over HTTP: synchronous
// transcription for provider-sized files, async job submission for oversized
// ones, summarization, artifact upload relay, and the OAuth bootstrap.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/segment"
	"voicenotes/pkg/summarize"
	"voicenotes/pkg/transcribe"
)

// Segmenter prepares provider-compliant chunks from one audio file.
type Segmenter interface {
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

// RemoteStore relays uploaded artifacts to cloud storage and returns the
// remote file id.
type RemoteStore interface {
	UploadWithID(ctx context.Context, task domain.UploadTask) (string, error)
}

// Config wires the server dependencies.
type Config struct {
	Segmenter   Segmenter
	Transcriber Transcriber

	// Summarizer may be nil; summarize endpoints then answer 503.
	Summarizer Summarizer

	// Remote may be nil; /upload then answers 503.
	Remote RemoteStore

	// Auth may be nil; the OAuth endpoints then answer 503.
	Auth *Authenticator

	// TempDir receives uploaded request bodies. Defaults to os.TempDir().
	TempDir string

	// AsyncThreshold is the upload size in bytes above which transcription
	// answers 202 with a job id instead of blocking. Defaults to the
	// provider chunk limit.
	AsyncThreshold int64
}

// Server is the HTTP transcription backend.
type Server struct {
	cfg  Config
	jobs *JobRegistry
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.AsyncThreshold <= 0 {
		cfg.AsyncThreshold = segment.MaxChunkBytes
	}
	return &Server{cfg: cfg, jobs: NewJobRegistry()}
}

// Jobs exposes the registry, mainly for tests.
func (s *Server) Jobs() *JobRegistry {
	return s.jobs
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe(false))
	mux.HandleFunc("POST /api/transcribe-and-summarize", s.handleTranscribe(true))
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /auth/start", s.handleAuthStart)
	mux.HandleFunc("GET /oauth2callback", s.handleOAuthCallback)
	return mux
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// handleTranscribe serves both transcription endpoints. Small uploads are
// transcribed inline; uploads above the threshold are accepted as a job and
// processed in the background.
func (s *Server) handleTranscribe(withSummary bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, size, err := s.saveUpload(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if size > s.cfg.AsyncThreshold {
			jobID := s.jobs.Create()
			log.Printf("Server: accepted %d byte upload as job %s", size, jobID)
			// The job outlives the request; detach it from the request ctx.
			go s.runJob(context.Background(), jobID, path, withSummary)
			writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
			return
		}

		defer os.RemoveAll(filepath.Dir(path))
		res, sum, err := s.transcribeFile(r.Context(), path, withSummary)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resultPayload(res, sum, withSummary))
	}
}

// runJob executes one async transcription job and records its outcome in the
// registry.
func (s *Server) runJob(ctx context.Context, jobID, path string, withSummary bool) {
	defer os.RemoveAll(filepath.Dir(path))

	s.jobs.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobProcessing
		j.Progress = 10
	})

	res, sum, err := s.transcribeFile(ctx, path, withSummary)
	if err != nil {
		log.Printf("Server: job %s failed: %v", jobID, err)
		s.jobs.Update(jobID, func(j *domain.Job) {
			j.Status = domain.JobError
			j.Error = err.Error()
		})
		return
	}

	s.jobs.Update(jobID, func(j *domain.Job) {
		j.Status = domain.JobDone
		j.Progress = 100
		j.Text = res.Text
		if withSummary {
			j.Title = sum.Title
			j.Summary = sum.Summary
		}
	})
	log.Printf("Server: job %s done (%d chars)", jobID, len(res.Text))
}

// transcribeFile runs segmentation, transcription, and (optionally) the
// summarization pass over one uploaded file.
func (s *Server) transcribeFile(ctx context.Context, path string, withSummary bool) (transcribe.Result, summarize.Summary, error) {
	prepared, err := s.cfg.Segmenter.Prepare(ctx, path)
	if err != nil {
		return transcribe.Result{}, summarize.Summary{}, err
	}
	defer prepared.Cleanup()

	res, err := s.cfg.Transcriber.Transcribe(ctx, prepared.Chunks)
	if err != nil {
		return transcribe.Result{}, summarize.Summary{}, err
	}

	var sum summarize.Summary
	if withSummary {
		if s.cfg.Summarizer == nil {
			return transcribe.Result{}, summarize.Summary{}, fmt.Errorf("summarization is not configured")
		}
		sum, err = s.cfg.Summarizer.Summarize(ctx, res.Text, nil)
		if err != nil {
			return transcribe.Result{}, summarize.Summary{}, err
		}
	}
	return res, sum, nil
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("summarization is not configured"))
		return
	}

	var in struct {
		Text string          `json:"text"`
		Meta *summarize.Meta `json:"meta,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if in.Text == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}

	sum, err := s.cfg.Summarizer.Summarize(r.Context(), in.Text, in.Meta)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleUpload relays one artifact to remote storage using the server's
// credentials.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Remote == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("remote storage is not configured"))
		return
	}

	path, _, err := s.saveUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer os.RemoveAll(filepath.Dir(path))

	name := r.FormValue("name")
	if name == "" {
		name = filepath.Base(path)
	}
	mime := r.FormValue("mime")
	if mime == "" {
		mime = "application/octet-stream"
	}

	id, err := s.cfg.Remote.UploadWithID(r.Context(), domain.UploadTask{
		Name: name,
		Mime: mime,
		URI:  path,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// saveUpload copies the request's "file" part into a fresh temp folder and
// returns its path and size. The caller owns the folder.
func (s *Server) saveUpload(r *http.Request) (string, int64, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", 0, fmt.Errorf("read file field: %w", err)
	}
	defer file.Close()

	dir := filepath.Join(s.cfg.TempDir, "upload-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload folder: %w", err)
	}

	path := filepath.Join(dir, sanitizeFilename(header))
	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", 0, fmt.Errorf("store upload: %w", err)
	}
	return path, size, nil
}

// sanitizeFilename keeps only the base name of the client-supplied filename.
func sanitizeFilename(header *multipart.FileHeader) string {
	name := filepath.Base(filepath.Clean(header.Filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload.bin"
	}
	return name
}

// statusFor maps pipeline error types onto HTTP statuses.
func statusFor(err error) int {
	switch domain.ErrorCode(err) {
	case "unsupported_media":
		return http.StatusUnsupportedMediaType
	case "audio_not_found":
		return http.StatusBadRequest
	case "backend_empty_output", "transcode_failed":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// resultPayload shapes the synchronous transcription response.
func resultPayload(res transcribe.Result, sum summarize.Summary, withSummary bool) map[string]any {
	out := map[string]any{"text": res.Text}
	if withSummary {
		out["title"] = sum.Title
		out["summary"] = sum.Summary
		out["tags"] = sum.Tags
	}
	return out
}
