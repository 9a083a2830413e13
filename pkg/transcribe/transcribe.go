// Package transcribe talks to remote speech-to-text providers.
//
// Two remote shapes are supported: a direct OpenAI-style endpoint that
// returns text inline, and a backend that may answer 202 with a job id for
// oversized inputs, in which case the client polls the job status endpoint
// until the job is terminal.
package transcribe

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/segment"
)

// Result is one provider response for one chunk. Title and Summary are only
// populated by backends that summarize in the same request.
type Result struct {
	Text    string
	Title   string
	Summary string
	Source  string
}

// Provider submits one audio chunk and returns its transcription.
type Provider interface {
	Transcribe(ctx context.Context, chunkPath string) (Result, error)
}

// supportedExtensions is the provider-side whitelist, checked before any
// network call.
var supportedExtensions = map[string]bool{
	".m4a":  true,
	".mp4":  true,
	".mp3":  true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
	".oga":  true,
	".flac": true,
	".webm": true,
}

// Client drives a Provider across the chunk list of one session.
type Client struct {
	provider Provider
}

// NewClient creates a transcription client on top of a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Transcribe submits every chunk sequentially, in order, and concatenates
// the chunk texts with newline separators. A blank concatenation is an
// explicit failure, never success.
func (c *Client) Transcribe(ctx context.Context, chunks []segment.Chunk) (Result, error) {
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("no chunks to transcribe")
	}

	for _, chunk := range chunks {
		ext := strings.ToLower(filepath.Ext(chunk.Path))
		if !supportedExtensions[ext] {
			return Result{}, &domain.UnsupportedMediaError{Path: chunk.Path, Ext: ext}
		}
	}

	var out Result
	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		log.Printf("Transcribe: chunk %d/%d (%d bytes)", i+1, len(chunks), chunk.Size)
		res, err := c.provider.Transcribe(ctx, chunk.Path)
		if err != nil {
			return Result{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		texts = append(texts, res.Text)
		out.Source = res.Source
		// Title/summary only make sense for a whole-file submission.
		if len(chunks) == 1 {
			out.Title = res.Title
			out.Summary = res.Summary
		}
	}

	out.Text = strings.Join(texts, "\n")
	if strings.TrimSpace(out.Text) == "" {
		return Result{}, &domain.EmptyTranscriptionError{Chunks: len(chunks)}
	}
	return out, nil
}
