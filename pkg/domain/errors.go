package domain

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Every error is classified at its origin into one
// of these types; downstream code branches with errors.As, never by matching
// message text.

// TransportError is a network or HTTP failure. Transport errors are
// retryable: the scheduler re-attempts them with exponential backoff.
type TransportError struct {
	Op     string // "transcribe", "summarize", "upload", "token", "poll"
	Status int    // HTTP status when known, 0 otherwise
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnsupportedMediaError reports an input the provider cannot accept. Fatal:
// retrying the same bytes cannot succeed.
type UnsupportedMediaError struct {
	Path string
	Ext  string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media %q (extension %q)", e.Path, e.Ext)
}

// AudioNotFoundError reports a missing source artifact. Fatal: the bytes are
// gone and no retry can bring them back.
type AudioNotFoundError struct {
	URI string
	Err error
}

func (e *AudioNotFoundError) Error() string {
	return fmt.Sprintf("audio not found: %s", e.URI)
}

func (e *AudioNotFoundError) Unwrap() error { return e.Err }

// EmptyTranscriptionError reports that the provider returned no usable text
// for any chunk. Fatal: treated as unprocessable input, never as success.
type EmptyTranscriptionError struct {
	Chunks int
}

func (e *EmptyTranscriptionError) Error() string {
	return fmt.Sprintf("provider returned empty transcription for all %d chunks", e.Chunks)
}

// TranscodeError reports a failed external transcode process. Fatal at the
// segmenter layer; surfaces to the orchestrator untouched.
type TranscodeError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed: %s exit=%d: %s", e.Command, e.ExitCode, e.Stderr)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// PollTimeoutError reports that an async job did not reach a terminal status
// within the polling budget. Fatal after the bound is exceeded.
type PollTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("job %s still not terminal after %d polls", e.JobID, e.Attempts)
}

// SummarizationParseError reports malformed structured output from the
// summarization model. Non-fatal: the summarize client degrades to raw text
// and never lets this escape, the type exists for logging and tests.
type SummarizationParseError struct {
	Content string
	Err     error
}

func (e *SummarizationParseError) Error() string {
	return fmt.Sprintf("summary output is not valid JSON: %v", e.Err)
}

func (e *SummarizationParseError) Unwrap() error { return e.Err }

// Fatal reports whether err terminates the current transcription attempt
// with no retry.
func Fatal(err error) bool {
	var (
		unsupported *UnsupportedMediaError
		notFound    *AudioNotFoundError
		empty       *EmptyTranscriptionError
		transcode   *TranscodeError
		poll        *PollTimeoutError
	)
	switch {
	case errors.As(err, &notFound),
		errors.As(err, &unsupported),
		errors.As(err, &empty),
		errors.As(err, &transcode),
		errors.As(err, &poll):
		return true
	}
	return false
}

// ErrorCode maps a classified error to the short code recorded in the
// session row for user visibility.
func ErrorCode(err error) string {
	var (
		unsupported *UnsupportedMediaError
		notFound    *AudioNotFoundError
		empty       *EmptyTranscriptionError
		transcode   *TranscodeError
		poll        *PollTimeoutError
	)
	switch {
	case errors.As(err, &notFound):
		return "audio_not_found"
	case errors.As(err, &unsupported):
		return "unsupported_media"
	case errors.As(err, &empty):
		return "backend_empty_output"
	case errors.As(err, &transcode):
		return "transcode_failed"
	case errors.As(err, &poll):
		return "poll_timeout"
	case err != nil:
		return err.Error()
	}
	return ""
}
