package transcribe

import (
	"context"
	"errors"
	"testing"

	"voicenotes/pkg/domain"
	"voicenotes/pkg/segment"
)

// mockProvider is a mock implementation of Provider for testing
type mockProvider struct {
	results map[string]Result
	err     error
	calls   []string
}

func (m *mockProvider) Transcribe(ctx context.Context, chunkPath string) (Result, error) {
	m.calls = append(m.calls, chunkPath)
	if m.err != nil {
		return Result{}, m.err
	}
	return m.results[chunkPath], nil
}

func TestTranscribe_JoinsChunksInOrder(t *testing.T) {
	provider := &mockProvider{results: map[string]Result{
		"/c/part-000.m4a": {Text: "first part", Source: "backend"},
		"/c/part-001.m4a": {Text: "second part", Source: "backend"},
	}}
	client := NewClient(provider)

	res, err := client.Transcribe(context.Background(), []segment.Chunk{
		{Path: "/c/part-000.m4a", Size: 10},
		{Path: "/c/part-001.m4a", Size: 10},
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if res.Text != "first part\nsecond part" {
		t.Errorf("Expected joined text, got %q", res.Text)
	}
	if len(provider.calls) != 2 || provider.calls[0] != "/c/part-000.m4a" {
		t.Errorf("Expected sequential in-order submission, got %v", provider.calls)
	}
	if res.Source != "backend" {
		t.Errorf("Expected source propagated, got %q", res.Source)
	}
}

func TestTranscribe_TitleSummaryOnlyForSingleChunk(t *testing.T) {
	provider := &mockProvider{results: map[string]Result{
		"/c/whole.m4a":    {Text: "text", Title: "a title", Summary: "a summary"},
		"/c/part-000.m4a": {Text: "one", Title: "t1", Summary: "s1"},
		"/c/part-001.m4a": {Text: "two", Title: "t2", Summary: "s2"},
	}}
	client := NewClient(provider)

	single, err := client.Transcribe(context.Background(), []segment.Chunk{{Path: "/c/whole.m4a"}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if single.Title != "a title" || single.Summary != "a summary" {
		t.Errorf("Expected title/summary for single chunk, got %+v", single)
	}

	multi, err := client.Transcribe(context.Background(), []segment.Chunk{
		{Path: "/c/part-000.m4a"}, {Path: "/c/part-001.m4a"},
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if multi.Title != "" || multi.Summary != "" {
		t.Errorf("Per-chunk title/summary must be dropped for multi-chunk input, got %+v", multi)
	}
}

func TestTranscribe_UnsupportedExtension(t *testing.T) {
	provider := &mockProvider{}
	client := NewClient(provider)

	_, err := client.Transcribe(context.Background(), []segment.Chunk{{Path: "/c/notes.txt"}})
	var unsupported *domain.UnsupportedMediaError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedMediaError, got %v", err)
	}
	if len(provider.calls) != 0 {
		t.Errorf("Unsupported media must be rejected before any network call, got %v", provider.calls)
	}
}

func TestTranscribe_BlankResultIsError(t *testing.T) {
	provider := &mockProvider{results: map[string]Result{
		"/c/a.m4a": {Text: "  "},
		"/c/b.m4a": {Text: ""},
	}}
	client := NewClient(provider)

	_, err := client.Transcribe(context.Background(), []segment.Chunk{
		{Path: "/c/a.m4a"}, {Path: "/c/b.m4a"},
	})
	var empty *domain.EmptyTranscriptionError
	if !errors.As(err, &empty) {
		t.Fatalf("Expected EmptyTranscriptionError, got %v", err)
	}
	if empty.Chunks != 2 {
		t.Errorf("Expected chunk count 2 in error, got %d", empty.Chunks)
	}
}

func TestTranscribe_ChunkFailureAborts(t *testing.T) {
	provider := &mockProvider{err: errors.New("provider down")}
	client := NewClient(provider)

	_, err := client.Transcribe(context.Background(), []segment.Chunk{{Path: "/c/a.m4a"}})
	if err == nil {
		t.Fatal("Expected error from failing provider")
	}
}
