package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicenotes/pkg/domain"
)

// fakeRunner is a mock implementation of commandRunner for testing
type fakeRunner struct {
	calls [][]string
	err   error
	// failOn fails only the call whose args contain this substring
	failOn string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		if f.failOn == "" || strings.Contains(strings.Join(args, " "), f.failOn) {
			return commandResult{Stderr: "boom", ExitCode: 1}, f.err
		}
	}
	return commandResult{}, nil
}

// fakeFileInfo is a minimal os.FileInfo for injected stat results
type fakeFileInfo struct {
	name string
	size int64
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() any           { return nil }

// fakeDirEntry is a minimal os.DirEntry for injected readDir results
type fakeDirEntry struct {
	name string
}

func (f fakeDirEntry) Name() string               { return f.name }
func (f fakeDirEntry) IsDir() bool                { return false }
func (f fakeDirEntry) Type() fs.FileMode          { return 0 }
func (f fakeDirEntry) Info() (fs.FileInfo, error) { return fakeFileInfo{name: f.name}, nil }

// testSegmenter builds a segmenter over an in-memory file layout.
func testSegmenter(runner commandRunner, sizes map[string]int64, parts []string, removed *[]string) *Segmenter {
	return NewSegmenterForTests(
		"ffmpeg",
		runner,
		func(dir, pattern string) (string, error) { return "/work/seg", nil },
		func(path string) error {
			*removed = append(*removed, path)
			return nil
		},
		func(name string) (os.FileInfo, error) {
			size, ok := sizes[name]
			if !ok {
				return nil, os.ErrNotExist
			}
			return fakeFileInfo{name: filepath.Base(name), size: size}, nil
		},
		func(name string) ([]os.DirEntry, error) {
			entries := make([]os.DirEntry, 0, len(parts))
			for _, p := range parts {
				entries = append(entries, fakeDirEntry{name: p})
			}
			return entries, nil
		},
	)
}

func TestPrepare_SmallInputPassesThrough(t *testing.T) {
	runner := &fakeRunner{}
	var removed []string
	s := testSegmenter(runner, map[string]int64{"/audio/a.m4a": 1024}, nil, &removed)

	prepared, err := s.Prepare(context.Background(), "/audio/a.m4a")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	defer prepared.Cleanup()

	if len(prepared.Chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(prepared.Chunks))
	}
	if prepared.Chunks[0].Path != "/audio/a.m4a" {
		t.Errorf("Expected passthrough path, got %s", prepared.Chunks[0].Path)
	}
	if len(runner.calls) != 0 {
		t.Errorf("Expected no ffmpeg calls for small input, got %d", len(runner.calls))
	}
	if err := prepared.Cleanup(); err != nil {
		t.Errorf("Cleanup failed: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("Cleanup of a passthrough result should remove nothing, removed %v", removed)
	}
}

func TestPrepare_MissingInput(t *testing.T) {
	runner := &fakeRunner{}
	var removed []string
	s := testSegmenter(runner, map[string]int64{}, nil, &removed)

	_, err := s.Prepare(context.Background(), "/audio/missing.m4a")
	var notFound *domain.AudioNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected AudioNotFoundError, got %v", err)
	}
}

func TestPrepare_LargeInputTranscodesAndSplits(t *testing.T) {
	runner := &fakeRunner{}
	var removed []string
	sizes := map[string]int64{
		"/audio/big.m4a":           MaxChunkBytes + 1,
		"/work/seg/part-000.m4a":   10 * 1024 * 1024,
		"/work/seg/part-001.m4a":   5 * 1024 * 1024,
		"/work/seg/transcoded.m4a": 15 * 1024 * 1024,
	}
	s := testSegmenter(runner, sizes, []string{"part-001.m4a", "part-000.m4a"}, &removed)

	prepared, err := s.Prepare(context.Background(), "/audio/big.m4a")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("Expected 2 ffmpeg invocations, got %d", len(runner.calls))
	}
	transcode := strings.Join(runner.calls[0], " ")
	if !strings.Contains(transcode, "-b:a 48k") || !strings.Contains(transcode, "-ar 16000") {
		t.Errorf("Transcode args missing target format: %s", transcode)
	}
	split := strings.Join(runner.calls[1], " ")
	if !strings.Contains(split, "-f segment") || !strings.Contains(split, fmt.Sprintf("-segment_time %d", SegmentSeconds)) {
		t.Errorf("Split args missing segment options: %s", split)
	}

	if len(prepared.Chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(prepared.Chunks))
	}
	// Segments come back in name order regardless of directory order.
	if !strings.HasSuffix(prepared.Chunks[0].Path, "part-000.m4a") {
		t.Errorf("Expected part-000 first, got %s", prepared.Chunks[0].Path)
	}

	if err := prepared.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "/work/seg" {
		t.Errorf("Expected cleanup of /work/seg, removed %v", removed)
	}
}

func TestPrepare_FfmpegFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	var removed []string
	sizes := map[string]int64{"/audio/big.m4a": MaxChunkBytes + 1}
	s := testSegmenter(runner, sizes, nil, &removed)

	_, err := s.Prepare(context.Background(), "/audio/big.m4a")
	var tErr *domain.TranscodeError
	if !errors.As(err, &tErr) {
		t.Fatalf("Expected TranscodeError, got %v", err)
	}
	if tErr.Stderr != "boom" {
		t.Errorf("Expected captured stderr, got %q", tErr.Stderr)
	}
	if len(removed) != 1 {
		t.Errorf("Expected workspace cleanup on failure, removed %v", removed)
	}
}

func TestPrepare_DropsOversizedSegments(t *testing.T) {
	runner := &fakeRunner{}
	var removed []string
	sizes := map[string]int64{
		"/audio/big.m4a":           MaxChunkBytes + 1,
		"/work/seg/part-000.m4a":   MaxChunkBytes + 5,
		"/work/seg/part-001.m4a":   1024,
		"/work/seg/transcoded.m4a": 2048,
	}
	s := testSegmenter(runner, sizes, []string{"part-000.m4a", "part-001.m4a"}, &removed)

	prepared, err := s.Prepare(context.Background(), "/audio/big.m4a")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(prepared.Chunks) != 1 {
		t.Fatalf("Expected oversized segment to be dropped, got %d chunks", len(prepared.Chunks))
	}
	if !strings.HasSuffix(prepared.Chunks[0].Path, "part-001.m4a") {
		t.Errorf("Expected part-001 to survive, got %s", prepared.Chunks[0].Path)
	}
}

func TestPrepare_FallsBackToWholeTranscodedFile(t *testing.T) {
	runner := &fakeRunner{}
	var removed []string
	sizes := map[string]int64{
		"/audio/big.m4a":           MaxChunkBytes + 1,
		"/work/seg/part-000.m4a":   MaxChunkBytes + 5,
		"/work/seg/transcoded.m4a": 4096,
	}
	s := testSegmenter(runner, sizes, []string{"part-000.m4a"}, &removed)

	prepared, err := s.Prepare(context.Background(), "/audio/big.m4a")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(prepared.Chunks) != 1 {
		t.Fatalf("Chunk list must never be empty, got %d chunks", len(prepared.Chunks))
	}
	if !strings.HasSuffix(prepared.Chunks[0].Path, "transcoded.m4a") {
		t.Errorf("Expected fallback to transcoded file, got %s", prepared.Chunks[0].Path)
	}
}
