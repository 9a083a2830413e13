// Package segment prepares provider-size-compliant audio chunks from an
// arbitrarily large recording.
//
// Small inputs pass through untouched to avoid an unnecessary lossy
// transcode; oversized inputs are transcoded down to a mono 16 kHz 48 kbps
// stream and split into fixed-duration segments that are independently
// decodable.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"voicenotes/pkg/domain"
)

const (
	// MaxChunkBytes is the provider upload ceiling per chunk.
	MaxChunkBytes = 24 * 1024 * 1024

	// SegmentSeconds is the fixed duration of each split segment.
	SegmentSeconds = 600

	// transcode target: mono, 16 kHz, 48 kbps AAC.
	audioBitrate = "48k"
	sampleRate   = "16000"
)

// Chunk is one size-bounded slice of audio ready for upload.
type Chunk struct {
	Path string
	Size int64
}

// Prepared is the output of one Prepare run. Cleanup removes the temporary
// transcode workspace; it is a no-op when the input passed through untouched.
type Prepared struct {
	Chunks  []Chunk
	tempDir string

	removeAll func(path string) error
}

// Cleanup removes temporary transcode artifacts created by Prepare.
func (p *Prepared) Cleanup() error {
	if p == nil || p.tempDir == "" {
		return nil
	}
	if err := p.removeAll(p.tempDir); err != nil {
		return err
	}
	p.tempDir = ""
	return nil
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Segmenter turns one audio file into a non-empty list of chunks.
type Segmenter struct {
	ffmpegPath string
	runner     commandRunner
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
	stat       func(name string) (os.FileInfo, error)
	readDir    func(name string) ([]os.DirEntry, error)
}

// NewSegmenter constructs the production segmenter with OS dependencies.
func NewSegmenter() *Segmenter {
	return &Segmenter{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
		readDir:    os.ReadDir,
	}
}

// Prepare returns the chunk list for one audio file. The list is never
// empty: inputs within MaxChunkBytes pass through as a single chunk, and the
// oversized-segment filter always falls back to the whole transcoded file.
func (s *Segmenter) Prepare(ctx context.Context, audioPath string) (*Prepared, error) {
	info, err := s.stat(audioPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.AudioNotFoundError{URI: audioPath, Err: err}
		}
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	if info.Size() <= MaxChunkBytes {
		return &Prepared{
			Chunks:    []Chunk{{Path: audioPath, Size: info.Size()}},
			removeAll: s.removeAll,
		}, nil
	}

	tempDir, err := s.mkdirTemp("", "voicenotes-segment-*")
	if err != nil {
		return nil, fmt.Errorf("create transcode workspace: %w", err)
	}

	transcoded := filepath.Join(tempDir, "transcoded.m4a")
	if err := s.run(ctx, transcodeArgs(audioPath, transcoded)); err != nil {
		_ = s.removeAll(tempDir)
		return nil, err
	}

	pattern := filepath.Join(tempDir, "part-%03d.m4a")
	if err := s.run(ctx, splitArgs(transcoded, pattern)); err != nil {
		_ = s.removeAll(tempDir)
		return nil, err
	}

	chunks, err := s.collectSegments(tempDir)
	if err != nil {
		_ = s.removeAll(tempDir)
		return nil, err
	}

	if len(chunks) == 0 {
		// No segment fits the budget; include the whole transcoded file so
		// the chunk list is never empty.
		tinfo, err := s.stat(transcoded)
		if err != nil {
			_ = s.removeAll(tempDir)
			return nil, fmt.Errorf("stat transcoded audio: %w", err)
		}
		log.Printf("Segmenter: no segment within %d bytes, falling back to whole transcoded file (%d bytes)", MaxChunkBytes, tinfo.Size())
		chunks = []Chunk{{Path: transcoded, Size: tinfo.Size()}}
	}

	return &Prepared{Chunks: chunks, tempDir: tempDir, removeAll: s.removeAll}, nil
}

// run executes ffmpeg and maps failures to *domain.TranscodeError.
func (s *Segmenter) run(ctx context.Context, args []string) error {
	result, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return &domain.TranscodeError{
			Command:  s.ffmpegPath,
			ExitCode: result.ExitCode,
			Stderr:   strings.TrimSpace(result.Stderr),
			Err:      err,
		}
	}
	return nil
}

// collectSegments lists produced part files in order, dropping any segment
// that still exceeds the size budget.
func (s *Segmenter) collectSegments(dir string) ([]Chunk, error) {
	entries, err := s.readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "part-") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	chunks := make([]Chunk, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := s.stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat segment: %w", err)
		}
		if info.Size() > MaxChunkBytes {
			log.Printf("Segmenter: dropping oversized segment %s (%d bytes)", name, info.Size())
			continue
		}
		chunks = append(chunks, Chunk{Path: path, Size: info.Size()})
	}
	return chunks, nil
}

// transcodeArgs builds ffmpeg args for the mono 16 kHz 48 kbps shrink pass.
func transcodeArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", sampleRate,
		"-c:a", "aac",
		"-b:a", audioBitrate,
		outPath,
	}
}

// splitArgs builds ffmpeg args for fixed-duration segments with reset
// timestamps so each part is independently decodable.
func splitArgs(inputPath, outPattern string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(SegmentSeconds),
		"-reset_timestamps", "1",
		"-c", "copy",
		outPattern,
	}
}

// NewSegmenterForTests constructs a segmenter with injectable dependencies.
func NewSegmenterForTests(
	ffmpegPath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
	readDir func(name string) ([]os.DirEntry, error),
) *Segmenter {
	return &Segmenter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirTemp:  mkdirTemp,
		removeAll:  removeAll,
		stat:       stat,
		readDir:    readDir,
	}
}
