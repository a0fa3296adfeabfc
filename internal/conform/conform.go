// Package conform implements the Conformer: re-rendering
// a previously emitted Timeline from its original source clips at master
// quality, with an optional music overlay.
//
// Grounded on original_source/worker/conform.py's ConformProcessor.
package conform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"creative-studio-server/internal/pipeline"
	"creative-studio-server/internal/timeline"
	"creative-studio-server/pkg/videoengine"
)

// Gateway is the subset of *videoengine.Gateway the Conformer needs.
type Gateway interface {
	Run(ctx context.Context, argv []string) (stdout, stderr string, exitCode int, err error)
}

var _ Gateway = (*videoengine.Gateway)(nil)

// Conformer re-renders a Timeline's clips from their original sources.
type Conformer struct {
	gw Gateway
}

func New(gw Gateway) *Conformer {
	return &Conformer{gw: gw}
}

// Options parameterizes a single Conform call, mirroring the
// command-line surface in cmd/conform.
type Options struct {
	TimelinePath string
	OutputPath   string // "" => highlight_master.mp4 in TempDir
	MusicPath    string // "" => use the timeline's own music field
	NoAudio      bool
	TempDir      string // "" => a freshly created system temp directory
}

// Result is what Conform returns.
type Result struct {
	OutputPath string
	TempDir    string
}

// Conform reads and validates the timeline at opts.TimelinePath, then
// re-renders it from the original sources at master quality, optionally muxing music on top using the same
// loudness chain as the Assembler's step 7.
func (c *Conformer) Conform(ctx context.Context, opts Options) (Result, error) {
	tl, _, err := timeline.Read(opts.TimelinePath)
	if err != nil {
		return Result{}, fmt.Errorf("conform: read timeline: %w", err)
	}

	if err := timeline.ValidateSources(tl); err != nil {
		return Result{}, fmt.Errorf("conform: %w", err)
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir, err = os.MkdirTemp("", "conform_")
		if err != nil {
			return Result{}, err
		}
	} else if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return Result{}, err
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(tempDir, "highlight_master.mp4")
	} else {
		outputPath, err = filepath.Abs(outputPath)
		if err != nil {
			return Result{}, err
		}
	}

	musicPath := opts.MusicPath
	if musicPath == "" {
		musicPath = tl.Music
	}

	if opts.NoAudio {
		if err := c.conformVideoOnly(ctx, tl, outputPath, tempDir); err != nil {
			return Result{}, fmt.Errorf("conform: video-only render: %w", err)
		}
	} else {
		if err := c.conformWithAudio(ctx, tl, outputPath, musicPath, tempDir); err != nil {
			return Result{}, fmt.Errorf("conform: render with audio: %w", err)
		}
	}

	return Result{OutputPath: outputPath, TempDir: tempDir}, nil
}

func (c *Conformer) conformVideoOnly(ctx context.Context, tl *pipeline.Timeline, outputPath, tempDir string) error {
	listPath, err := videoengine.ConcatFileListWithTrim(tempDir, tl.Clips)
	if err != nil {
		return err
	}

	fps := tl.FPS
	if fps <= 0 {
		fps = 25
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-r", fmt.Sprintf("%d", fps),
		"-pix_fmt", "yuv420p",
		outputPath,
	}
	if _, stderr, _, err := c.gw.Run(ctx, args); err != nil {
		return fmt.Errorf("%w (%s)", err, stderr)
	}
	return nil
}

func (c *Conformer) conformWithAudio(ctx context.Context, tl *pipeline.Timeline, outputPath, musicPath, tempDir string) error {
	videoPath := filepath.Join(tempDir, "conform_video.mp4")
	if err := c.conformVideoOnly(ctx, tl, videoPath, tempDir); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1", "-i", musicPath,
		"-filter_complex", "[1:a]loudnorm=I=-14:TP=-1.5:LRA=11,aresample=48000,pan=stereo|FL=c0|FR=c1[a]",
		"-map", "0:v:0",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", "192k",
		"-shortest",
		outputPath,
	}
	if _, stderr, _, err := c.gw.Run(ctx, args); err != nil {
		return fmt.Errorf("%w (%s)", err, stderr)
	}
	return nil
}
