package videoengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// ExtractAudio copies the audio stream out of a media file without
// re-encoding. The Music Analyzer normalizes audio through TranscodeToWAV,
// not this method.
func (g *Gateway) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-i", inputPath,
		"-vn",
		"-acodec", "copy",
		"-y",
		outputPath,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}
	return nil
}

// TranscodeToWAV normalizes an audio source to mono 22.05kHz PCM WAV, the
// format the Music Analyzer's beat tracker requires.
func (g *Gateway) TranscodeToWAV(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-i", inputPath,
		"-ac", "1",
		"-ar", "22050",
		"-f", "wav",
		"-y",
		outputPath,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to transcode to wav: %w", err)
	}
	return nil
}
