// Package videoengine is the Transcoder Gateway: a uniform,
// asynchronous wrapper around the external ffmpeg/ffprobe tools. Every other
// pipeline component that needs to invoke the transcoder goes through this
// package rather than shelling out directly, so tool detection, argument
// assembly, and stderr capture stay in one place.
package videoengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"creative-studio-server/config"
	"creative-studio-server/internal/pipeline"
	"creative-studio-server/pkg/logger"
)

// Gateway wraps ffmpeg/ffprobe invocation. Tool paths are resolved once at
// construction and treated as immutable configuration, probed at startup
// rather than re-resolved on every call.
type Gateway struct {
	ffmpegPath  string
	ffprobePath string
}

// VideoInfo is the result of probing a media file with ffprobe.
type VideoInfo struct {
	Duration     float64 `json:"duration"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FrameRate    float64 `json:"frame_rate"`
	Bitrate      int     `json:"bitrate"`
	Codec        string  `json:"codec"`
	Format       string  `json:"format"`
	Size         int64   `json:"size"`
	AudioCodec   string  `json:"audio_codec"`
	AudioBitrate int     `json:"audio_bitrate"`
	HasAudio     bool    `json:"has_audio"`
}

// RenderOptions parameterizes an ffmpeg encode pass: codec settings,
// resolution, bitrate, and a chain of video filters.
type RenderOptions struct {
	Width        int
	Height       int
	FrameRate    float64
	VideoBitrate int
	AudioBitrate int
	Preset       string
	CRF          int
	PixelFormat  string
	VideoCodec   string // defaults to libx264
	CopyVideo    bool   // -c:v copy instead of re-encoding
	Filters      []VideoFilter
}

type VideoFilter struct {
	Name       string
	Parameters map[string]interface{}
}

// RenderProgress is a single parsed line of ffmpeg's `-progress pipe:1`
// output.
type RenderProgress struct {
	Frame     int
	FPS       float64
	Time      string
	Speed     float64
	SizeBytes string
	Progress  float64 // percent of totalDuration, if known
}

// qualityCRF maps coarse quality tiers to CRF values; BuildRenderArgs
// uses its "medium" tier as the default CRF.
var qualityCRF = map[string]int{
	"low":    28,
	"medium": 23,
	"high":   18,
	"ultra":  15,
}

func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		ffmpegPath:  cfg.Pipeline.FFmpegPath,
		ffprobePath: cfg.Pipeline.FFprobePath,
	}
}

// wellKnownPaths lists fallback install locations per platform, the same
// shape ffmpeg_checker.py's find_ffmpeg_executable/find_ffprobe_executable
// fall back to when the binary isn't on PATH.
func wellKnownPaths(bin string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\ffmpeg\bin\` + bin + ".exe",
			`C:\Program Files\ffmpeg\bin\` + bin + ".exe",
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin/" + bin,
			"/usr/local/bin/" + bin,
		}
	default:
		return []string{
			"/usr/bin/" + bin,
			"/usr/local/bin/" + bin,
		}
	}
}

// resolveExecutable finds an executable by name on PATH, falling back to a
// platform-specific list of well-known install prefixes.
func resolveExecutable(name string) (string, bool) {
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}
	for _, candidate := range wellKnownPaths(name) {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, true
		}
	}
	return "", false
}

// CheckAvailability resolves both tool paths and verifies each by running
// `<path> -version` with a bounded timeout. It returns pipeline.ErrToolMissing if
// either tool cannot be found or fails to respond within the timeout.
func CheckAvailability(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	ffmpegPath := cfg.Pipeline.FFmpegPath
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		resolved, ok := resolveExecutable("ffmpeg")
		if !ok {
			return nil, pipeline.ErrToolMissing
		}
		ffmpegPath = resolved
	}

	ffprobePath := cfg.Pipeline.FFprobePath
	if _, err := exec.LookPath(ffprobePath); err != nil {
		resolved, ok := resolveExecutable("ffprobe")
		if !ok {
			return nil, pipeline.ErrToolMissing
		}
		ffprobePath = resolved
	}

	timeout := cfg.Pipeline.ToolProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for _, path := range []string{ffmpegPath, ffprobePath} {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := exec.CommandContext(probeCtx, path, "-version").Run()
		cancel()
		if err != nil {
			logger.Errorf("tool verification failed for %s: %v", path, err)
			return nil, pipeline.ErrToolMissing
		}
	}

	return &Gateway{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// Run executes the transcoder with argv, asynchronously (the child process
// does not block the caller's goroutine beyond the wait), and returns
// captured stdout/stderr and the exit code. Arguments are always passed as
// a list — no shell interpretation.
func (g *Gateway) Run(ctx context.Context, argv []string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, g.ffmpegPath, argv...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		return stdout, stderr, exitCode, pipeline.NewTranscodeError(argv, exitCode, stderr)
	}
	return stdout, stderr, 0, nil
}

// ProbeDuration returns the media duration in seconds using ffprobe.
func (g *Gateway) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, g.ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", pipeline.ErrProbeFailed, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, pipeline.ErrProbeFailed
	}
	return d, nil
}

// GetVideoInfo runs the full ffprobe format+streams probe used by the
// Assembler/Conformer to learn a source's duration, resolution, and codecs.
func (g *Gateway) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, g.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		logger.Errorf("failed to get video info for %s: %v", path, err)
		return nil, fmt.Errorf("%w: %v", pipeline.ErrProbeFailed, err)
	}

	return parseVideoInfo(output)
}

func parseVideoInfo(output []byte) (*VideoInfo, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			BitRate    string `json:"bit_rate"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}

	if duration, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = duration
	}
	if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if bitrate, err := strconv.Atoi(probe.Format.BitRate); err == nil {
		info.Bitrate = bitrate
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			if stream.RFrameRate != "" {
				parts := strings.Split(stream.RFrameRate, "/")
				if len(parts) == 2 {
					num, _ := strconv.ParseFloat(parts[0], 64)
					den, _ := strconv.ParseFloat(parts[1], 64)
					if den != 0 {
						info.FrameRate = num / den
					}
				}
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
			if bitrate, err := strconv.Atoi(stream.BitRate); err == nil {
				info.AudioBitrate = bitrate
			}
		}
	}

	switch info.Codec {
	case "h264", "hevc":
		info.Format = "mp4"
	case "vp9", "vp8":
		info.Format = "webm"
	default:
		info.Format = "unknown"
	}

	return info, nil
}

// GenerateThumbnail extracts a single JPEG frame, used by the Vision
// Enricher to build its classifier request.
func (g *Gateway) GenerateThumbnail(ctx context.Context, inputPath, outputPath string, timeOffset float64) error {
	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.2f", timeOffset),
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to generate thumbnail: %w", err)
	}
	return nil
}

// ConcatFileList writes an ffmpeg concat-demuxer file listing each input
// path verbatim (`file '<path>'`). Callers needing precise in/out points
// (the Conformer) append `inpoint`/`duration` lines themselves via
// ConcatFileListWithTrim.
func ConcatFileList(dir string, paths []string) (string, error) {
	listPath := filepath.Join(dir, "concat_filelist.txt")
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	if err := writeFile(listPath, b.String()); err != nil {
		return "", err
	}
	return listPath, nil
}

// ConcatFileListWithTrim writes a concat-demuxer file list with precise
// per-entry `inpoint`/`duration` directives, the form the Conformer uses to
// re-cut from original sources.
func ConcatFileListWithTrim(dir string, clips []pipeline.TimelineClip) (string, error) {
	listPath := filepath.Join(dir, "conform_filelist.txt")
	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c.Src)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
		fmt.Fprintf(&b, "inpoint %.3f\n", c.In)
		fmt.Fprintf(&b, "duration %.3f\n", c.Out-c.In)
	}
	if err := writeFile(listPath, b.String()); err != nil {
		return "", err
	}
	return listPath, nil
}

// BuildRenderArgs turns RenderOptions into the flag sequence ffmpeg expects,
// falling back to qualityCRF's "medium" tier when opts.CRF is not set.
func BuildRenderArgs(opts *RenderOptions) []string {
	if opts == nil {
		return []string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac", "-b:a", "128k"}
	}

	var args []string

	if opts.CopyVideo {
		args = append(args, "-c:v", "copy")
	} else {
		codec := opts.VideoCodec
		if codec == "" {
			codec = "libx264"
		}
		args = append(args, "-c:v", codec)

		preset := opts.Preset
		if preset == "" {
			preset = "medium"
		}
		args = append(args, "-preset", preset)

		crf := opts.CRF
		if crf <= 0 {
			crf = qualityCRF["medium"]
		}
		args = append(args, "-crf", strconv.Itoa(crf))

		if opts.Width > 0 && opts.Height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height))
		}
		if opts.FrameRate > 0 {
			args = append(args, "-r", fmt.Sprintf("%.2f", opts.FrameRate))
		}
		if opts.VideoBitrate > 0 {
			args = append(args, "-b:v", fmt.Sprintf("%dk", opts.VideoBitrate))
		}
		if opts.PixelFormat != "" {
			args = append(args, "-pix_fmt", opts.PixelFormat)
		}
		if filterStr := buildVideoFilters(opts.Filters); filterStr != "" {
			args = append(args, "-vf", filterStr)
		}
	}

	args = append(args, "-c:a", "aac")
	if opts.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", opts.AudioBitrate))
	} else {
		args = append(args, "-b:a", "128k")
	}

	return args
}

func buildVideoFilters(filters []VideoFilter) string {
	var parts []string
	for _, filter := range filters {
		s := filter.Name
		if len(filter.Parameters) > 0 {
			var kv []string
			for k, v := range filter.Parameters {
				kv = append(kv, fmt.Sprintf("%s=%v", k, v))
			}
			s += "=" + strings.Join(kv, ":")
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

// RunWithProgress runs cmd, streaming ffmpeg's `-progress pipe:1` stdout
// through bufio.Scanner so progress callbacks actually fire on each
// completed line.
func RunWithProgress(cmd *exec.Cmd, totalDuration float64, onProgress func(*RenderProgress)) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		var pending RenderProgress
		for scanner.Scan() {
			line := scanner.Text()
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			switch key {
			case "frame":
				pending.Frame, _ = strconv.Atoi(value)
			case "fps":
				pending.FPS, _ = strconv.ParseFloat(value, 64)
			case "out_time":
				pending.Time = value
				if totalDuration > 0 {
					if secs := parseFFmpegTime(value); secs > 0 {
						pending.Progress = (secs / totalDuration) * 100
					}
				}
			case "speed":
				speedStr := strings.TrimSuffix(value, "x")
				pending.Speed, _ = strconv.ParseFloat(speedStr, 64)
			case "total_size":
				pending.SizeBytes = value
			case "progress":
				// "continue" or "end" — a full progress record is complete.
				if onProgress != nil {
					snapshot := pending
					onProgress(&snapshot)
				}
			}
		}
	}()

	waitErr := cmd.Wait()
	<-done
	return waitErr
}

func parseFFmpegTime(s string) float64 {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.ParseFloat(parts[2], 64)
	return float64(hours*3600+minutes*60) + seconds
}
