package stages

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// commandContext is overridden in tests to avoid invoking a real ffmpeg
// binary.
var commandContext = exec.CommandContext

// FFmpegRenderer builds video segments and the final draft by shelling
// out to ffmpeg. It never inspects ffmpeg's internal behavior beyond exit
// status; encoding flags are a concrete collaborator detail.
type FFmpegRenderer struct {
	BinaryPath string
}

// NewFFmpegRenderer returns an FFmpegRenderer invoking the given binary
// (or "ffmpeg" from $PATH if empty).
func NewFFmpegRenderer(binaryPath string) *FFmpegRenderer {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpegRenderer{BinaryPath: binaryPath}
}

// RenderSegment still-images imagePath for the duration of audioPath,
// muxing in the narration track.
func (r *FFmpegRenderer) RenderSegment(ctx context.Context, imagePath, audioPath string) ([]byte, error) {
	out, err := os.CreateTemp("", "podship-segment-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("render segment: create temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := commandContext(ctx, r.BinaryPath,
		"-y", "-loop", "1", "-i", imagePath, "-i", audioPath,
		"-c:v", "libx264", "-tune", "stillimage", "-c:a", "aac",
		"-pix_fmt", "yuv420p", "-shortest", outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("render segment: ffmpeg failed: %w: %s", err, string(output))
	}
	return os.ReadFile(outPath)
}

// Concatenate stitches the ordered segment files into one draft using
// ffmpeg's concat demuxer.
func (r *FFmpegRenderer) Concatenate(ctx context.Context, segmentPaths []string) ([]byte, error) {
	list, err := os.CreateTemp("", "podship-concat-*.txt")
	if err != nil {
		return nil, fmt.Errorf("render concatenate: create list file: %w", err)
	}
	defer os.Remove(list.Name())
	for _, p := range segmentPaths {
		if _, err := fmt.Fprintf(list, "file '%s'\n", p); err != nil {
			list.Close()
			return nil, fmt.Errorf("render concatenate: write list entry: %w", err)
		}
	}
	list.Close()

	out, err := os.CreateTemp("", "podship-draft-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("render concatenate: create temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	cmd := commandContext(ctx, r.BinaryPath,
		"-y", "-f", "concat", "-safe", "0", "-i", list.Name(), "-c", "copy", outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("render concatenate: ffmpeg failed: %w: %s", err, string(output))
	}
	return os.ReadFile(outPath)
}
