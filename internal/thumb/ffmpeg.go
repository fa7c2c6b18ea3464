package thumb

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"time"
)

// FFmpegExtractor shells out to ffmpeg for video frames.
type FFmpegExtractor struct {
	// Bin is the ffmpeg binary, resolved via PATH when not absolute.
	Bin string
}

// NewFFmpegExtractor returns an extractor using bin, defaulting to
// "ffmpeg", or nil when video thumbnails are disabled (bin == "-").
func NewFFmpegExtractor(bin string) *FFmpegExtractor {
	if bin == "-" {
		return nil
	}
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegExtractor{Bin: bin}
}

// Frame decodes the frame nearest timestampMs. When seeking fails (stream
// shorter than the timestamp, corrupt index) it retries at the start of
// the file before giving up.
func (e *FFmpegExtractor) Frame(path string, timestampMs int64) (image.Image, error) {
	if timestampMs > 0 {
		if img, err := e.grab(path, timestampMs); err == nil {
			return img, nil
		}
	}
	img, err := e.grab(path, 0)
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}
	return img, nil
}

func (e *FFmpegExtractor) grab(path string, timestampMs int64) (image.Image, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if timestampMs > 0 {
		seek := time.Duration(timestampMs) * time.Millisecond
		args = append(args, "-ss", fmt.Sprintf("%.3f", seek.Seconds()))
	}
	args = append(args, "-i", path, "-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "pipe:1")

	cmd := exec.Command(e.Bin, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, bytes.TrimSpace(errb.Bytes()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame")
	}
	return jpeg.Decode(&out)
}
