// Package thumb produces JPEG thumbnails for images and video files.
// Still images are decoded in-process; video frames come from an external
// FrameExtractor so codec handling stays out of the server.
package thumb

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	// still-image decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Quality constants match the original transfer behavior: stills compress
// a little harder than video frames decode cleanly.
const (
	imageQuality = 85
	videoQuality = 80
)

// FrameExtractor supplies one decoded frame of a video file, nearest the
// given timestamp. Implementations fall back to the first available frame
// when the timestamp cannot be served.
type FrameExtractor interface {
	Frame(path string, timestampMs int64) (image.Image, error)
}

// Producer turns files into JPEG thumbnails.
type Producer struct {
	// Frames handles video input. Nil disables video thumbnails.
	Frames FrameExtractor
}

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".webm": true,
}

// IsVideo reports whether a file name carries a video extension.
func IsVideo(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

// Thumbnail renders path as a JPEG at most width pixels wide; height
// follows the source aspect ratio. timestampMs selects the video frame and
// is ignored for still images.
func (p *Producer) Thumbnail(path string, width int, timestampMs int64) ([]byte, error) {
	if width <= 0 {
		width = 256
	}
	if IsVideo(path) {
		if p.Frames == nil {
			return nil, errors.New("no video frame extractor configured")
		}
		frame, err := p.Frames.Frame(path, timestampMs)
		if err != nil {
			return nil, err
		}
		return encodeScaled(frame, width, videoQuality)
	}
	src, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	return encodeScaled(src, width, imageQuality)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// encodeScaled scales src to the target width (aspect preserved) with
// CatmullRom resampling and encodes it as JPEG.
func encodeScaled(src image.Image, width, quality int) ([]byte, error) {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return nil, os.ErrInvalid
	}
	nw, nh := sw, sh
	if sw > width {
		nw = width
		nh = int(float64(sh) * (float64(width) / float64(sw)))
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
