// Package codec decodes container-encoded frames and encodes finished photos.
package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Format is an output container
type Format string

const (
	JPEG Format = "jpeg"
	WebP Format = "webp"
)

// ParseFormat accepts jpg, jpeg and webp, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("%w: unsupported output format %q", types.ErrConfiguration, s)
	}
}

// Options controls encoding
type Options struct {
	Format   Format
	Quality  int
	Lossless bool
}

// Sniff returns the registered format name of encoded data ("jpeg", "png", "webp"...)
// without decoding the pixels.
func Sniff(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	return format, nil
}

// IsJPEG reports whether data starts with a JPEG start-of-image marker
func IsJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff
}

// Decode decodes container bytes. Embedded EXIF orientation is ignored: the
// caller bakes the orientation reported with the frame.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", types.ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(false))
	if err == nil {
		return img, nil
	}

	// Fallback: libwebp handles the extended WebP features x/image does not
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}

	return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
}

// DecodeFrame decodes the single plane of an encoded frame
func DecodeFrame(f *types.Frame) (image.Image, error) {
	if !f.IsEncoded() {
		return nil, fmt.Errorf("%w: %v frame is not encoded", types.ErrDecode, f.Format)
	}
	if len(f.Planes) == 0 {
		return nil, fmt.Errorf("%w: encoded frame has no data", types.ErrDecode)
	}
	return Decode(f.Planes[0].Data)
}

// Encode writes img to w
func Encode(w io.Writer, img image.Image, opts Options) error {
	if opts.Quality < 1 || opts.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 1-100", types.ErrEncode, opts.Quality)
	}

	var err error
	switch opts.Format {
	case WebP:
		err = webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(opts.Quality)})
	case JPEG, "":
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
	default:
		return fmt.Errorf("%w: unsupported output format %q", types.ErrEncode, opts.Format)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrEncode, err)
	}
	return nil
}

// EncodeBytes encodes img into a new byte slice
func EncodeBytes(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
