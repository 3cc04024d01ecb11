package types

import (
	"fmt"
	"time"
)

// PixelFormat identifies how the planes of a Frame are laid out
type PixelFormat int

const (
	// FormatYUV420 is three planes (Y, U, V) with 2x2 chroma subsampling.
	// A chroma pixel stride of 2 covers the interleaved NV12/NV21 layouts.
	FormatYUV420 PixelFormat = iota
	// FormatBGRA is one plane of 4 bytes per pixel in B, G, R, A order
	FormatBGRA
	// FormatRGBA is one plane of 4 bytes per pixel in R, G, B, A order
	FormatRGBA
	// FormatRGB is one plane of packed 3 bytes per pixel
	FormatRGB
	// FormatEncoded is one plane holding a container-encoded image (JPEG, PNG, WebP...)
	FormatEncoded
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420"
	case FormatBGRA:
		return "bgra"
	case FormatRGBA:
		return "rgba"
	case FormatRGB:
		return "rgb"
	case FormatEncoded:
		return "encoded"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Plane is one buffer of a Frame. RowStride may exceed the logical row width.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is a single capture handed to the pipeline by the host.
// The pipeline owns it until Release is called.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Planes []Plane

	// Rotation is the clockwise sensor rotation in degrees (0, 90, 180, 270)
	Rotation int
	// Orientation overrides Rotation when set (non-zero)
	Orientation Orientation

	Timestamp time.Time

	// Release returns the underlying buffers to the host. Optional.
	Release func()
}

// NewEncodedFrame wraps container-encoded bytes, e.g. a JPEG from a hardware capture path
func NewEncodedFrame(data []byte, rotation int) *Frame {
	return &Frame{
		Format:    FormatEncoded,
		Planes:    []Plane{{Data: data}},
		Rotation:  rotation,
		Timestamp: time.Now(),
	}
}

// NewPackedFrame wraps a single-plane BGRA, RGBA or RGB buffer
func NewPackedFrame(format PixelFormat, width, height, rowStride int, data []byte) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Format:    format,
		Planes:    []Plane{{Data: data, RowStride: rowStride, PixelStride: format.BytesPerPixel()}},
		Timestamp: time.Now(),
	}
}

// BytesPerPixel returns the pixel size of packed formats, 0 otherwise
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGRA, FormatRGBA:
		return 4
	case FormatRGB:
		return 3
	default:
		return 0
	}
}

// IsEncoded reports whether the frame carries container bytes rather than raw pixels
func (f *Frame) IsEncoded() bool {
	return f.Format == FormatEncoded
}

// EffectiveOrientation resolves the orientation to bake into the frame
func (f *Frame) EffectiveOrientation() (Orientation, error) {
	if f.Orientation != 0 {
		if !f.Orientation.Valid() {
			return 0, fmt.Errorf("%w: orientation tag %d", ErrDecode, int(f.Orientation))
		}
		return f.Orientation, nil
	}
	return OrientationFromRotation(f.Rotation)
}

// Done releases the frame once. Safe on nil frames and repeated calls.
func (f *Frame) Done() {
	if f == nil || f.Release == nil {
		return
	}
	rel := f.Release
	f.Release = nil
	rel()
}

// Size is a width x height pair in pixels
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Area returns Width*Height
func (s Size) Area() int {
	return s.Width * s.Height
}

// CropStencil describes a centered crop: a fraction of the base width and an aspect ratio (w/h)
type CropStencil struct {
	WidthPercent float64 `json:"width_percent" yaml:"width_percent"`
	AspectRatio  float64 `json:"aspect_ratio" yaml:"aspect_ratio"`
}

// Validate checks WidthPercent is in (0,1] and AspectRatio is positive
func (s CropStencil) Validate() error {
	if !(s.WidthPercent > 0 && s.WidthPercent <= 1) {
		return fmt.Errorf("%w: stencil width percent %v outside (0,1]", ErrGeometry, s.WidthPercent)
	}
	if !(s.AspectRatio > 0) {
		return fmt.Errorf("%w: stencil aspect ratio %v must be positive", ErrGeometry, s.AspectRatio)
	}
	return nil
}
