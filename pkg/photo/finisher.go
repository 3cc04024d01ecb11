// Package photo turns a captured still frame into the final encoded picture.
package photo

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/frame-pipeline/pkg/codec"
	"github.com/menta2k/frame-pipeline/pkg/colorconv"
	"github.com/menta2k/frame-pipeline/pkg/geometry"
	"github.com/menta2k/frame-pipeline/pkg/orientation"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Finisher decodes, orients, crops and re-encodes captured frames
type Finisher struct {
	config Config
}

// Config holds defaults applied when a Request leaves them unset
type Config struct {
	DefaultQuality int
	Format         codec.Format
	Lossless       bool
}

// New creates a Finisher producing JPEG at quality 90
func New() *Finisher {
	return &Finisher{
		config: Config{
			DefaultQuality: 90,
			Format:         codec.JPEG,
		},
	}
}

// NewWithConfig creates a Finisher with custom defaults
func NewWithConfig(config Config) *Finisher {
	if config.DefaultQuality == 0 {
		config.DefaultQuality = 90
	}
	if config.Format == "" {
		config.Format = codec.JPEG
	}
	return &Finisher{config: config}
}

// Finish produces the encoded picture for frame. It never releases the frame.
//
// An encoded JPEG frame without a stencil is returned unchanged. Any failure
// is a *ProcessingError.
func (f *Finisher) Finish(frame *types.Frame, req Request) ([]byte, error) {
	if frame == nil {
		return nil, &ProcessingError{Kind: types.ErrDecode, Message: "no frame"}
	}
	if err := req.Validate(); err != nil {
		return nil, newProcessingError("invalid request", err)
	}

	opts := f.encodeOptions(req)

	if frame.IsEncoded() && req.Stencil == nil && opts.Format == codec.JPEG &&
		len(frame.Planes) > 0 && codec.IsJPEG(frame.Planes[0].Data) {
		// copied: the frame buffer goes back to the host on release
		return bytes.Clone(frame.Planes[0].Data), nil
	}

	img, err := f.decode(frame)
	if err != nil {
		return nil, newProcessingError("decode frame", err)
	}

	o, err := frame.EffectiveOrientation()
	if err != nil {
		return nil, newProcessingError("resolve orientation", err)
	}
	img, err = orientation.Bake(img, o)
	if err != nil {
		return nil, newProcessingError("bake orientation", err)
	}

	if req.Stencil != nil {
		b := img.Bounds()
		rect, err := CropRect(b.Dx(), b.Dy(), req)
		if err != nil {
			return nil, newProcessingError("compute crop", err)
		}
		img = imaging.Crop(img, rect.Image(b.Min))
	}

	out, err := codec.EncodeBytes(img, opts)
	if err != nil {
		return nil, newProcessingError("encode photo", err)
	}
	return out, nil
}

// CropRect returns the stencil crop of an upright width x height picture,
// clamped to its bounds. The request must carry a stencil.
func CropRect(width, height int, req Request) (geometry.Rect, error) {
	if req.Stencil == nil {
		return geometry.Full(width, height), nil
	}
	if err := req.Stencil.Validate(); err != nil {
		return geometry.Rect{}, err
	}

	base := geometry.Full(width, height)
	if req.Basis == CropBasisPreview {
		if err := geometry.CheckCenterCrop(width, height, req.Preview.Width, req.Preview.Height); err != nil {
			return geometry.Rect{}, err
		}
		base = geometry.CenterCropSourceRect(width, height, req.Preview.Width, req.Preview.Height)
	}

	// both steps truncate independently, so the composition may poke out by a pixel
	rect := geometry.Stencil(base, *req.Stencil).Clamp(width, height)
	if rect.Empty() {
		return geometry.Rect{}, fmt.Errorf("%w: crop %v of %dx%d is empty", types.ErrGeometry, rect, width, height)
	}
	return rect, nil
}

func (f *Finisher) encodeOptions(req Request) codec.Options {
	opts := codec.Options{
		Format:   f.config.Format,
		Quality:  f.config.DefaultQuality,
		Lossless: f.config.Lossless,
	}
	if req.Quality != 0 {
		opts.Quality = req.Quality
	}
	if req.Format != "" {
		opts.Format = req.Format
	}
	return opts
}

func (f *Finisher) decode(frame *types.Frame) (image.Image, error) {
	if frame.IsEncoded() {
		return codec.DecodeFrame(frame)
	}
	return colorconv.Wrap(frame)
}
