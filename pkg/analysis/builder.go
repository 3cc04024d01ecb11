package analysis

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/frame-pipeline/pkg/geometry"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Builder renders sensor images into the fixed-size tensor layout of one
// Options value. A Builder is not safe for concurrent use; each consumer
// owns one.
type Builder struct {
	opts   Options
	order  binary.ByteOrder
	interp draw.Interpolator

	// canvas is always ImageSize; only the transform changes with the source
	canvas *image.RGBA

	// transform cache, recomputed when the source bounds or orientation change
	srcBounds image.Rectangle
	srcOrient types.Orientation
	crop      image.Rectangle
	s2d       f64.Aff3
	copyOnly  bool
}

// NewBuilder validates opts and returns a Builder for them
func NewBuilder(opts Options) (*Builder, error) {
	if err := opts.Validate(""); err != nil {
		return nil, err
	}
	return &Builder{
		opts:   opts,
		order:  opts.ByteOrder.binary(),
		interp: draw.NearestNeighbor,
		canvas: image.NewRGBA(image.Rect(0, 0, opts.ImageSize.Width, opts.ImageSize.Height)),
	}, nil
}

// Options returns the options the builder was created with
func (b *Builder) Options() Options {
	return b.opts
}

// SetInterpolator replaces the default nearest-neighbour sampling, e.g. with
// draw.ApproxBiLinear for smoother downscaling.
func (b *Builder) SetInterpolator(interp draw.Interpolator) {
	if interp != nil {
		b.interp = interp
	}
}

// Build draws src, stored in orientation o, upright into the target size and
// returns a new buffer of exactly BufferSize bytes.
//
// With a stencil, the crop is taken in upright coordinates and mapped back
// onto src before drawing, so only the cropped region is scaled.
func (b *Builder) Build(src image.Image, o types.Orientation) ([]byte, error) {
	if err := b.prepare(src.Bounds(), o); err != nil {
		return nil, err
	}

	if b.copyOnly {
		draw.Draw(b.canvas, b.canvas.Bounds(), src, b.crop.Min, draw.Src)
	} else {
		b.interp.Transform(b.canvas, b.s2d, src, b.crop, draw.Src, nil)
	}

	out := make([]byte, b.opts.BufferSize())
	b.write(out)
	return out, nil
}

// CropRect returns the region of a srcW x srcH buffer stored in orientation o
// that ends up in the output, in stored coordinates.
func (b *Builder) CropRect(srcW, srcH int, o types.Orientation) (geometry.Rect, error) {
	return cropRect(b.opts.Stencil, srcW, srcH, o)
}

func cropRect(stencil *types.CropStencil, srcW, srcH int, o types.Orientation) (geometry.Rect, error) {
	if stencil == nil {
		return geometry.Full(srcW, srcH), nil
	}
	upW, upH := geometry.OrientedSize(srcW, srcH, o)
	upright := geometry.Stencil(geometry.Full(upW, upH), *stencil).Clamp(upW, upH)
	r := geometry.UnorientRect(upright, o, srcW, srcH).Clamp(srcW, srcH)
	if r.Empty() {
		return geometry.Rect{}, fmt.Errorf("%w: stencil crop of %dx%d is empty", types.ErrGeometry, srcW, srcH)
	}
	return r, nil
}

func (b *Builder) prepare(bounds image.Rectangle, o types.Orientation) error {
	if bounds == b.srcBounds && o == b.srcOrient && !b.crop.Empty() {
		return nil
	}
	if bounds.Empty() {
		return fmt.Errorf("%w: empty source image", types.ErrDecode)
	}
	if !o.Valid() {
		return fmt.Errorf("%w: orientation tag %d", types.ErrGeometry, int(o))
	}

	r, err := cropRect(b.opts.Stencil, bounds.Dx(), bounds.Dy(), o)
	if err != nil {
		return err
	}

	b.crop = r.Image(bounds.Min)
	b.s2d = transform(b.crop, o, b.opts.ImageSize.Width, b.opts.ImageSize.Height)
	b.copyOnly = isTranslation(b.s2d)
	b.srcBounds = bounds
	b.srcOrient = o
	return nil
}

// transform maps the crop rectangle of the stored image onto a w x h
// canvas, rotating clockwise by o.Rotation() and then mirroring.
func transform(crop image.Rectangle, o types.Orientation, w, h int) f64.Aff3 {
	x0, y0 := float64(crop.Min.X), float64(crop.Min.Y)
	cw, ch := float64(crop.Dx()), float64(crop.Dy())
	W, H := float64(w), float64(h)

	var m f64.Aff3
	switch o.Rotation() {
	case 90:
		m = f64.Aff3{0, -W / ch, W + y0*W/ch, H / cw, 0, -x0 * H / cw}
	case 180:
		m = f64.Aff3{-W / cw, 0, W + x0*W/cw, 0, -H / ch, H + y0*H/ch}
	case 270:
		m = f64.Aff3{0, W / ch, -y0 * W / ch, -H / cw, 0, H + x0*H/cw}
	default:
		m = f64.Aff3{W / cw, 0, -x0 * W / cw, 0, H / ch, -y0 * H / ch}
	}

	if o.Mirrored() {
		m[0], m[1], m[2] = -m[0], -m[1], W-m[2]
	}
	return m
}

// isTranslation reports whether m only shifts by whole pixels. Transform
// takes its own copy path for such matrices and offsets rows by the source's
// X origin, so Build draws these with draw.Draw instead.
func isTranslation(m f64.Aff3) bool {
	return m[0] == 1 && m[1] == 0 && m[3] == 0 && m[4] == 1 &&
		m[2] == math.Trunc(m[2]) && m[5] == math.Trunc(m[5])
}

// write packs the canvas into out in the configured channel order and encoding
func (b *Builder) write(out []byte) {
	c := b.opts.ColorOrder.channels()
	w, h := b.opts.ImageSize.Width, b.opts.ImageSize.Height
	pix, stride := b.canvas.Pix, b.canvas.Stride

	i := 0
	switch b.opts.Normalization {
	case UByte:
		for y := 0; y < h; y++ {
			row := pix[y*stride : y*stride+w*4]
			for x := 0; x < len(row); x += 4 {
				out[i] = row[x+c[0]]
				out[i+1] = row[x+c[1]]
				out[i+2] = row[x+c[2]]
				i += 3
			}
		}
	case Byte:
		for y := 0; y < h; y++ {
			row := pix[y*stride : y*stride+w*4]
			for x := 0; x < len(row); x += 4 {
				out[i] = byte(int(row[x+c[0]]) - 127)
				out[i+1] = byte(int(row[x+c[1]]) - 127)
				out[i+2] = byte(int(row[x+c[2]]) - 127)
				i += 3
			}
		}
	case UFloat:
		for y := 0; y < h; y++ {
			row := pix[y*stride : y*stride+w*4]
			for x := 0; x < len(row); x += 4 {
				for k := 0; k < 3; k++ {
					b.order.PutUint32(out[i:], math.Float32bits(float32(row[x+c[k]])/255))
					i += 4
				}
			}
		}
	case Float:
		for y := 0; y < h; y++ {
			row := pix[y*stride : y*stride+w*4]
			for x := 0; x < len(row); x += 4 {
				for k := 0; k < 3; k++ {
					b.order.PutUint32(out[i:], math.Float32bits(float32(int(row[x+c[k]])-127)/127))
					i += 4
				}
			}
		}
	}
}
