// Package colorconv turns raw sensor frames into interleaved RGB images.
//
// YUV conversion uses the full-range BT.601 coefficients of image/color
// (the JFIF definition), which is what camera stacks deliver for YUV_420_888
// and biplanar video-range buffers once expanded.
package colorconv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// ToNRGBA converts a raw frame to an NRGBA image at native resolution.
//
// dst is reused when it already has the frame's size; pass nil to allocate.
// Encoded frames are rejected, decode them with the codec package instead.
func ToNRGBA(f *types.Frame, dst *image.NRGBA) (*image.NRGBA, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", types.ErrDecode, f.Width, f.Height)
	}

	switch f.Format {
	case types.FormatYUV420:
		return yuv420ToNRGBA(f, dst)
	case types.FormatBGRA, types.FormatRGBA, types.FormatRGB:
		return packedToNRGBA(f, dst)
	case types.FormatEncoded:
		return nil, fmt.Errorf("%w: encoded frame needs decoding, not color conversion", types.ErrDecode)
	default:
		return nil, fmt.Errorf("%w: unsupported pixel format %v", types.ErrDecode, f.Format)
	}
}

// Wrap exposes a raw frame as an image.Image, without copying when the frame
// is planar YUV420. Packed formats are converted since their alpha bytes are
// not meaningful.
func Wrap(f *types.Frame) (image.Image, error) {
	img, _, err := Convert(f, nil)
	return img, err
}

// Convert is Wrap with a reusable canvas. Frames that cannot be wrapped are
// converted into dst, and the canvas to pass on the next call is returned.
func Convert(f *types.Frame, dst *image.NRGBA) (image.Image, *image.NRGBA, error) {
	if f.Format == types.FormatYUV420 && f.Width > 0 && f.Height > 0 {
		if img, ok := asYCbCr(f); ok {
			return img, dst, nil
		}
	}
	rgb, err := ToNRGBA(f, dst)
	if err != nil {
		return nil, dst, err
	}
	return rgb, rgb, nil
}

func ensureCanvas(dst *image.NRGBA, width, height int) *image.NRGBA {
	if dst != nil && dst.Rect.Dx() == width && dst.Rect.Dy() == height && dst.Rect.Min == (image.Point{}) {
		return dst
	}
	return image.NewNRGBA(image.Rect(0, 0, width, height))
}

func rowStride(p types.Plane, minimum int) int {
	if p.RowStride > 0 {
		return p.RowStride
	}
	return minimum
}

func pixelStride(p types.Plane, fallback int) int {
	if p.PixelStride > 0 {
		return p.PixelStride
	}
	return fallback
}

// checkPlane verifies plane i holds rows*stride bytes, the last row only needing rowBytes
func checkPlane(f *types.Frame, i, rowBytes, rows int) error {
	if len(f.Planes) <= i {
		return fmt.Errorf("%w: %v frame has %d planes, need %d", types.ErrDecode, f.Format, len(f.Planes), i+1)
	}
	p := f.Planes[i]
	stride := rowStride(p, rowBytes)
	if stride < rowBytes {
		return fmt.Errorf("%w: plane %d row stride %d below row size %d", types.ErrDecode, i, stride, rowBytes)
	}
	need := stride*(rows-1) + rowBytes
	if len(p.Data) < need {
		return fmt.Errorf("%w: plane %d has %d bytes, need %d", types.ErrDecode, i, len(p.Data), need)
	}
	return nil
}

// asYCbCr wraps a planar YUV420 frame with unit chroma pixel stride without copying
func asYCbCr(f *types.Frame) (*image.YCbCr, bool) {
	if len(f.Planes) < 3 {
		return nil, false
	}
	y, u, v := f.Planes[0], f.Planes[1], f.Planes[2]
	if pixelStride(y, 1) != 1 || pixelStride(u, 1) != 1 || pixelStride(v, 1) != 1 {
		return nil, false
	}
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	if rowStride(u, cw) != rowStride(v, cw) {
		return nil, false
	}
	if checkPlane(f, 0, f.Width, f.Height) != nil || checkPlane(f, 1, cw, ch) != nil || checkPlane(f, 2, cw, ch) != nil {
		return nil, false
	}
	return &image.YCbCr{
		Y:              y.Data,
		Cb:             u.Data,
		Cr:             v.Data,
		YStride:        rowStride(y, f.Width),
		CStride:        rowStride(u, cw),
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, true
}

func yuv420ToNRGBA(f *types.Frame, dst *image.NRGBA) (*image.NRGBA, error) {
	if ycc, ok := asYCbCr(f); ok && dst == nil {
		return imaging.Clone(ycc), nil
	}

	if len(f.Planes) < 3 {
		return nil, fmt.Errorf("%w: yuv420 frame has %d planes, need 3", types.ErrDecode, len(f.Planes))
	}
	yp, up, vp := f.Planes[0], f.Planes[1], f.Planes[2]
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	yStride := rowStride(yp, f.Width)
	ups, vps := pixelStride(up, 1), pixelStride(vp, 1)
	uStride, vStride := rowStride(up, cw*ups), rowStride(vp, cw*vps)

	if err := checkPlane(f, 0, f.Width, f.Height); err != nil {
		return nil, err
	}
	// interleaved chroma planes end one byte before the nominal row size
	if err := checkPlane(f, 1, (cw-1)*ups+1, ch); err != nil {
		return nil, err
	}
	if err := checkPlane(f, 2, (cw-1)*vps+1, ch); err != nil {
		return nil, err
	}

	out := ensureCanvas(dst, f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		yRow := yp.Data[y*yStride:]
		uRow := up.Data[(y/2)*uStride:]
		vRow := vp.Data[(y/2)*vStride:]
		o := out.PixOffset(0, y)
		for x := 0; x < f.Width; x++ {
			cx := x / 2
			r, g, b := color.YCbCrToRGB(yRow[x], uRow[cx*ups], vRow[cx*vps])
			out.Pix[o+0] = r
			out.Pix[o+1] = g
			out.Pix[o+2] = b
			out.Pix[o+3] = 0xff
			o += 4
		}
	}
	return out, nil
}

func packedToNRGBA(f *types.Frame, dst *image.NRGBA) (*image.NRGBA, error) {
	bpp := f.Format.BytesPerPixel()
	if err := checkPlane(f, 0, f.Width*bpp, f.Height); err != nil {
		return nil, err
	}
	p := f.Planes[0]
	stride := rowStride(p, f.Width*bpp)

	// byte offsets of R, G, B inside one source pixel
	ri, gi, bi := 0, 1, 2
	if f.Format == types.FormatBGRA {
		ri, bi = 2, 0
	}

	out := ensureCanvas(dst, f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		row := p.Data[y*stride:]
		o := out.PixOffset(0, y)
		for x := 0; x < f.Width; x++ {
			s := x * bpp
			out.Pix[o+0] = row[s+ri]
			out.Pix[o+1] = row[s+gi]
			out.Pix[o+2] = row[s+bi]
			// camera buffers are opaque, alpha bytes are padding
			out.Pix[o+3] = 0xff
			o += 4
		}
	}
	return out, nil
}
