// Package geometry computes the crop rectangles used by the photo and analysis paths.
//
// All functions are pure. Fractional pixel positions are truncated toward zero,
// edge by edge, so results match on every platform that consumes them.
package geometry

import (
	"fmt"
	"image"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Rect is a rectangle in source-buffer pixel coordinates
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Full returns the rect covering a whole w x h buffer
func Full(width, height int) Rect {
	return Rect{Right: width, Bottom: height}
}

// Width returns Right-Left
func (r Rect) Width() int {
	return r.Right - r.Left
}

// Height returns Bottom-Top
func (r Rect) Height() int {
	return r.Bottom - r.Top
}

// Empty reports whether the rect has no area
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Image converts r to an image.Rectangle offset by origin
func (r Rect) Image(origin image.Point) image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom).Add(origin)
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", r.Left, r.Top, r.Width(), r.Height())
}

// Clamp restricts r to [0,width]x[0,height] keeping right>=left and bottom>=top
func (r Rect) Clamp(width, height int) Rect {
	r.Left = clampInt(r.Left, 0, width)
	r.Right = clampInt(r.Right, r.Left, width)
	r.Top = clampInt(r.Top, 0, height)
	r.Bottom = clampInt(r.Bottom, r.Top, height)
	return r
}

// CheckCenterCrop validates the inputs of CenterCropSourceRect
func CheckCenterCrop(sourceW, sourceH, targetW, targetH int) error {
	if sourceW <= 0 || sourceH <= 0 {
		return fmt.Errorf("%w: source size %dx%d", types.ErrGeometry, sourceW, sourceH)
	}
	if targetW <= 0 || targetH <= 0 {
		return fmt.Errorf("%w: preview size %dx%d", types.ErrGeometry, targetW, targetH)
	}
	return nil
}

// CenterCropSourceRect finds the largest centered rect of a sourceW x sourceH
// buffer whose aspect ratio is targetW/targetH. It emulates what a preview of
// targetW x targetH shows of the buffer with center-crop scaling.
//
// targetW and targetH must be positive; see CheckCenterCrop.
func CenterCropSourceRect(sourceW, sourceH, targetW, targetH int) Rect {
	sw, sh := float64(sourceW), float64(sourceH)
	tw, th := float64(targetW), float64(targetH)

	sourceAspect := sw / sh
	targetAspect := tw / th

	var scale float64
	if sourceAspect <= targetAspect {
		scale = sw / tw
	} else {
		scale = sh / th
	}

	// Size of the source once fitted to the target, and the overflow in source pixels
	extraSourceW := (sw/scale - tw) * scale
	extraSourceH := (sh/scale - th) * scale

	left := extraSourceW / 2
	top := extraSourceH / 2
	right := left + (sw - extraSourceW)
	bottom := top + (sh - extraSourceH)

	return Rect{
		Left:   int(left),
		Top:    int(top),
		Right:  int(right),
		Bottom: int(bottom),
	}
}

// StencilRect crops base to widthPercent of its width with the height derived
// from aspectRatio (w/h), centered within base. The result is not clamped: a
// stencil taller than base extends past it.
func StencilRect(base Rect, widthPercent, aspectRatio float64) Rect {
	baseW := float64(base.Width())
	baseH := float64(base.Height())

	cropW := baseW * widthPercent
	cropH := cropW / aspectRatio

	left := float64(base.Left) + (baseW-cropW)/2
	top := float64(base.Top) + (baseH-cropH)/2

	return Rect{
		Left:   int(left),
		Top:    int(top),
		Right:  int(left + cropW),
		Bottom: int(top + cropH),
	}
}

// Stencil applies a types.CropStencil to base
func Stencil(base Rect, s types.CropStencil) Rect {
	return StencilRect(base, s.WidthPercent, s.AspectRatio)
}

// OrientedSize returns the dimensions of a w x h buffer after baking o
func OrientedSize(width, height int, o types.Orientation) (int, int) {
	if o.SwapsAxes() {
		return height, width
	}
	return width, height
}

// UnorientRect maps a rect given in upright (oriented) coordinates back to
// the coordinates of the stored srcW x srcH buffer, undoing mirror then rotation.
func UnorientRect(r Rect, o types.Orientation, srcW, srcH int) Rect {
	upW, _ := OrientedSize(srcW, srcH, o)
	if o.Mirrored() {
		r.Left, r.Right = upW-r.Right, upW-r.Left
	}

	switch o.Rotation() {
	case 90:
		// upright (x,y) came from source (y, srcH-x)
		return Rect{Left: r.Top, Top: srcH - r.Right, Right: r.Bottom, Bottom: srcH - r.Left}
	case 180:
		return Rect{Left: srcW - r.Right, Top: srcH - r.Bottom, Right: srcW - r.Left, Bottom: srcH - r.Top}
	case 270:
		// upright (x,y) came from source (srcW-y, x)
		return Rect{Left: srcW - r.Bottom, Top: r.Left, Right: srcW - r.Top, Bottom: r.Right}
	default:
		return r
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
