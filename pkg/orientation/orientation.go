// Package orientation bakes a sensor or EXIF orientation into pixel data so
// later stages can work in upright coordinates.
package orientation

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// Bake returns img rotated and mirrored according to o.
//
// OrientationUp returns img itself. Every other orientation allocates a new
// *image.NRGBA; the source is never modified.
func Bake(img image.Image, o types.Orientation) (image.Image, error) {
	switch o {
	case types.OrientationUp:
		return img, nil
	case types.OrientationUpMirrored:
		return imaging.FlipH(img), nil
	case types.OrientationDown:
		return imaging.Rotate180(img), nil
	case types.OrientationDownMirrored:
		return imaging.FlipV(img), nil
	case types.OrientationLeftMirrored:
		return imaging.Transpose(img), nil
	case types.OrientationRight:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img), nil
	case types.OrientationRightMirrored:
		return imaging.Transverse(img), nil
	case types.OrientationLeft:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("%w: orientation tag %d", types.ErrDecode, int(o))
	}
}

// BakeRotation is Bake for a clockwise rotation in degrees
func BakeRotation(img image.Image, degrees int) (image.Image, error) {
	o, err := types.OrientationFromRotation(degrees)
	if err != nil {
		return nil, err
	}
	return Bake(img, o)
}

// Inverse returns the orientation that undoes o
func Inverse(o types.Orientation) types.Orientation {
	switch o {
	case types.OrientationRight:
		return types.OrientationLeft
	case types.OrientationLeft:
		return types.OrientationRight
	default:
		// mirrors, 180 and transposes are their own inverse
		return o
	}
}
