package types

import "fmt"

// Orientation uses the EXIF orientation tag values (1-8).
// The name says where the top of the stored image should be shown.
type Orientation int

const (
	OrientationUp            Orientation = 1
	OrientationUpMirrored    Orientation = 2
	OrientationDown          Orientation = 3
	OrientationDownMirrored  Orientation = 4
	OrientationLeftMirrored  Orientation = 5
	OrientationRight         Orientation = 6
	OrientationRightMirrored Orientation = 7
	OrientationLeft          Orientation = 8
)

var orientationNames = map[Orientation]string{
	OrientationUp:            "up",
	OrientationUpMirrored:    "up-mirrored",
	OrientationDown:          "down",
	OrientationDownMirrored:  "down-mirrored",
	OrientationLeftMirrored:  "left-mirrored",
	OrientationRight:         "right",
	OrientationRightMirrored: "right-mirrored",
	OrientationLeft:          "left",
}

func (o Orientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// Valid reports whether o is one of the eight EXIF values
func (o Orientation) Valid() bool {
	return o >= OrientationUp && o <= OrientationLeft
}

// Rotation returns the clockwise rotation in degrees that makes the image upright.
// It is applied before the mirror.
func (o Orientation) Rotation() int {
	switch o {
	case OrientationDown, OrientationDownMirrored:
		return 180
	case OrientationRight, OrientationLeftMirrored:
		return 90
	case OrientationLeft, OrientationRightMirrored:
		return 270
	default:
		return 0
	}
}

// Mirrored reports whether a horizontal flip follows the rotation
func (o Orientation) Mirrored() bool {
	switch o {
	case OrientationUpMirrored, OrientationDownMirrored, OrientationLeftMirrored, OrientationRightMirrored:
		return true
	default:
		return false
	}
}

// SwapsAxes reports whether width and height trade places when baked
func (o Orientation) SwapsAxes() bool {
	r := o.Rotation()
	return r == 90 || r == 270
}

// OrientationFromRotation maps a clockwise sensor rotation to an orientation
func OrientationFromRotation(degrees int) (Orientation, error) {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return OrientationUp, nil
	case 90:
		return OrientationRight, nil
	case 180:
		return OrientationDown, nil
	case 270:
		return OrientationLeft, nil
	default:
		return 0, fmt.Errorf("%w: rotation %d is not a multiple of 90", ErrGeometry, degrees)
	}
}
