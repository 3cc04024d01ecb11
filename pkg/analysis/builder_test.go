package analysis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/menta2k/frame-pipeline/pkg/geometry"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

// createTestImage fills a width x height image with fill
func createTestImage(width, height int, fill color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	return img
}

// createSplitImage is red on the left half and blue on the right half
func createSplitImage(width, height int) *image.NRGBA {
	img := createTestImage(width, height, red)
	for y := 0; y < height; y++ {
		for x := width / 2; x < width; x++ {
			img.SetNRGBA(x, y, blue)
		}
	}
	return img
}

func mustBuilder(t testing.TB, opts Options) *Builder {
	t.Helper()
	if opts.ByteOrder == "" {
		opts.ByteOrder = LittleEndian
	}
	b, err := NewBuilder(opts)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return b
}

// pixelAt reads output pixel (x,y) of an RGB ubyte buffer
func pixelAt(data []byte, width, x, y int) [3]byte {
	i := (y*width + x) * 3
	return [3]byte{data[i], data[i+1], data[i+2]}
}

func TestSinglePixelAllCombinations(t *testing.T) {
	src := createTestImage(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	value := map[byte]int{'r': 200, 'g': 100, 'b': 50}

	for _, order := range []ColorOrder{RGB, RBG, GRB, GBR, BRG, BGR} {
		for _, norm := range []Normalization{UByte, Byte, UFloat, Float} {
			t.Run(string(order)+"/"+string(norm), func(t *testing.T) {
				b := mustBuilder(t, Options{ImageSize: types.Size{Width: 1, Height: 1}, ColorOrder: order, Normalization: norm})
				got, err := b.Build(src, types.OrientationUp)
				if err != nil {
					t.Fatalf("Build failed: %v", err)
				}

				var want []byte
				for _, ch := range []byte(order) {
					v := value[ch]
					switch norm {
					case UByte:
						want = append(want, byte(v))
					case Byte:
						want = append(want, byte(int8(v-127)))
					case UFloat:
						want = binary.LittleEndian.AppendUint32(want, math.Float32bits(float32(v)/255))
					case Float:
						want = binary.LittleEndian.AppendUint32(want, math.Float32bits(float32(v-127)/127))
					}
				}
				if !bytes.Equal(got, want) {
					t.Errorf("got % x, want % x", got, want)
				}
			})
		}
	}
}

func TestSignedByteLiteral(t *testing.T) {
	src := createTestImage(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 1, Height: 1}, ColorOrder: BGR, Normalization: Byte})

	got, err := b.Build(src, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// -77, -27, 73
	if want := []byte{0xb3, 0xe5, 0x49}; !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestSignedByteOffsetIsAsymmetric(t *testing.T) {
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 1, Height: 1}, ColorOrder: RGB, Normalization: Byte})

	got, _ := b.Build(createTestImage(1, 1, color.NRGBA{R: 255, G: 0, B: 127, A: 255}), types.OrientationUp)
	if int8(got[0]) != -128 || int8(got[1]) != -127 || int8(got[2]) != 0 {
		t.Errorf("Expected [-128 -127 0], got [%d %d %d]", int8(got[0]), int8(got[1]), int8(got[2]))
	}
}

func TestFloatByteOrder(t *testing.T) {
	src := createTestImage(1, 1, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	opts := Options{ImageSize: types.Size{Width: 1, Height: 1}, ColorOrder: RGB, Normalization: UFloat}

	little, _ := mustBuilder(t, opts).Build(src, types.OrientationUp)
	opts.ByteOrder = BigEndian
	big, _ := mustBuilder(t, opts).Build(src, types.OrientationUp)

	if v := math.Float32frombits(binary.LittleEndian.Uint32(little)); v != 1 {
		t.Errorf("Expected 1.0 little-endian, got %v", v)
	}
	if v := math.Float32frombits(binary.BigEndian.Uint32(big)); v != 1 {
		t.Errorf("Expected 1.0 big-endian, got %v", v)
	}
	if v := math.Float32frombits(binary.BigEndian.Uint32(big[8:])); v != 0.2 {
		t.Errorf("Expected 0.2, got %v", v)
	}
}

func TestOutputLength(t *testing.T) {
	src := createSplitImage(64, 48)
	for _, norm := range []Normalization{UByte, Byte, UFloat, Float} {
		for _, o := range []types.Orientation{types.OrientationUp, types.OrientationRight, types.OrientationLeftMirrored} {
			opts := Options{ImageSize: types.Size{Width: 7, Height: 5}, ColorOrder: GRB, Normalization: norm}
			got, err := mustBuilder(t, opts).Build(src, o)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			want := 7 * 5 * 3 * norm.BytesPerChannel()
			if len(got) != want || len(got) != opts.BufferSize() {
				t.Errorf("%s/%v: expected %d bytes, got %d", norm, o, want, len(got))
			}
		}
	}
}

func TestBuildOrientation(t *testing.T) {
	rgb := func(c color.NRGBA) [3]byte { return [3]byte{c.R, c.G, c.B} }

	tests := []struct {
		name        string
		orientation types.Orientation
		size        types.Size
		// expected colours at two probe points
		a, b       image.Point
		colA, colB color.NRGBA
	}{
		{"up", types.OrientationUp, types.Size{Width: 4, Height: 2}, image.Pt(0, 0), image.Pt(3, 0), red, blue},
		{"right", types.OrientationRight, types.Size{Width: 2, Height: 4}, image.Pt(0, 0), image.Pt(0, 3), red, blue},
		{"left", types.OrientationLeft, types.Size{Width: 2, Height: 4}, image.Pt(0, 0), image.Pt(0, 3), blue, red},
		{"down", types.OrientationDown, types.Size{Width: 4, Height: 2}, image.Pt(0, 0), image.Pt(3, 0), blue, red},
		{"up-mirrored", types.OrientationUpMirrored, types.Size{Width: 4, Height: 2}, image.Pt(0, 0), image.Pt(3, 0), blue, red},
		{"left-mirrored", types.OrientationLeftMirrored, types.Size{Width: 2, Height: 4}, image.Pt(0, 0), image.Pt(0, 3), red, blue},
	}

	src := createSplitImage(4, 2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBuilder(t, Options{ImageSize: tt.size, ColorOrder: RGB, Normalization: UByte})
			got, err := b.Build(src, tt.orientation)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if p := pixelAt(got, tt.size.Width, tt.a.X, tt.a.Y); p != rgb(tt.colA) {
				t.Errorf("pixel %v = %v, want %v", tt.a, p, rgb(tt.colA))
			}
			if p := pixelAt(got, tt.size.Width, tt.b.X, tt.b.Y); p != rgb(tt.colB) {
				t.Errorf("pixel %v = %v, want %v", tt.b, p, rgb(tt.colB))
			}
		})
	}
}

func TestBuildScalesToTarget(t *testing.T) {
	src := createSplitImage(640, 480)
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 8, Height: 6}, ColorOrder: RGB, Normalization: UByte})

	got, err := b.Build(src, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for y := 0; y < 6; y++ {
		if p := pixelAt(got, 8, 3, y); p != [3]byte{255, 0, 0} {
			t.Errorf("row %d: expected red left of center, got %v", y, p)
		}
		if p := pixelAt(got, 8, 4, y); p != [3]byte{0, 0, 255} {
			t.Errorf("row %d: expected blue right of center, got %v", y, p)
		}
	}
}

func TestBuildStencil(t *testing.T) {
	// red frame around a green 4x4 center
	src := createTestImage(8, 8, red)
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			src.SetNRGBA(x, y, green)
		}
	}

	b := mustBuilder(t, Options{
		ImageSize:     types.Size{Width: 2, Height: 2},
		ColorOrder:    RGB,
		Normalization: UByte,
		Stencil:       &types.CropStencil{WidthPercent: 0.5, AspectRatio: 1},
	})
	got, err := b.Build(src, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if p := pixelAt(got, 2, i%2, i/2); p != [3]byte{0, 255, 0} {
			t.Errorf("pixel %d: expected green, got %v", i, p)
		}
	}
}

func TestBuildStencilWithRotation(t *testing.T) {
	// stored 8x4, shown upright as 4x8; the centered upright square (1,3)-(3,5)
	// is stored at (3,1)-(5,3)
	src := createTestImage(8, 4, red)
	for y := 1; y < 3; y++ {
		for x := 3; x < 5; x++ {
			src.SetNRGBA(x, y, green)
		}
	}

	b := mustBuilder(t, Options{
		ImageSize:     types.Size{Width: 2, Height: 2},
		ColorOrder:    RGB,
		Normalization: UByte,
		Stencil:       &types.CropStencil{WidthPercent: 0.5, AspectRatio: 1},
	})
	rect, err := b.CropRect(8, 4, types.OrientationRight)
	if err != nil {
		t.Fatalf("CropRect failed: %v", err)
	}
	if want := (geometry.Rect{Left: 3, Top: 1, Right: 5, Bottom: 3}); rect != want {
		t.Fatalf("CropRect = %v, want %v", rect, want)
	}

	got, err := b.Build(src, types.OrientationRight)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if p := pixelAt(got, 2, i%2, i/2); p != [3]byte{0, 255, 0} {
			t.Errorf("pixel %d: expected green, got %v", i, p)
		}
	}
}

func TestBuildHonoursSourceOrigin(t *testing.T) {
	full := createSplitImage(8, 4)
	sub := full.SubImage(image.Rect(4, 0, 8, 4)).(*image.NRGBA)

	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 2, Height: 2}, ColorOrder: RGB, Normalization: UByte})
	got, err := b.Build(sub, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p := pixelAt(got, 2, 0, 0); p != [3]byte{0, 0, 255} {
		t.Errorf("Expected blue from the sub-image, got %v", p)
	}
}

func TestBuildReturnsFreshBuffers(t *testing.T) {
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 2, Height: 2}, ColorOrder: RGB, Normalization: UByte})

	first, _ := b.Build(createTestImage(4, 4, red), types.OrientationUp)
	second, _ := b.Build(createTestImage(6, 6, blue), types.OrientationRight)

	if p := pixelAt(first, 2, 0, 0); p != [3]byte{255, 0, 0} {
		t.Errorf("First buffer changed after second build: %v", p)
	}
	if p := pixelAt(second, 2, 0, 0); p != [3]byte{0, 0, 255} {
		t.Errorf("Expected blue in second buffer, got %v", p)
	}
}

func TestBuildErrors(t *testing.T) {
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 2, Height: 2}, ColorOrder: RGB, Normalization: UByte})

	if _, err := b.Build(image.NewNRGBA(image.Rect(0, 0, 0, 0)), types.OrientationUp); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected decode error for empty image, got %v", err)
	}
	if _, err := b.Build(createTestImage(2, 2, red), types.Orientation(9)); !errors.Is(err, types.ErrGeometry) {
		t.Errorf("Expected geometry error for bad orientation, got %v", err)
	}
}

func TestNewBuilderRejectsBadOptions(t *testing.T) {
	_, err := NewBuilder(Options{ImageSize: types.Size{Width: 0, Height: 2}, ColorOrder: RGB, Normalization: UByte})
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestSetInterpolator(t *testing.T) {
	b := mustBuilder(t, Options{ImageSize: types.Size{Width: 4, Height: 2}, ColorOrder: RGB, Normalization: UByte})
	b.SetInterpolator(draw.ApproxBiLinear)
	b.SetInterpolator(nil)

	got, err := b.Build(createTestImage(16, 8, green), types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p := pixelAt(got, 4, 2, 1); p != [3]byte{0, 255, 0} {
		t.Errorf("Expected green, got %v", p)
	}
}

func BenchmarkBuildFloat(b *testing.B) {
	src := createSplitImage(1280, 720)
	builder := mustBuilder(b, Options{
		ImageSize:     types.Size{Width: 224, Height: 224},
		ColorOrder:    BGR,
		Normalization: Float,
		Stencil:       &types.CropStencil{WidthPercent: 0.8, AspectRatio: 1},
	})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.Build(src, types.OrientationRight)
	}
}

// createCoordImage stores each pixel's own x in R and y in G
func createCoordImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

func TestBuildStencilAtNativeScale(t *testing.T) {
	// 35% of 640 is exactly 224, so the crop is drawn 1:1 from (208,128)
	b := mustBuilder(t, Options{
		ImageSize:     types.Size{Width: 224, Height: 224},
		ColorOrder:    RGB,
		Normalization: UByte,
		Stencil:       &types.CropStencil{WidthPercent: 0.35, AspectRatio: 1},
	})
	src := createCoordImage(640, 480)

	check := func(got []byte) {
		t.Helper()
		for _, pt := range []image.Point{{0, 0}, {223, 0}, {0, 223}, {223, 223}, {100, 57}} {
			want := [3]byte{uint8(208 + pt.X), uint8(128 + pt.Y), 0}
			if p := pixelAt(got, 224, pt.X, pt.Y); p != want {
				t.Errorf("output %v = %v, want %v", pt, p, want)
			}
		}
	}

	got, err := b.Build(src, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	check(got)

	// a second frame must not show anything left on the canvas by the first
	got, err = b.Build(src, types.OrientationUp)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	check(got)

	// same geometry from a sub-image with a non-zero origin
	padded := createCoordImage(700, 500)
	sub := padded.SubImage(image.Rect(30, 10, 670, 490))
	got, err = b.Build(sub, types.OrientationUp)
	if err != nil {
		t.Fatalf("Build of sub-image failed: %v", err)
	}
	if p := pixelAt(got, 224, 0, 0); p != [3]byte{uint8(30 + 208), uint8(10 + 128), 0} {
		t.Errorf("sub-image output (0,0) = %v, want crop origin (238,138)", p)
	}
}

func TestIsTranslation(t *testing.T) {
	if !isTranslation(f64.Aff3{1, 0, -208, 0, 1, -128}) {
		t.Error("whole-pixel shift should be a translation")
	}
	for _, m := range []f64.Aff3{
		{2, 0, 0, 0, 2, 0},
		{-1, 0, 224, 0, 1, 0},
		{1, 0, 0.5, 0, 1, 0},
		{0, -1, 224, 1, 0, 0},
	} {
		if isTranslation(m) {
			t.Errorf("%v is not a plain translation", m)
		}
	}
}
