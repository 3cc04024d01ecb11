package colorconv

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// createYUVFrame builds a planar 4:2:0 frame with padded rows.
// Luma follows x+y, chroma follows the chroma coordinates.
func createYUVFrame(width, height, pad int) *types.Frame {
	cw, ch := (width+1)/2, (height+1)/2
	yStride, cStride := width+pad, cw+pad

	yp := make([]byte, yStride*height)
	up := make([]byte, cStride*ch)
	vp := make([]byte, cStride*ch)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yp[y*yStride+x] = uint8(16 + 20*x + 10*y)
		}
	}
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			up[y*cStride+x] = uint8(100 + 15*x)
			vp[y*cStride+x] = uint8(160 - 12*y)
		}
	}

	return &types.Frame{
		Width:  width,
		Height: height,
		Format: types.FormatYUV420,
		Planes: []types.Plane{
			{Data: yp, RowStride: yStride, PixelStride: 1},
			{Data: up, RowStride: cStride, PixelStride: 1},
			{Data: vp, RowStride: cStride, PixelStride: 1},
		},
	}
}

// toNV21 re-packs the chroma of a planar frame as interleaved V/U
func toNV21(f *types.Frame) *types.Frame {
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	up, vp := f.Planes[1], f.Planes[2]
	stride := cw*2 + 3

	vu := make([]byte, stride*ch)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			vu[y*stride+2*x] = vp.Data[y*vp.RowStride+x]
			vu[y*stride+2*x+1] = up.Data[y*up.RowStride+x]
		}
	}

	out := *f
	out.Planes = []types.Plane{
		f.Planes[0],
		{Data: vu[1:], RowStride: stride, PixelStride: 2},
		{Data: vu, RowStride: stride, PixelStride: 2},
	}
	return &out
}

func TestBGRAToNRGBA(t *testing.T) {
	f := types.NewPackedFrame(types.FormatBGRA, 1, 1, 0, []byte{50, 100, 200, 0})
	img, err := ToNRGBA(f, nil)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}
	want := color.NRGBA{200, 100, 50, 255}
	if got := img.NRGBAAt(0, 0); got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRGBWithRowPadding(t *testing.T) {
	data := []byte{
		1, 2, 3, 4, 5, 6, 0xee, 0xee,
		7, 8, 9, 10, 11, 12,
	}
	f := types.NewPackedFrame(types.FormatRGB, 2, 2, 8, data)
	img, err := ToNRGBA(f, nil)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}
	if got := img.NRGBAAt(1, 1); got != (color.NRGBA{10, 11, 12, 255}) {
		t.Errorf("Unexpected pixel (1,1): %v", got)
	}
	if got := img.NRGBAAt(0, 1); got != (color.NRGBA{7, 8, 9, 255}) {
		t.Errorf("Unexpected pixel (0,1): %v", got)
	}
}

func TestRGBAForcesOpaque(t *testing.T) {
	f := types.NewPackedFrame(types.FormatRGBA, 1, 1, 0, []byte{9, 8, 7, 0})
	img, err := ToNRGBA(f, nil)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{9, 8, 7, 255}) {
		t.Errorf("Unexpected pixel: %v", got)
	}
}

func TestYUVMatchesColorPackage(t *testing.T) {
	f := createYUVFrame(5, 3, 3)
	img, err := ToNRGBA(f, nil)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}

	y, u, v := f.Planes[0], f.Planes[1], f.Planes[2]
	for py := 0; py < 3; py++ {
		for px := 0; px < 5; px++ {
			r, g, b := color.YCbCrToRGB(
				y.Data[py*y.RowStride+px],
				u.Data[(py/2)*u.RowStride+px/2],
				v.Data[(py/2)*v.RowStride+px/2],
			)
			want := color.NRGBA{r, g, b, 255}
			if got := img.NRGBAAt(px, py); got != want {
				t.Fatalf("pixel (%d,%d): expected %v, got %v", px, py, want, got)
			}
		}
	}
}

func TestYUVReusedCanvasMatchesFreshConversion(t *testing.T) {
	f := createYUVFrame(7, 5, 1)
	fresh, err := ToNRGBA(f, nil)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	reused, err := ToNRGBA(f, canvas)
	if err != nil {
		t.Fatalf("ToNRGBA failed: %v", err)
	}
	if reused != canvas {
		t.Error("Expected the canvas to be reused")
	}
	if !bytes.Equal(fresh.Pix, reused.Pix) {
		t.Error("Planar fast path and strided path disagree")
	}
}

func TestNV21MatchesPlanar(t *testing.T) {
	planar := createYUVFrame(6, 4, 2)
	want, err := ToNRGBA(planar, nil)
	if err != nil {
		t.Fatalf("planar conversion failed: %v", err)
	}
	got, err := ToNRGBA(toNV21(planar), nil)
	if err != nil {
		t.Fatalf("NV21 conversion failed: %v", err)
	}
	if !bytes.Equal(want.Pix, got.Pix) {
		t.Error("NV21 output differs from planar output")
	}
}

func TestShortPlaneIsDecodeError(t *testing.T) {
	f := createYUVFrame(4, 4, 0)
	f.Planes[0].Data = f.Planes[0].Data[:10]
	if _, err := ToNRGBA(f, nil); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected decode error, got %v", err)
	}

	packed := types.NewPackedFrame(types.FormatBGRA, 2, 2, 0, make([]byte, 12))
	if _, err := ToNRGBA(packed, nil); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected decode error, got %v", err)
	}
}

func TestEncodedFrameRejected(t *testing.T) {
	f := types.NewEncodedFrame([]byte{0xff, 0xd8}, 0)
	f.Width, f.Height = 1, 1
	if _, err := ToNRGBA(f, nil); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected decode error, got %v", err)
	}
}

func TestWrapPlanarIsZeroCopy(t *testing.T) {
	f := createYUVFrame(4, 4, 0)
	img, err := Wrap(f)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	ycc, ok := img.(*image.YCbCr)
	if !ok {
		t.Fatalf("Expected *image.YCbCr, got %T", img)
	}
	if &ycc.Y[0] != &f.Planes[0].Data[0] {
		t.Error("Expected luma plane to be shared")
	}
}

func TestConvertReusesCanvas(t *testing.T) {
	f := toNV21(createYUVFrame(6, 4, 2))

	img, canvas, err := Convert(f, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if img != image.Image(canvas) {
		t.Fatal("Expected interleaved chroma to be converted into the returned canvas")
	}

	_, again, err := Convert(f, canvas)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if again != canvas {
		t.Error("Expected the canvas to be reused for a frame of the same size")
	}

	planar := createYUVFrame(6, 4, 0)
	img, kept, err := Convert(planar, canvas)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if _, ok := img.(*image.YCbCr); !ok || kept != canvas {
		t.Errorf("Expected planar frame wrapped and canvas kept, got %T", img)
	}
}

func BenchmarkYUV420ToNRGBA(b *testing.B) {
	f := createYUVFrame(640, 480, 64)
	canvas := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ToNRGBA(f, canvas)
	}
}
