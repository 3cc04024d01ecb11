package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/menta2k/frame-pipeline/internal/utils"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// rawSpec describes headerless sensor dumps given on the command line
type rawSpec struct {
	format string // i420 | nv21 | nv12 | bgra | rgba | rgb
	width  int
	height int
}

// loadFrame reads an encoded image or a raw dump into a frame
func loadFrame(path string, raw rawSpec, rotation int, orientation int) (*types.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f *types.Frame
	if utils.IsRawFile(path) {
		f, err = rawFrame(data, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else {
		f = types.NewEncodedFrame(data, 0)
	}
	f.Rotation = rotation
	f.Orientation = types.Orientation(orientation)
	return f, nil
}

func rawFrame(data []byte, raw rawSpec) (*types.Frame, error) {
	w, h := raw.width, raw.height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raw input needs -raw-size WxH")
	}
	cw, ch := (w+1)/2, (h+1)/2

	switch strings.ToLower(raw.format) {
	case "bgra":
		return types.NewPackedFrame(types.FormatBGRA, w, h, 0, data), nil
	case "rgba":
		return types.NewPackedFrame(types.FormatRGBA, w, h, 0, data), nil
	case "rgb":
		return types.NewPackedFrame(types.FormatRGB, w, h, 0, data), nil
	case "i420":
		if len(data) < w*h+2*cw*ch {
			return nil, fmt.Errorf("i420 %dx%d needs %d bytes, got %d", w, h, w*h+2*cw*ch, len(data))
		}
		u := data[w*h:]
		v := u[cw*ch:]
		return &types.Frame{
			Width: w, Height: h, Format: types.FormatYUV420,
			Planes: []types.Plane{
				{Data: data[:w*h], RowStride: w, PixelStride: 1},
				{Data: u[:cw*ch], RowStride: cw, PixelStride: 1},
				{Data: v[:cw*ch], RowStride: cw, PixelStride: 1},
			},
		}, nil
	case "nv21", "nv12":
		if len(data) < w*h+2*cw*ch {
			return nil, fmt.Errorf("%s %dx%d needs %d bytes, got %d", raw.format, w, h, w*h+2*cw*ch, len(data))
		}
		chroma := data[w*h : w*h+2*cw*ch]
		u, v := chroma[1:], chroma
		if strings.EqualFold(raw.format, "nv12") {
			u, v = chroma, chroma[1:]
		}
		return &types.Frame{
			Width: w, Height: h, Format: types.FormatYUV420,
			Planes: []types.Plane{
				{Data: data[:w*h], RowStride: w, PixelStride: 1},
				{Data: u, RowStride: 2 * cw, PixelStride: 2},
				{Data: v, RowStride: 2 * cw, PixelStride: 2},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown raw format %q (use i420, nv21, nv12, bgra, rgba or rgb)", raw.format)
	}
}

// parseSize reads WxH
func parseSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q must be WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	return w, h, nil
}
