package photo

import (
	"fmt"
	"strings"

	"github.com/menta2k/frame-pipeline/internal/utils"
	"github.com/menta2k/frame-pipeline/pkg/codec"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// FlashMode is carried in the capture envelope; the transform ignores it
type FlashMode string

const (
	FlashAuto FlashMode = "auto"
	FlashOn   FlashMode = "on"
	FlashOff  FlashMode = "off"
)

// CropBasis selects what a stencil is relative to
type CropBasis int

const (
	// CropBasisSensor applies the stencil to the full oriented frame
	CropBasisSensor CropBasis = iota
	// CropBasisPreview first reduces the frame to the part visible in the
	// preview window, then applies the stencil to that
	CropBasisPreview
)

func (b CropBasis) String() string {
	if b == CropBasisPreview {
		return "preview"
	}
	return "sensor"
}

// ParseCropBasis accepts "sensor" and "preview"
func ParseCropBasis(s string) (CropBasis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sensor":
		return CropBasisSensor, nil
	case "preview":
		return CropBasisPreview, nil
	default:
		return 0, fmt.Errorf("%w: crop basis must be %s, got %q", types.ErrConfiguration, utils.OneOf("sensor", "preview"), s)
	}
}

// Request is one take-picture call
type Request struct {
	// Quality is 1-100; zero means the finisher default
	Quality int
	// Format of the output; empty means the finisher default
	Format codec.Format

	Stencil *types.CropStencil
	Basis   CropBasis
	// Preview is the on-screen preview size, needed by CropBasisPreview
	Preview types.Size

	PreferredSize *types.Size
	Flash         FlashMode
	ShutterSound  bool
	FreezePreview bool
}

// Validate checks the parts of the request the finisher depends on
func (r Request) Validate() error {
	if r.Quality != 0 && (r.Quality < 1 || r.Quality > 100) {
		return fmt.Errorf("%w: jpeg quality %d outside 1-100", types.ErrConfiguration, r.Quality)
	}
	if r.Stencil != nil {
		if err := r.Stencil.Validate(); err != nil {
			return err
		}
	}
	if r.Stencil != nil && r.Basis == CropBasisPreview && (r.Preview.Width <= 0 || r.Preview.Height <= 0) {
		return fmt.Errorf("%w: preview crop basis needs a preview size, got %dx%d", types.ErrGeometry, r.Preview.Width, r.Preview.Height)
	}
	return nil
}

var requestKeys = []string{
	"id", "jpegQuality", "outputFormat", "flash", "shutterSound", "freezePreview",
	"centerCropAspectRatio", "centerCropWidthPercent", "cropBasis",
	"previewWidth", "previewHeight", "preferredPhotoWidth", "preferredPhotoHeight",
}

// ParseRequest builds a Request from the argument map of a host take-picture call.
// Every key is optional; unknown keys are rejected.
func ParseRequest(args map[string]any) (Request, error) {
	req := Request{Flash: FlashAuto, FreezePreview: true}

	if unknown := utils.UnknownKeys(args, requestKeys...); len(unknown) > 0 {
		return Request{}, fmt.Errorf("%w: unknown request keys %v", types.ErrConfiguration, unknown)
	}

	if v, ok := args["jpegQuality"]; ok && v != nil {
		q, ok := utils.Int(v)
		if !ok {
			return Request{}, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError("jpegQuality", v, "an integer"))
		}
		req.Quality = q
	}

	if v, ok := args["outputFormat"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Request{}, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError("outputFormat", v, "a string"))
		}
		f, err := codec.ParseFormat(s)
		if err != nil {
			return Request{}, err
		}
		req.Format = f
	}

	if v, ok := args["flash"]; ok && v != nil {
		switch FlashMode(fmt.Sprint(v)) {
		case FlashOn:
			req.Flash = FlashOn
		case FlashOff:
			req.Flash = FlashOff
		case FlashAuto:
			req.Flash = FlashAuto
		default:
			return Request{}, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError("flash", v, utils.OneOf("on", "off", "auto")))
		}
	}

	for key, dst := range map[string]*bool{"shutterSound": &req.ShutterSound, "freezePreview": &req.FreezePreview} {
		if v, ok := args[key]; ok && v != nil {
			b, ok := v.(bool)
			if !ok {
				return Request{}, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError(key, v, "a bool"))
			}
			*dst = b
		}
	}

	stencil, err := parseStencil(args)
	if err != nil {
		return Request{}, err
	}
	req.Stencil = stencil

	if v, ok := args["cropBasis"]; ok && v != nil {
		basis, err := ParseCropBasis(fmt.Sprint(v))
		if err != nil {
			return Request{}, err
		}
		req.Basis = basis
	}

	preview, err := parseSize(args, "previewWidth", "previewHeight")
	if err != nil {
		return Request{}, err
	}
	if preview != nil {
		req.Preview = *preview
	}

	req.PreferredSize, err = parseSize(args, "preferredPhotoWidth", "preferredPhotoHeight")
	if err != nil {
		return Request{}, err
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func parseStencil(args map[string]any) (*types.CropStencil, error) {
	ar, hasAR := args["centerCropAspectRatio"]
	wp, hasWP := args["centerCropWidthPercent"]
	hasAR = hasAR && ar != nil
	hasWP = hasWP && wp != nil
	if !hasAR && !hasWP {
		return nil, nil
	}
	if hasAR != hasWP {
		return nil, fmt.Errorf("%w: centerCropAspectRatio and centerCropWidthPercent must be given together", types.ErrConfiguration)
	}

	aspect, ok := utils.Float(ar)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError("centerCropAspectRatio", ar, "a number"))
	}
	width, ok := utils.Float(wp)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError("centerCropWidthPercent", wp, "a number"))
	}
	return &types.CropStencil{WidthPercent: width, AspectRatio: aspect}, nil
}

func parseSize(args map[string]any, wKey, hKey string) (*types.Size, error) {
	wv, hasW := args[wKey]
	hv, hasH := args[hKey]
	if !hasW || !hasH || wv == nil || hv == nil {
		return nil, nil
	}
	w, ok := utils.Int(wv)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError(wKey, wv, "an integer"))
	}
	h, ok := utils.Int(hv)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrConfiguration, utils.ArgError(hKey, hv, "an integer"))
	}
	return &types.Size{Width: w, Height: h}, nil
}
