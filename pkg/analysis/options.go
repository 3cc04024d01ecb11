// Package analysis builds fixed-size tensor buffers from live sensor frames
// and keeps the most recent one per named consumer.
package analysis

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/menta2k/frame-pipeline/internal/utils"
	"github.com/menta2k/frame-pipeline/pkg/types"
)

// ColorOrder is the channel permutation written for every pixel
type ColorOrder string

const (
	RGB ColorOrder = "rgb"
	RBG ColorOrder = "rbg"
	GRB ColorOrder = "grb"
	GBR ColorOrder = "gbr"
	BRG ColorOrder = "brg"
	BGR ColorOrder = "bgr"
)

var colorOrders = map[ColorOrder][3]int{
	RGB: {0, 1, 2},
	RBG: {0, 2, 1},
	GRB: {1, 0, 2},
	GBR: {1, 2, 0},
	BRG: {2, 0, 1},
	BGR: {2, 1, 0},
}

// channels returns the source index (0=R, 1=G, 2=B) of each output channel
func (c ColorOrder) channels() [3]int {
	return colorOrders[c]
}

// ParseColorOrder accepts the six three-letter codes, case-insensitively
func ParseColorOrder(s string) (ColorOrder, error) {
	c := ColorOrder(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := colorOrders[c]; !ok {
		return "", fmt.Errorf("%w: color order must be %s, got %q", types.ErrConfiguration,
			utils.OneOf("rgb", "rbg", "grb", "gbr", "brg", "bgr"), s)
	}
	return c, nil
}

// Normalization is the numeric encoding of each channel value
type Normalization string

const (
	// UByte writes the raw value, one byte per channel
	UByte Normalization = "ubyte"
	// Byte writes value-127 as a signed byte; 255 wraps to -128
	Byte Normalization = "byte"
	// UFloat writes value/255 as a float32
	UFloat Normalization = "ufloat"
	// Float writes (value-127)/127 as a float32
	Float Normalization = "float"
)

// BytesPerChannel returns 1 for byte encodings and 4 for float encodings
func (n Normalization) BytesPerChannel() int {
	switch n {
	case UFloat, Float:
		return 4
	case UByte, Byte:
		return 1
	default:
		return 0
	}
}

// ParseNormalization accepts ubyte, byte, ufloat and float
func ParseNormalization(s string) (Normalization, error) {
	n := Normalization(strings.ToLower(strings.TrimSpace(s)))
	if n.BytesPerChannel() == 0 {
		return "", fmt.Errorf("%w: normalization must be %s, got %q", types.ErrConfiguration,
			utils.OneOf("ubyte", "byte", "ufloat", "float"), s)
	}
	return n, nil
}

// ByteOrder is the layout of float channels
type ByteOrder string

const (
	LittleEndian ByteOrder = "little"
	BigEndian    ByteOrder = "big"
)

func (b ByteOrder) binary() binary.ByteOrder {
	if b == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseByteOrder accepts little and big; empty means little
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return "", fmt.Errorf("%w: byte order must be %s, got %q", types.ErrConfiguration, utils.OneOf("little", "big"), s)
	}
}

// Options configures one analysis consumer. Build them with ParseOptions or
// ParseOptionsMap so they are validated before any frame arrives.
type Options struct {
	ImageSize     types.Size
	ColorOrder    ColorOrder
	Normalization Normalization
	Stencil       *types.CropStencil
	ByteOrder     ByteOrder
}

// BytesPerPixel is three channels at the normalization's width
func (o Options) BytesPerPixel() int {
	return 3 * o.Normalization.BytesPerChannel()
}

// BufferSize is the exact length of every output buffer
func (o Options) BufferSize() int {
	return o.ImageSize.Area() * o.BytesPerPixel()
}

// Validate checks an Options value built by hand
func (o Options) Validate(key string) error {
	if o.ImageSize.Width <= 0 || o.ImageSize.Height <= 0 {
		return &ConfigurationError{Key: key, Field: "imageSize", Value: o.ImageSize, Message: "width and height must be positive"}
	}
	if _, ok := colorOrders[o.ColorOrder]; !ok {
		return &ConfigurationError{Key: key, Field: "colorOrder", Value: string(o.ColorOrder), Message: "unknown color order"}
	}
	if o.Normalization.BytesPerChannel() == 0 {
		return &ConfigurationError{Key: key, Field: "normalization", Value: string(o.Normalization), Message: "unknown normalization"}
	}
	if o.ByteOrder != "" && o.ByteOrder != LittleEndian && o.ByteOrder != BigEndian {
		return &ConfigurationError{Key: key, Field: "byteOrder", Value: string(o.ByteOrder), Message: "unknown byte order"}
	}
	if o.Stencil != nil {
		if err := o.Stencil.Validate(); err != nil {
			return &ConfigurationError{Key: key, Field: "stencil", Value: *o.Stencil, Message: "invalid crop stencil", Err: err}
		}
	}
	return nil
}

// Spec is the serialized form of Options used by configuration files
type Spec struct {
	ImageWidth             int      `json:"image_width" yaml:"image_width"`
	ImageHeight            int      `json:"image_height" yaml:"image_height"`
	ColorOrder             string   `json:"color_order" yaml:"color_order"`
	Normalization          string   `json:"normalization" yaml:"normalization"`
	CenterCropAspectRatio  *float64 `json:"center_crop_aspect_ratio,omitempty" yaml:"center_crop_aspect_ratio,omitempty"`
	CenterCropWidthPercent *float64 `json:"center_crop_width_percent,omitempty" yaml:"center_crop_width_percent,omitempty"`
	ByteOrder              string   `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
}

// ParseOptions validates spec and returns the Options for key
func ParseOptions(key string, spec Spec) (Options, error) {
	opts := Options{ImageSize: types.Size{Width: spec.ImageWidth, Height: spec.ImageHeight}}

	var err error
	if opts.ColorOrder, err = ParseColorOrder(spec.ColorOrder); err != nil {
		return Options{}, &ConfigurationError{Key: key, Field: "colorOrder", Value: spec.ColorOrder, Message: "unknown color order", Err: err}
	}
	if opts.Normalization, err = ParseNormalization(spec.Normalization); err != nil {
		return Options{}, &ConfigurationError{Key: key, Field: "normalization", Value: spec.Normalization, Message: "unknown normalization", Err: err}
	}
	if opts.ByteOrder, err = ParseByteOrder(spec.ByteOrder); err != nil {
		return Options{}, &ConfigurationError{Key: key, Field: "byteOrder", Value: spec.ByteOrder, Message: "unknown byte order", Err: err}
	}

	switch {
	case spec.CenterCropAspectRatio != nil && spec.CenterCropWidthPercent != nil:
		opts.Stencil = &types.CropStencil{WidthPercent: *spec.CenterCropWidthPercent, AspectRatio: *spec.CenterCropAspectRatio}
	case spec.CenterCropAspectRatio != nil || spec.CenterCropWidthPercent != nil:
		return Options{}, &ConfigurationError{Key: key, Field: "stencil", Message: "aspect ratio and width percent must be given together"}
	}

	if err := opts.Validate(key); err != nil {
		return Options{}, err
	}
	return opts, nil
}

var optionKeys = []string{
	"imageWidth", "imageHeight", "colorOrder", "normalization",
	"centerCropAspectRatio", "centerCropWidthPercent", "byteOrder",
}

// ParseOptionsMap parses the analysisOptions argument of a host call: a map
// from consumer key to a map of option keys. Every entry is validated; the
// first failure is returned.
func ParseOptionsMap(args map[string]any) (map[string]Options, error) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]Options, len(args))
	for _, key := range keys {
		m, ok := args[key].(map[string]any)
		if !ok {
			return nil, &ConfigurationError{Key: key, Value: args[key], Message: "options must be a map"}
		}
		spec, err := specFromMap(key, m)
		if err != nil {
			return nil, err
		}
		opts, err := ParseOptions(key, spec)
		if err != nil {
			return nil, err
		}
		out[key] = opts
	}
	return out, nil
}

func specFromMap(key string, m map[string]any) (Spec, error) {
	if unknown := utils.UnknownKeys(m, optionKeys...); len(unknown) > 0 {
		return Spec{}, &ConfigurationError{Key: key, Field: unknown[0], Message: "unknown option"}
	}

	var spec Spec
	for field, dst := range map[string]*int{"imageWidth": &spec.ImageWidth, "imageHeight": &spec.ImageHeight} {
		v, ok := m[field]
		if !ok {
			return Spec{}, &ConfigurationError{Key: key, Field: field, Message: "required"}
		}
		n, ok := utils.Int(v)
		if !ok {
			return Spec{}, &ConfigurationError{Key: key, Field: field, Value: v, Message: "must be an integer"}
		}
		*dst = n
	}

	for field, dst := range map[string]*string{"colorOrder": &spec.ColorOrder, "normalization": &spec.Normalization, "byteOrder": &spec.ByteOrder} {
		v, ok := m[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Spec{}, &ConfigurationError{Key: key, Field: field, Value: v, Message: "must be a string"}
		}
		*dst = s
	}

	for field, dst := range map[string]**float64{"centerCropAspectRatio": &spec.CenterCropAspectRatio, "centerCropWidthPercent": &spec.CenterCropWidthPercent} {
		v, ok := m[field]
		if !ok || v == nil {
			continue
		}
		f, ok := utils.Float(v)
		if !ok {
			return Spec{}, &ConfigurationError{Key: key, Field: field, Value: v, Message: "must be a number"}
		}
		*dst = &f
	}
	return spec, nil
}

// TargetResolution returns the largest requested image size by area, which
// the host uses as the sensor stream's target resolution. Ties go to the
// first key in sorted order.
func TargetResolution(opts map[string]Options) types.Size {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best types.Size
	for _, k := range keys {
		if s := opts[k].ImageSize; s.Area() > best.Area() {
			best = s
		}
	}
	return best
}

// ConfigurationError reports an invalid analysis option. It matches
// types.ErrConfiguration with errors.Is.
type ConfigurationError struct {
	Key     string
	Field   string
	Value   any
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "analysis options %q", e.Key)
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " = %v", e.Value)
	}
	b.WriteString(": " + e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == types.ErrConfiguration
}
