package analysis

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// snapshot is the CBOR envelope of a Frame, for hosts that move analysis
// output across a process boundary and for CLI dumps
type snapshot struct {
	Key           string `cbor:"key"`
	Seq           uint64 `cbor:"seq"`
	Width         int    `cbor:"width"`
	Height        int    `cbor:"height"`
	ColorOrder    string `cbor:"color_order"`
	Normalization string `cbor:"normalization"`
	ByteOrder     string `cbor:"byte_order,omitempty"`
	CapturedAt    int64  `cbor:"captured_at_ns,omitempty"`
	Data          []byte `cbor:"data"`
}

// EncodeSnapshot serializes f as a CBOR map
func EncodeSnapshot(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: no frame", types.ErrEncode)
	}
	s := snapshot{
		Key:           f.Key,
		Seq:           f.Seq,
		Width:         f.Width,
		Height:        f.Height,
		ColorOrder:    string(f.ColorOrder),
		Normalization: string(f.Normalization),
		ByteOrder:     string(f.ByteOrder),
		Data:          f.Data,
	}
	if !f.CapturedAt.IsZero() {
		s.CapturedAt = f.CapturedAt.UnixNano()
	}
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", types.ErrEncode, err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot and checks the
// payload length against its declared layout
func DecodeSnapshot(data []byte) (*Frame, error) {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", types.ErrDecode, err)
	}

	order, err := ParseColorOrder(s.ColorOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", types.ErrDecode, err)
	}
	norm, err := ParseNormalization(s.Normalization)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", types.ErrDecode, err)
	}
	byteOrder, err := ParseByteOrder(s.ByteOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", types.ErrDecode, err)
	}

	want := s.Width * s.Height * 3 * norm.BytesPerChannel()
	if s.Width <= 0 || s.Height <= 0 || len(s.Data) != want {
		return nil, fmt.Errorf("%w: snapshot %dx%d %s holds %d bytes, want %d",
			types.ErrDecode, s.Width, s.Height, norm, len(s.Data), want)
	}

	f := &Frame{
		Key:           s.Key,
		Seq:           s.Seq,
		Width:         s.Width,
		Height:        s.Height,
		ColorOrder:    order,
		Normalization: norm,
		ByteOrder:     byteOrder,
		Data:          s.Data,
	}
	if s.CapturedAt != 0 {
		f.CapturedAt = time.Unix(0, s.CapturedAt)
	}
	return f, nil
}
