package types

import "errors"

// Error kinds shared by the pipeline stages. Match them with errors.Is.
var (
	ErrDecode        = errors.New("decode error")
	ErrGeometry      = errors.New("geometry error")
	ErrEncode        = errors.New("encode error")
	ErrConfiguration = errors.New("configuration error")
)
