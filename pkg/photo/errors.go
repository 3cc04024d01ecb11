package photo

import (
	"errors"
	"fmt"

	"github.com/menta2k/frame-pipeline/pkg/types"
)

// ErrBusy is returned when the capture queue is full
var ErrBusy = errors.New("photo: capture queue full")

// ErrStopped is returned for work submitted to a stopped worker
var ErrStopped = errors.New("photo: worker stopped")

// ProcessingError reports a failed photo. Kind is one of the types.Err* values.
type ProcessingError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("photo processing failed: %s: %v", e.Message, e.Err)
	}
	return "photo processing failed: " + e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is matches the error kind as well as the wrapped chain
func (e *ProcessingError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Code returns a stable identifier for host-side error responses
func (e *ProcessingError) Code() string {
	switch e.Kind {
	case types.ErrDecode:
		return "decode_error"
	case types.ErrGeometry:
		return "geometry_error"
	case types.ErrEncode:
		return "encode_error"
	case types.ErrConfiguration:
		return "configuration_error"
	default:
		return "processing_error"
	}
}

func newProcessingError(message string, err error) *ProcessingError {
	kind := error(nil)
	for _, k := range []error{types.ErrDecode, types.ErrGeometry, types.ErrEncode, types.ErrConfiguration} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return &ProcessingError{Kind: kind, Message: message, Err: err}
}
