package segment

import (
	"errors"
	"fmt"
)

// ErrReleased is returned when a segment is used after its last reference
// was dropped.
var ErrReleased = errors.New("segment already released")

// ErrOutOfOrder is returned by the writer when keys are not appended in
// strictly ascending byte order.
var ErrOutOfOrder = errors.New("keys must be appended in strictly ascending order")

// CorruptionError reports a segment blob that cannot be decoded.
type CorruptionError struct {
	Name   string
	Reason string
	Err    error
}

// Error returns the error message.
func (e CorruptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("segment %s corrupted: %s", e.Name, e.Reason)
	}

	return fmt.Sprintf("segment %s corrupted: %s: %s", e.Name, e.Reason, e.Err)
}

func (e CorruptionError) Unwrap() error {
	return e.Err
}

func newCorruptionError(name, reason string, err error) error {
	return CorruptionError{
		Name:   name,
		Reason: reason,
		Err:    err,
	}
}
