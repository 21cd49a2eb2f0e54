package types

import "errors"

// Sentinel decode errors shared by every MarshalSSZ/UnmarshalSSZ pair in this
// package. Callers distinguish failure kinds with errors.Is rather than
// string matching.
var (
	// ErrFixedSizeMismatch is returned when a type's fixed-size region does
	// not match the buffer length SSZ requires for it.
	ErrFixedSizeMismatch = errors.New("ssz: fixed-size region mismatch")
	// ErrOffsetOutOfRange is returned when a variable-size field's offset
	// table entry falls outside the buffer or violates monotonicity.
	ErrOffsetOutOfRange = errors.New("ssz: offset out of range")
)
