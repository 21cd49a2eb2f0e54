package forkchoice

import "errors"

// Sentinel errors returned by block and attestation validation, checkable
// with errors.Is by anything layered above the store (networking, the node
// loop, tests).
var (
	// Block validation.
	ErrParentNotFound    = errors.New("parent not found")
	ErrHeadStateNotFound = errors.New("head state not found")

	// Attestation validation (see votes.go for where each applies).
	ErrSourceNotFound      = errors.New("source root not found")
	ErrTargetNotFound      = errors.New("target root not found")
	ErrHeadNotFound        = errors.New("head root not found")
	ErrValidatorOutOfRange = errors.New("validator index out of range")
	ErrSlotMismatch        = errors.New("slot mismatch")
	ErrFutureVote          = errors.New("vote too far in future")
)
