package model

import "errors"

var (
	// ErrInvalidInput reports malformed caller input: an empty block set,
	// blocks of unequal width, a message of the wrong length or an address
	// outside the configured range.
	ErrInvalidInput = errors.New("stripestore: invalid input")

	// ErrInsufficientRedundancy reports a read where more than one disk
	// returned a hole, so the stripe cannot be reconstructed.
	ErrInsufficientRedundancy = errors.New("stripestore: insufficient redundancy")
)
