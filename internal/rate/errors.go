package rate

import "errors"

var (
	// ErrInvalidPolicy is returned for non-positive limits or windows.
	ErrInvalidPolicy = errors.New("rate: invalid policy")
)
