package limiter

import "errors"

// ErrInvalidArgument indicates a malformed input: an empty key or name,
// permits below one, an unknown algorithm, or an unconvertible parameter.
var ErrInvalidArgument = errors.New("limiter: invalid argument")

// ErrOutOfRange indicates a numeric parameter outside its domain: a
// non-positive capacity, limit or window, or a negative rate.
var ErrOutOfRange = errors.New("limiter: out of range")
