package overrides

import "errors"

var (
	// ErrReservedBits is returned when an override would carry flag bits.
	ErrReservedBits = errors.New("override id uses reserved bits")
	// ErrPersist wraps every failure to write the override table.
	ErrPersist = errors.New("failed to persist overrides")
)
