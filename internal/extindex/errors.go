package extindex

import "errors"

var (
	// ErrUnknownScheme is returned by Open for a DSN no opener handles.
	ErrUnknownScheme = errors.New("unsupported index scheme")
	// ErrUnavailable wraps failures talking to a remote index.
	ErrUnavailable = errors.New("external index unavailable")
)
