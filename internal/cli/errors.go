package cli

import (
	"errors"

	"github.com/aidanlsb/assetcat/internal/config"
	"github.com/aidanlsb/assetcat/internal/extindex"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/store"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts.
const (
	// Project errors
	ErrProjectNotFound = "PROJECT_NOT_FOUND"
	ErrConfigInvalid   = "CONFIG_INVALID"

	// Identity errors
	ErrGuidInvalid      = "GUID_INVALID"
	ErrContainerInvalid = "CONTAINER_INVALID"
	ErrReservedBits     = "RESERVED_BITS"
	ErrEntryNotFound    = "ENTRY_NOT_FOUND"
	ErrOverrideNotFound = "OVERRIDE_NOT_FOUND"

	// Storage errors
	ErrPersistFailed = "PERSIST_FAILED"
	ErrStoreLocked   = "STORE_LOCKED"
	ErrNoSnapshot    = "NO_SNAPSHOT"
	ErrDatabaseError = "DATABASE_ERROR"
	ErrIndexError    = "INDEX_ERROR"

	// File errors
	ErrFileReadError  = "FILE_READ_ERROR"
	ErrFileWriteError = "FILE_WRITE_ERROR"

	// Catalog errors
	ErrCatalogErrors = "CATALOG_HAS_ERRORS"
	ErrSyncFailed    = "SYNC_FAILED"

	// Input errors
	ErrInvalidInput    = "INVALID_INPUT"
	ErrMissingArgument = "MISSING_ARGUMENT"

	// General errors
	ErrInternal             = "INTERNAL_ERROR"
	ErrConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// errorCode maps an error to its stable code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, guid.ErrMalformed):
		return ErrGuidInvalid
	case errors.Is(err, overrides.ErrReservedBits):
		return ErrReservedBits
	case errors.Is(err, overrides.ErrPersist):
		return ErrPersistFailed
	case errors.Is(err, store.ErrStoreLocked):
		return ErrStoreLocked
	case errors.Is(err, store.ErrNoSnapshot):
		return ErrNoSnapshot
	case errors.Is(err, extindex.ErrUnknownScheme), errors.Is(err, extindex.ErrUnavailable):
		return ErrIndexError
	case errors.Is(err, config.ErrNoProject):
		return ErrProjectNotFound
	default:
		return ErrInternal
	}
}
