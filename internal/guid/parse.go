package guid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("malformed asset guid")

// ParseError describes text that is not an asset guid.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse asset guid %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// Parse reads an id in canonical form ("[0123456789ABCDEF]").
//
// Bare hex ("0123456789abcdef", optionally "0x"-prefixed) is accepted for
// older files. Surrounding whitespace is ignored. Parse never panics.
func Parse(text string) (AssetGuid, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Invalid, &ParseError{Input: text, Reason: "empty"}
	}

	if strings.HasPrefix(s, "[") || strings.HasSuffix(s, "]") {
		if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
			return Invalid, &ParseError{Input: text, Reason: "unbalanced brackets"}
		}
		s = s[1 : len(s)-1]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}

	if s == "" {
		return Invalid, &ParseError{Input: text, Reason: "empty"}
	}
	if len(s) > 16 {
		return Invalid, &ParseError{Input: text, Reason: "more than 16 hex digits"}
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Invalid, &ParseError{Input: text, Reason: "not hexadecimal"}
	}
	return AssetGuid(v), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(text string) AssetGuid {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseContainerID reads a container id. Both the 32-hex form used in meta
// files and the dashed form are accepted.
func ParseContainerID(text string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(text))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse container id %q: %w", text, err)
	}
	return id, nil
}

// FormatContainerID returns the 32-hex form written to meta files.
func FormatContainerID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (id AssetGuid) MarshalText() ([]byte, error) {
	return []byte(Format(id)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AssetGuid) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
