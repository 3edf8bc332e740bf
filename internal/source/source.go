// Package source decides how a content object is loaded.
//
// A Chain of factories is consulted in ascending priority order and the
// first factory that claims an object produces its Source. Objects no
// factory claims are not catalogable.
package source

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/extindex"
	"github.com/aidanlsb/assetcat/internal/model"
)

// Kind tags the loading strategy.
type Kind int

const (
	// StaticEmbedded objects are resident in the build.
	StaticEmbedded Kind = iota + 1
	// PathAddressed objects load lazily by folder-relative path.
	PathAddressed
	// ExternallyIndexed objects load through an opaque key in an external
	// index.
	ExternallyIndexed
)

func (k Kind) String() string {
	switch k {
	case StaticEmbedded:
		return "static"
	case PathAddressed:
		return "path"
	case ExternallyIndexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "static":
		return StaticEmbedded, true
	case "path":
		return PathAddressed, true
	case "indexed":
		return ExternallyIndexed, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, ok := ParseKind(string(text))
	if !ok {
		return fmt.Errorf("unknown source kind %q", text)
	}
	*k = v
	return nil
}

// Source describes where an object's content comes from. Only the fields
// relevant to Kind are set.
type Source struct {
	Kind Kind `json:"kind"`
	// Path is the load path: the container path for StaticEmbedded, the
	// folder-relative path without extension for PathAddressed.
	Path string `json:"path,omitempty"`
	// SubName selects a nested object for PathAddressed sources.
	SubName string `json:"sub_name,omitempty"`
	// Key is the external index key for ExternallyIndexed sources.
	Key string `json:"key,omitempty"`
	// Factory names the factory that produced the source.
	Factory string `json:"factory"`
}

// Locator returns the strategy-specific address as one string.
func (s Source) Locator() string {
	switch s.Kind {
	case ExternallyIndexed:
		return s.Key
	case PathAddressed:
		if s.SubName != "" {
			return s.Path + "[" + s.SubName + "]"
		}
		return s.Path
	default:
		return s.Path
	}
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Locator())
}

// Context is what a factory may look at when deciding.
type Context struct {
	ContainerID   uuid.UUID
	ContainerPath string
	SubID         int64
	IsPrimary     bool
	Name          string
	DeclaredKind  string

	// Index is queried by the externally-indexed strategy. The chain's
	// caller owns it; it may be nil.
	Index extindex.Lookup
}

// ContextFor builds a Context for obj.
func ContextFor(obj model.ContentObject, index extindex.Lookup) Context {
	return Context{
		ContainerID:   obj.ContainerID,
		ContainerPath: obj.ContainerPath,
		SubID:         obj.SubID,
		IsPrimary:     obj.IsPrimary,
		Name:          obj.Name,
		DeclaredKind:  obj.Kind,
		Index:         index,
	}
}

// Ref returns an object reference for diagnostics.
func (c Context) Ref() model.ObjectRef {
	return model.ObjectRef{ContainerID: c.ContainerID, SubID: c.SubID, Path: c.ContainerPath}
}

// Factory is one loading strategy.
//
// TryCreate returns ok=false to decline. An error also counts as a decline;
// the chain records it and moves on. Factories must be deterministic for a
// fixed project state.
type Factory interface {
	Name() string
	Priority() int
	TryCreate(ctx context.Context, c Context) (src Source, ok bool, err error)
}
