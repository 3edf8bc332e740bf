// Package model holds the types shared between the project adapter, the
// catalog and the sync agent.
package model

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ContentObject is a handle to something the project database holds: a
// container file or a nested object inside it. The catalog never owns one;
// it only refers to it by (ContainerID, SubID).
type ContentObject struct {
	// ContainerID identifies the file. Stable across renames.
	ContainerID uuid.UUID `json:"container_id"`

	// SubID identifies the object within its container.
	// 0 is the container's primary object.
	SubID int64 `json:"sub_id"`

	// IsPrimary is true for the container's representative object.
	IsPrimary bool `json:"is_primary"`

	// Name is the display name. Nested objects use it to build their
	// logical path.
	Name string `json:"name"`

	// Kind is the declared type tag, e.g. "EntityPrototype".
	Kind string `json:"kind"`

	// ContainerPath is the project-relative path of the container file,
	// always with forward slashes, e.g. "Assets/Units/Tank.asset".
	ContainerPath string `json:"container_path"`
}

// Ref returns the object's reference.
func (o ContentObject) Ref() ObjectRef {
	return ObjectRef{ContainerID: o.ContainerID, SubID: o.SubID, Path: o.ContainerPath}
}

// ObjectRef names an object in diagnostics and reports.
type ObjectRef struct {
	ContainerID uuid.UUID `json:"container_id"`
	SubID       int64     `json:"sub_id"`
	Path        string    `json:"path,omitempty"`
}

// String returns "path#sub (container)" or "container#sub" when the path is
// unknown.
func (r ObjectRef) String() string {
	if r.Path == "" {
		return fmt.Sprintf("%s#%d", r.ContainerID, r.SubID)
	}
	return fmt.Sprintf("%s#%d (%s)", r.Path, r.SubID, r.ContainerID)
}

// Less orders refs by container then sub id.
func (r ObjectRef) Less(o ObjectRef) bool {
	if c := CompareContainers(r.ContainerID, o.ContainerID); c != 0 {
		return c < 0
	}
	return r.SubID < o.SubID
}

// CompareContainers orders container ids bytewise.
func CompareContainers(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
