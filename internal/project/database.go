// Package project adapts a directory tree of asset files to the catalog.
//
// Content lives under the project's roots (default "Assets/") as YAML
// "*.asset" files. Each has a sidecar "<file>.meta" holding the container
// id. This package is the only code that reads or writes those files.
package project

import (
	"context"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
)

// Database is the host project database the catalog depends on.
type Database interface {
	// Objects enumerates every content object.
	Objects(ctx context.Context) ([]model.ContentObject, error)
	// ContainerObjects returns the objects of one container.
	ContainerObjects(ctx context.Context, container uuid.UUID) ([]model.ContentObject, error)
	// ContainerPath returns the container's current project-relative path.
	ContainerPath(container uuid.UUID) (string, bool)
	// StoredIdentity returns the id text persisted on the object itself.
	// present is false when the object carries no id yet.
	StoredIdentity(ctx context.Context, ref model.ObjectRef) (raw string, present bool, err error)
	// StampIdentity writes id onto the object.
	StampIdentity(ctx context.Context, ref model.ObjectRef, id guid.AssetGuid) error
	// Relocate records that container now lives at newPath. It fails when
	// the project holds a different container there.
	Relocate(ctx context.Context, container uuid.UUID, newPath string) error
}

// ChangeKind classifies a project change.
type ChangeKind string

const (
	ChangeImported ChangeKind = "imported"
	ChangeMoved    ChangeKind = "moved"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one project change, as derived by Reconcile.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	Container uuid.UUID  `json:"container"`
	OldPath   string     `json:"old_path,omitempty"`
	NewPath   string     `json:"new_path,omitempty"`
}

// StateDir is the project-relative directory assetcat keeps its state in.
const StateDir = ".assetcat"

// AssetExt is the extension of container files.
const AssetExt = ".asset"

// MetaExt is appended to a container path to name its sidecar.
const MetaExt = ".meta"
