package project

import "errors"

var (
	// ErrNotFound is returned for containers or objects the project does
	// not hold.
	ErrNotFound = errors.New("not found in project")
	// ErrOutsideProject is returned for paths that escape the project root.
	ErrOutsideProject = errors.New("path is outside the project")
	// ErrWrongContainer is returned when a path holds another container.
	ErrWrongContainer = errors.New("path holds a different container")
)
