package source

import (
	"context"
	"fmt"
	"time"

	"github.com/aidanlsb/assetcat/internal/paths"
)

// Default factory priorities. Lower runs first.
const (
	PriorityExternalIndex = 500
	PriorityPathAddressed = 1000
	PriorityStatic        = 2000
)

// Options configures DefaultChain.
type Options struct {
	Roots            []string
	ResourcesSegment string
	IndexTimeout     time.Duration
}

// DefaultIndexTimeout bounds one external index lookup.
const DefaultIndexTimeout = 2 * time.Second

// ExternalIndexFactory claims objects the external index knows about.
type ExternalIndexFactory struct {
	Timeout time.Duration
}

func (f *ExternalIndexFactory) Name() string  { return "external-index" }
func (f *ExternalIndexFactory) Priority() int { return PriorityExternalIndex }

func (f *ExternalIndexFactory) TryCreate(ctx context.Context, c Context) (Source, bool, error) {
	if c.Index == nil {
		return Source{}, false, nil
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultIndexTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key, found, err := c.Index.Key(lookupCtx, c.ContainerID, c.SubID)
	if err != nil {
		if lookupCtx.Err() != nil && ctx.Err() == nil {
			return Source{}, false, fmt.Errorf("index lookup timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		return Source{}, false, err
	}
	if !found {
		return Source{}, false, nil
	}
	return Source{Kind: ExternallyIndexed, Key: key}, true, nil
}

// DefaultResourcesSegment is the folder name that marks path-addressed
// content.
const DefaultResourcesSegment = "Resources"

// PathAddressedFactory claims objects inside a resources folder. The load
// path is relative to the innermost such folder, without extension.
type PathAddressedFactory struct {
	Segment string
}

func (f *PathAddressedFactory) Name() string  { return "resources" }
func (f *PathAddressedFactory) Priority() int { return PriorityPathAddressed }

func (f *PathAddressedFactory) TryCreate(ctx context.Context, c Context) (Source, bool, error) {
	seg := f.Segment
	if seg == "" {
		seg = DefaultResourcesSegment
	}
	rel, ok := paths.AfterSegment(c.ContainerPath, seg)
	if !ok {
		return Source{}, false, nil
	}
	src := Source{Kind: PathAddressed, Path: paths.StripExt(rel)}
	if !c.IsPrimary {
		src.SubName = c.Name
	}
	return src, true, nil
}

// StaticFactory claims every object under one of its roots.
type StaticFactory struct {
	Roots []string
}

func (f *StaticFactory) Name() string  { return "static" }
func (f *StaticFactory) Priority() int { return PriorityStatic }

func (f *StaticFactory) TryCreate(ctx context.Context, c Context) (Source, bool, error) {
	roots := f.Roots
	if len(roots) == 0 {
		roots = []string{paths.DefaultRoot}
	}
	for _, r := range roots {
		if paths.UnderRoot(c.ContainerPath, r) {
			return Source{Kind: StaticEmbedded, Path: paths.NormalizeRelPath(c.ContainerPath)}, true, nil
		}
	}
	return Source{}, false, nil
}
