package source

import (
	"context"
	"errors"
	"sort"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/extindex"
)

// Chain tries factories in ascending priority. Ties keep the order the
// factories were given in.
type Chain struct {
	factories []Factory
}

// NewChain sorts factories by priority.
func NewChain(factories ...Factory) *Chain {
	fs := make([]Factory, 0, len(factories))
	for _, f := range factories {
		if f != nil {
			fs = append(fs, f)
		}
	}
	sort.SliceStable(fs, func(i, j int) bool {
		return fs[i].Priority() < fs[j].Priority()
	})
	return &Chain{factories: fs}
}

// Factories returns the factories in the order they are tried.
func (c *Chain) Factories() []Factory {
	return append([]Factory(nil), c.factories...)
}

// Resolve returns the first claiming factory's source. Failing factories
// produce diagnostics and are treated as declines.
func (c *Chain) Resolve(ctx context.Context, sc Context) (Source, bool, diag.List) {
	var diags diag.List
	for _, f := range c.factories {
		if err := ctx.Err(); err != nil {
			diags = append(diags, diag.Warnf(diag.CodeFactoryFailed, sc.Ref(),
				"source resolution cancelled: %v", err))
			return Source{}, false, diags
		}

		src, ok, err := f.TryCreate(ctx, sc)
		if err != nil {
			diags = append(diags, failureDiagnostic(f, sc, err))
			continue
		}
		if ok {
			if src.Factory == "" {
				src.Factory = f.Name()
			}
			return src, true, diags
		}
	}
	return Source{}, false, diags
}

func failureDiagnostic(f Factory, sc Context, err error) diag.Diagnostic {
	if errors.Is(err, extindex.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return diag.Warnf(diag.CodeIndexUnavailable, sc.Ref(),
			"%s declined %s: %v", f.Name(), sc.ContainerPath, err)
	}
	return diag.Warnf(diag.CodeFactoryFailed, sc.Ref(),
		"%s failed on %s: %v", f.Name(), sc.ContainerPath, err)
}

// DefaultChain returns the built-in strategies: external index, then
// resources folders, then the static catch-all.
func DefaultChain(opts Options) *Chain {
	return NewChain(
		&ExternalIndexFactory{Timeout: opts.IndexTimeout},
		&PathAddressedFactory{Segment: opts.ResourcesSegment},
		&StaticFactory{Roots: opts.Roots},
	)
}
