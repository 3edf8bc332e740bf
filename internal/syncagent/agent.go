// Package syncagent keeps stored identities consistent with the catalog as
// project files are moved, duplicated and deleted.
package syncagent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aidanlsb/assetcat/internal/audit"
	"github.com/aidanlsb/assetcat/internal/catalog"
	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/overrides"
	"github.com/aidanlsb/assetcat/internal/project"
)

// Overrides is the part of the override store the agent uses.
type Overrides interface {
	Effective(key overrides.Key) (guid.AssetGuid, bool)
	Set(ctx context.Context, key overrides.Key, id guid.AssetGuid) error
}

// Catalog is the part of the catalog manager the agent uses.
type Catalog interface {
	Current() *catalog.Snapshot
	MarkStale(reason string)
}

// Agent reacts to project change notifications.
type Agent struct {
	DB        project.Database
	Overrides Overrides
	Catalog   Catalog
	Log       zerolog.Logger

	// Audit records every identity written. May be nil.
	Audit *audit.Logger

	// PreserveForeignIdentity pins a duplicate's stored id as an override,
	// instead of restamping it, when no catalogued object owns that id.
	PreserveForeignIdentity bool
}

// Process handles a batch in delivery order and marks the catalog stale
// once it is done. A failure on one object is recorded in the report and
// does not stop the batch.
func (a *Agent) Process(ctx context.Context, batch []Notification) Report {
	var rep Report
	for _, n := range batch {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		a.handle(ctx, n, &rep)
	}
	if rep.Processed > 0 {
		a.Catalog.MarkStale(fmt.Sprintf("sync: %d notifications", rep.Processed))
	}
	rep.Diagnostics.Sort()
	return rep
}

func (a *Agent) handle(ctx context.Context, n Notification, rep *Report) {
	rep.Processed++
	log := a.Log.With().Str("kind", n.Kind.String()).Str("container", n.Container.String()).Logger()

	switch n.Kind {
	case Deleted:
		log.Debug().Str("path", n.OldPath).Msg("container deleted")
	case Moved:
		// Ids are path independent; only logical paths change.
		if a.relocate(ctx, n, rep, log) {
			log.Debug().Str("from", n.OldPath).Str("to", n.NewPath).Msg("container moved")
		}
	case Imported:
		if a.relocate(ctx, n, rep, log) {
			a.imported(ctx, n, rep, log)
		}
	default:
		log.Warn().Msg("ignoring unknown notification")
	}
}

// relocate tells the database where the container now lives. It reports
// false, with the failure recorded, when the database cannot follow.
func (a *Agent) relocate(ctx context.Context, n Notification, rep *Report, log zerolog.Logger) bool {
	if n.NewPath == "" {
		return true
	}
	err := a.DB.Relocate(ctx, n.Container, n.NewPath)
	if err == nil {
		return true
	}
	ref := model.ObjectRef{ContainerID: n.Container, Path: n.NewPath}
	rep.fail(ref, guid.Invalid, "", err)
	rep.Diagnostics = append(rep.Diagnostics, diag.Errorf(diag.CodeUnreadable, ref, "cannot locate container: %v", err))
	log.Error().Err(err).Str("path", n.NewPath).Msg("cannot relocate container")
	return false
}

func (a *Agent) imported(ctx context.Context, n Notification, rep *Report, log zerolog.Logger) {
	objs, err := a.DB.ContainerObjects(ctx, n.Container)
	if err != nil {
		ref := model.ObjectRef{ContainerID: n.Container, Path: n.NewPath}
		rep.fail(ref, guid.Invalid, "", err)
		rep.Diagnostics = append(rep.Diagnostics, diag.Errorf(diag.CodeUnreadable, ref, "cannot read container: %v", err))
		log.Error().Err(err).Msg("cannot read imported container")
		return
	}

	snap := a.Catalog.Current()
	known := snap.HasContainer(n.Container)
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			return
		}
		a.reconcile(ctx, o, known, snap, rep, log)
	}
}

// reconcile compares one object's stored identity with its effective id
// and stamps the effective id when they differ.
func (a *Agent) reconcile(ctx context.Context, o model.ContentObject, known bool, snap *catalog.Snapshot, rep *Report, log zerolog.Logger) {
	ref := o.Ref()
	key := overrides.KeyOf(o)
	expected, pinned := a.Overrides.Effective(key)

	raw, present, err := a.DB.StoredIdentity(ctx, ref)
	if err != nil {
		rep.fail(ref, expected, "", err)
		rep.Diagnostics = append(rep.Diagnostics, diag.Errorf(diag.CodeUnreadable, ref, "cannot read stored identity: %v", err))
		return
	}

	stored, parseErr := guid.Invalid, error(nil)
	if present {
		stored, parseErr = guid.Parse(raw)
		if parseErr == nil && !stored.IsValid() {
			parseErr = guid.ErrMalformed
		}
	}

	var outcome Outcome
	switch {
	case present && parseErr == nil && stored == expected:
		rep.add(Result{Object: ref, Outcome: OutcomeMatch, Expected: expected, Stored: raw})
		return

	case !present || parseErr != nil:
		outcome = OutcomeStamped
		if present {
			rep.Diagnostics = append(rep.Diagnostics, diag.Infof(diag.CodeIdentityStamped, ref,
				"stored identity %q is malformed, stamping %s", raw, expected))
		} else {
			rep.Diagnostics = append(rep.Diagnostics, diag.Infof(diag.CodeIdentityStamped, ref,
				"no stored identity, stamping %s", expected))
		}

	case pinned:
		outcome = OutcomeOverrideKept
		rep.Diagnostics = append(rep.Diagnostics, diag.Warnf(diag.CodeOverrideDrift, ref,
			"stored identity %s differs from override %s; keeping the override", stored, expected))

	case !known:
		if a.PreserveForeignIdentity && a.canPin(snap, stored) {
			if err := a.Overrides.Set(ctx, key, stored); err != nil {
				rep.fail(ref, expected, raw, err)
				rep.Diagnostics = append(rep.Diagnostics, diag.Errorf(diag.CodeStampFailed, ref, "cannot pin %s: %v", stored, err))
				return
			}
			if err := a.Audit.LogOverride(o.ContainerID.String(), o.SubID, "", stored.String(), diag.CodeOverridePinned); err != nil {
				log.Warn().Err(err).Msg("audit log write failed")
			}
			rep.Diagnostics = append(rep.Diagnostics, diag.Infof(diag.CodeOverridePinned, ref,
				"kept stored identity %s as an override", stored))
			rep.add(Result{Object: ref, Outcome: OutcomePinned, Expected: stored, Stored: raw})
			log.Info().Int64("sub", o.SubID).Stringer("guid", stored).Msg("pinned foreign identity")
			return
		}
		outcome = OutcomeDuplicate
		rep.Diagnostics = append(rep.Diagnostics, diag.Infof(diag.CodeDuplicateRestamped, ref,
			"stored identity %s belongs to another container, stamping %s", stored, expected))

	default:
		outcome = OutcomeDrift
		rep.Diagnostics = append(rep.Diagnostics, diag.Warnf(diag.CodeIdentityDrift, ref,
			"stored identity %s differs from %s, stamping", stored, expected))
	}

	if err := a.DB.StampIdentity(ctx, ref, expected); err != nil {
		rep.fail(ref, expected, raw, err)
		rep.Diagnostics = append(rep.Diagnostics, diag.Errorf(diag.CodeStampFailed, ref, "cannot stamp %s: %v", expected, err))
		log.Error().Err(err).Int64("sub", o.SubID).Msg("stamp failed")
		return
	}
	rep.Dirty = true
	rep.add(Result{Object: ref, Outcome: outcome, Expected: expected, Stored: raw})
	if err := a.Audit.LogStamp(o.ContainerID.String(), o.SubID, o.ContainerPath, raw, expected.String(), outcome.code()); err != nil {
		log.Warn().Err(err).Msg("audit log write failed")
	}
	log.Info().Int64("sub", o.SubID).Str("outcome", string(outcome)).Stringer("guid", expected).Msg("stamped identity")
}

// canPin reports whether id may be kept as an override: it must be a
// catalog id that no catalogued object holds.
func (a *Agent) canPin(snap *catalog.Snapshot, id guid.AssetGuid) bool {
	if !id.IsCatalogID() {
		return false
	}
	_, owned := snap.OwnerOf(id)
	return !owned
}
