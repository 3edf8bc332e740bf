package syncagent

import (
	"sort"

	"github.com/aidanlsb/assetcat/internal/diag"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
)

// Outcome is what the agent did for one object.
type Outcome string

const (
	// OutcomeMatch: the stored identity already matched.
	OutcomeMatch Outcome = "match"
	// OutcomeStamped: no usable stored identity; the effective id was stamped.
	OutcomeStamped Outcome = "stamped"
	// OutcomeOverrideKept: the stored identity disagreed with an override;
	// the override was stamped.
	OutcomeOverrideKept Outcome = "override-kept"
	// OutcomeDuplicate: a copy of another container; restamped.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDrift: a known container whose stored identity drifted.
	OutcomeDrift Outcome = "drift"
	// OutcomePinned: the stored identity was kept as an override.
	OutcomePinned Outcome = "pinned"
	// OutcomeFailed: reading, stamping or pinning failed.
	OutcomeFailed Outcome = "failed"
)

func (o Outcome) code() string {
	switch o {
	case OutcomeOverrideKept:
		return diag.CodeOverrideDrift
	case OutcomeDuplicate:
		return diag.CodeDuplicateRestamped
	case OutcomeDrift:
		return diag.CodeIdentityDrift
	case OutcomePinned:
		return diag.CodeOverridePinned
	default:
		return diag.CodeIdentityStamped
	}
}

// Result is the outcome for one object.
type Result struct {
	Object   model.ObjectRef `json:"object"`
	Outcome  Outcome         `json:"outcome"`
	Expected guid.AssetGuid  `json:"expected"`
	Stored   string          `json:"stored,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// Report summarises a processed batch.
type Report struct {
	Processed   int       `json:"processed"`
	Results     []Result  `json:"results"`
	Diagnostics diag.List `json:"diagnostics"`

	// Dirty is true when at least one identity was written.
	Dirty bool `json:"dirty"`
	// Err is set when processing stopped early on cancellation.
	Err error `json:"-"`
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

func (r *Report) fail(ref model.ObjectRef, expected guid.AssetGuid, stored string, err error) {
	r.add(Result{Object: ref, Outcome: OutcomeFailed, Expected: expected, Stored: stored, Err: err, Error: err.Error()})
}

// Count returns how many objects had outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the results that failed.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Merge folds other into r. Results are re-sorted by object.
func (r *Report) Merge(other Report) {
	r.Processed += other.Processed
	r.Results = append(r.Results, other.Results...)
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
	r.Dirty = r.Dirty || other.Dirty
	if r.Err == nil {
		r.Err = other.Err
	}
	sort.SliceStable(r.Results, func(i, j int) bool {
		return r.Results[i].Object.Less(r.Results[j].Object)
	})
	r.Diagnostics.Sort()
}
