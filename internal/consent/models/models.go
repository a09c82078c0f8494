package models

import "time"

// Record captures the user's consent decision at a point in time.
//
// # Derivation Invariant
//
// Status is a summary of the category flags, never independent state:
//   - granted iff every non-necessary category is true
//   - denied iff every non-necessary category is false
//   - partial otherwise
//
// Necessary is always true once a record exists; no operation may clear it.
// Records are value objects: every mutation goes through Clone + reassign so
// callers holding an old record never observe the change.
type Record struct {
	Status     Status            `json:"status"`
	Categories map[Category]bool `json:"categories"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	Method     Method            `json:"method,omitempty"`
	LegalBasis LegalBasis        `json:"legalBasis,omitempty"`
}

// NonNecessaryCategories are the categories a user can actually decide on.
var NonNecessaryCategories = []Category{CategoryAnalytics, CategoryMarketing, CategoryPreferences}

// DefaultRecord returns the conservative bootstrap record: pending, with only
// the necessary category allowed.
func DefaultRecord(now time.Time) Record {
	return Record{
		Status: StatusPending,
		Categories: map[Category]bool{
			CategoryNecessary:   true,
			CategoryAnalytics:   false,
			CategoryMarketing:   false,
			CategoryPreferences: false,
		},
		Timestamp: now,
	}
}

// DeriveStatus computes the summary status from a category map.
func DeriveStatus(categories map[Category]bool) Status {
	all := true
	none := true
	for _, cat := range NonNecessaryCategories {
		if categories[cat] {
			none = false
		} else {
			all = false
		}
	}
	switch {
	case all:
		return StatusGranted
	case none:
		return StatusDenied
	default:
		return StatusPartial
	}
}

// Clone returns a deep copy so internal state can never be mutated through a
// record handed to a caller.
func (r Record) Clone() Record {
	out := r
	out.Categories = make(map[Category]bool, len(r.Categories))
	for cat, allowed := range r.Categories {
		out.Categories[cat] = allowed
	}
	return out
}

// Normalize repairs a record loaded from an external store: the necessary
// category is forced on and the status is re-derived from the flags.
func (r Record) Normalize() Record {
	out := r.Clone()
	if out.Categories == nil {
		out.Categories = make(map[Category]bool, len(ValidCategories))
	}
	out.Categories[CategoryNecessary] = true
	if out.Status != StatusPending {
		out.Status = DeriveStatus(out.Categories)
	}
	return out
}

// Allows reports whether the record permits transmission for a category.
// Denied short-circuits false and granted short-circuits true regardless of
// individual flags; otherwise the category's explicit flag decides, absent
// meaning false.
func (r Record) Allows(category Category) bool {
	switch r.Status {
	case StatusDenied:
		return false
	case StatusGranted:
		return true
	default:
		return r.Categories[category]
	}
}
