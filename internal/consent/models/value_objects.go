package models

// Category labels a dimension of user permission. Category binding allows
// selective gating of event transmission without affecting other flows.
type Category string

const (
	CategoryNecessary   Category = "necessary"
	CategoryAnalytics   Category = "analytics"
	CategoryMarketing   Category = "marketing"
	CategoryPreferences Category = "preferences"
)

// ValidCategories is the single source of truth for all valid consent categories.
var ValidCategories = map[Category]bool{
	CategoryNecessary:   true,
	CategoryAnalytics:   true,
	CategoryMarketing:   true,
	CategoryPreferences: true,
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return ValidCategories[c]
}

// Status summarizes an entire consent record. It is always derived from the
// per-category flags, never stored independently of them.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusPartial Status = "partial"
)

// IsValid checks if the status is one of the supported enum values. A
// persisted record with any other status is treated as corrupt and ignored.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusGranted || s == StatusDenied || s == StatusPartial
}

// Method records how the consent decision was obtained.
type Method string

const (
	MethodExplicit Method = "explicit"
	MethodImplicit Method = "implicit"
	MethodOptOut   Method = "opt-out"
)

// LegalBasis records the lawful ground for processing.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisContract           LegalBasis = "contract"
)
