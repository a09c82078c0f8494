package models

// EventKind discriminates consent transitions. Keeping this a closed enum with
// exhaustive switches (rather than string-keyed dispatch) means a new variant
// fails compilation everywhere it is not handled.
type EventKind string

const (
	EventGrant    EventKind = "grant"
	EventDeny     EventKind = "deny"
	EventWithdraw EventKind = "withdraw"
	EventUpdate   EventKind = "update"
	EventReset    EventKind = "reset"
)

// IsValid checks if the event kind is one of the supported enum values.
func (k EventKind) IsValid() bool {
	switch k {
	case EventGrant, EventDeny, EventWithdraw, EventUpdate, EventReset:
		return true
	}
	return false
}

// Event is a tagged consent transition.
//
// Categories is only meaningful for GRANT (which categories to enable;
// nil/empty means all) and UPDATE (flags to merge over necessary=true).
type Event struct {
	Kind       EventKind         `json:"kind"`
	Categories map[Category]bool `json:"categories,omitempty"`
}

// Grant enables the given categories, or all non-necessary categories when
// none are named.
func Grant(categories ...Category) Event {
	if len(categories) == 0 {
		return Event{Kind: EventGrant}
	}
	flags := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		flags[cat] = true
	}
	return Event{Kind: EventGrant, Categories: flags}
}

// Deny disables every non-necessary category.
func Deny() Event { return Event{Kind: EventDeny} }

// Withdraw has the same effect as Deny but preserves the previously recorded
// consent version.
func Withdraw() Event { return Event{Kind: EventWithdraw} }

// Update merges the given flags over necessary=true.
func Update(categories map[Category]bool) Event {
	return Event{Kind: EventUpdate, Categories: categories}
}

// Reset clears the backing store and reloads the default record.
func Reset() Event { return Event{Kind: EventReset} }
