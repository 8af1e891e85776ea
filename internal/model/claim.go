package model

import "time"

// ClaimStatus is the lifecycle state of a Claim (spec section 3).
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "PENDING"
	ClaimContacted ClaimStatus = "CONTACTED"
	ClaimSelected  ClaimStatus = "SELECTED"
	ClaimCompleted ClaimStatus = "COMPLETED"
	ClaimCancelled ClaimStatus = "CANCELLED"
	ClaimSkipped   ClaimStatus = "SKIPPED"
	ClaimExpired   ClaimStatus = "EXPIRED"
)

// ActiveStatuses holds the claim statuses that occupy a queue position
// ("the active set", spec glossary).
var ActiveStatuses = []ClaimStatus{ClaimPending, ClaimContacted}

// TerminalStatuses holds the claim statuses from which no further
// transition is permitted (spec invariant 7).
var TerminalStatuses = []ClaimStatus{ClaimCompleted, ClaimCancelled, ClaimSkipped, ClaimExpired}

// IsActive reports whether s is in the active set.
func (s ClaimStatus) IsActive() bool {
	return s == ClaimPending || s == ClaimContacted
}

// IsTerminal reports whether s is a terminal status.
func (s ClaimStatus) IsTerminal() bool {
	switch s {
	case ClaimCompleted, ClaimCancelled, ClaimSkipped, ClaimExpired:
		return true
	default:
		return false
	}
}

// ContactMethod is the closed set of ways a claimer may be reached,
// parsed at the boundary per spec section 9 ("enumerate the closed set of
// allowed values... internal representation is a tagged variant").
type ContactMethod string

const (
	ContactEmail ContactMethod = "email"
	ContactPhone ContactMethod = "phone"
	ContactBoth  ContactMethod = "both"
)

// ValidContactMethod reports whether m is one of the closed set of values.
func ValidContactMethod(m ContactMethod) bool {
	switch m {
	case ContactEmail, ContactPhone, ContactBoth:
		return true
	default:
		return false
	}
}

// ValidPreferredPickupDate reports whether t is unset or strictly in the
// future relative to now (spec section 3: "optional preferred_pickup_date
// (must be in the future at creation)").
func ValidPreferredPickupDate(t *time.Time, now time.Time) bool {
	return t == nil || t.After(now)
}

// Claim is a user's intent to receive an Item.
type Claim struct {
	ID                  string
	ItemID              string
	UserID              string
	QueuePosition       int
	Status              ClaimStatus
	ContactMethod       ContactMethod
	PreferredPickupDate *time.Time
	ClaimerNote         string
	ListerNote          string
	CreatedAt           time.Time
	ContactedAt         *time.Time
	SelectedAt          *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
	SkippedAt           *time.Time
	ExpiredAt           *time.Time
	RepositionedAt      *time.Time
	Reason              string // set on terminal transitions caused by the system (skip/expire/cancel reasons)
}

// EnqueuePrefs are the caller-supplied fields for a new claim.
type EnqueuePrefs struct {
	ContactMethod       ContactMethod
	PreferredPickupDate *time.Time
	ClaimerNote         string
}
