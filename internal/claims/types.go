package claims

import "github.com/giveaway/core/internal/model"

// ReasonAnotherSelected/ReasonInactivity etc. are the system-authored reasons
// stamped on claims the engine moves to a terminal state itself, as
// opposed to a reason supplied by an actor (spec sections 4.2.1, 4.4).
const (
	ReasonAnotherSelected = "another claim was selected"
	ReasonItemRemoved     = "item removed"
	ReasonItemExpired     = "item expired"
	ReasonInactivity      = "inactivity"
)

// EnqueueRequest carries the caller-supplied fields for a new claim (spec
// section 4.2.1, Enqueue).
type EnqueueRequest struct {
	UserID string
	ItemID string
	Prefs  model.EnqueuePrefs
}
