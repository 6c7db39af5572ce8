package store

import "spa-system/internal/models"

// transitionMap is the full operation-by-status guard table. An operation is
// legal only when the transaction currently sits in one of its listed
// statuses; everything else fails with ErrInvalidState and writes nothing.
var transitionMap = map[string][]string{
	"confirm_selection": {models.StatusSelecting},
	"claim_therapist":   {models.StatusPendingTherapist},
	"start_service":     {models.StatusTherapistConfirmed},
	"add_item":          {models.StatusTherapistConfirmed, models.StatusInService},
	"remove_item":       {models.StatusTherapistConfirmed, models.StatusInService},
	"finish_service":    {models.StatusInService},
	"claim_cashier":     {models.StatusFinished},
	"take_payment":      {models.StatusAwaitingPayment, models.StatusPaying},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses from which the action is legal, in guard
// table order.
func AllowedFrom(action string) []string {
	return transitionMap[action]
}
