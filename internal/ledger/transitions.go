package ledger

import "github.com/example/service-dispatch/internal/models"

// transitions is the only legal edge set for the request lifecycle.
// Cancellation once work has begun is deliberately absent.
var transitions = map[models.Status]map[models.Status]struct{}{
	models.StatusPending: {
		models.StatusAccepted:  {},
		models.StatusCancelled: {},
	},
	models.StatusAccepted: {
		models.StatusEnRoute:   {},
		models.StatusCancelled: {},
	},
	models.StatusEnRoute: {
		models.StatusInProgress: {},
		models.StatusCancelled:  {},
	},
	models.StatusInProgress: {
		models.StatusCompleted: {},
	},
}

// CanTransition reports whether from -> to is a legal edge. Terminal states
// have no outgoing edges.
func CanTransition(from, to models.Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}
