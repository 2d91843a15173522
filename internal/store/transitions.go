package store

import "github.com/JeremyGnt/serenio-sub002/internal/models"

var transitionMap = map[string][]string{
	"search":   {models.StatusPending},
	"accept":   {models.StatusSearching},
	"confirm":  {models.StatusAssigned},
	"en_route": {models.StatusAccepted},
	"complete": {models.StatusEnRoute},
	"cancel": {
		models.StatusPending,
		models.StatusSearching,
		models.StatusAssigned,
		models.StatusAccepted,
		models.StatusEnRoute,
	},
}

// resultStatus maps an action to the status it commits.
var resultStatus = map[string]string{
	"search":   models.StatusSearching,
	"accept":   models.StatusAssigned,
	"confirm":  models.StatusAccepted,
	"en_route": models.StatusEnRoute,
	"complete": models.StatusCompleted,
	"cancel":   models.StatusCancelled,
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

func ResultStatus(action string) (string, bool) {
	status, ok := resultStatus[action]
	return status, ok
}
