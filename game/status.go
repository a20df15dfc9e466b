package game

import (
	"github.com/tambolahq/tambola-server/models"
)

// statusTransitions is the room lifecycle: lobby -> countdown ->
// running -> ended. Teardown on the last disconnect is orthogonal and
// can happen in any status.
var statusTransitions = map[models.RoomStatus][]models.RoomStatus{
	models.StatusLobby:     {models.StatusCountdown},
	models.StatusCountdown: {models.StatusRunning},
	models.StatusRunning:   {models.StatusEnded},
	models.StatusEnded:     {},
}

func canTransition(from, to models.RoomStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
