package workout

import (
	"errors"

	"github.com/mcdev12/ironclad/go/clients/coach_api_client"
)

func describe(err error) string {
	switch {
	case errors.Is(err, coach_api_client.ErrNotFound):
		return "Workout not found."
	case errors.Is(err, coach_api_client.ErrConflict):
		return "Workout was already completed."
	case errors.Is(err, coach_api_client.ErrUnauthenticated):
		return "Session expired. Please sign in again."
	default:
		return "Could not save the workout. Please try again."
	}
}
