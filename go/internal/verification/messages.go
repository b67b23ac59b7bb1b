package verification

import (
	"errors"

	"github.com/mcdev12/ironclad/go/clients/coach_api_client"
)

// describe turns a failure into the message shown next to the code input
func describe(err error) string {
	switch {
	case errors.Is(err, coach_api_client.ErrExpired):
		return "Code expired. Request a new one."
	case errors.Is(err, coach_api_client.ErrInvalidCode):
		return "Invalid code. Please try again."
	case errors.Is(err, coach_api_client.ErrRateLimited):
		return "Too many requests. Please wait before requesting another code."
	case errors.Is(err, coach_api_client.ErrUnknownIdentity):
		return "No pending verification for this email."
	case errors.Is(err, ErrResendCooldown):
		return "Please wait before requesting another code."
	default:
		return "Could not reach the server. Please try again."
	}
}
