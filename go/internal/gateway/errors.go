package gateway

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/ironclad/go/clients/coach_api_client"
	"github.com/mcdev12/ironclad/go/internal/verification"
	"github.com/mcdev12/ironclad/go/internal/workout"
)

var (
	errFlowNotFound = errors.New("flow not found")
	errBadFlowID    = errors.New("flow_id must be a uuid")
)

// toConnectError maps flow and backend failures to connect codes
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var code connect.Code
	switch {
	case errors.Is(err, errFlowNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, errBadFlowID),
		errors.Is(err, verification.ErrInvalidDigit),
		errors.Is(err, verification.ErrInvalidPosition):
		code = connect.CodeInvalidArgument
	case errors.Is(err, verification.ErrNoPendingIdentity),
		errors.Is(err, verification.ErrResendCooldown),
		errors.Is(err, workout.ErrInvalidTransition),
		errors.Is(err, workout.ErrDisposed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, coach_api_client.ErrRateLimited):
		code = connect.CodeResourceExhausted
	case errors.Is(err, coach_api_client.ErrNotFound),
		errors.Is(err, coach_api_client.ErrUnknownIdentity):
		code = connect.CodeNotFound
	case errors.Is(err, coach_api_client.ErrConflict):
		code = connect.CodeAlreadyExists
	case errors.Is(err, coach_api_client.ErrUnauthenticated):
		code = connect.CodeUnauthenticated
	default:
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
