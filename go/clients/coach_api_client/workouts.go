package coach_api_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type completeWorkoutRequest struct {
	ActualDuration int    `json:"actual_duration"`
	RPE            int    `json:"rpe"`
	Notes          string `json:"notes"`
}

// CommitSessionDuration marks the workout sessionID complete with the given duration.
func (c *CoachApiClient) CommitSessionDuration(ctx context.Context, sessionID string, durationSeconds int) error {
	headers := map[string]string{}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		headers["Authorization"] = "Bearer " + token
	}

	endpoint := fmt.Sprintf(CompleteWorkoutEndpoint, url.PathEscape(sessionID))
	req := completeWorkoutRequest{
		ActualDuration: durationSeconds,
		RPE:            c.rpe,
		Notes:          c.notes,
	}
	if err := c.Put(ctx, endpoint, req, nil, headers); err != nil {
		return mapCommitError(err)
	}
	return nil
}

func mapCommitError(err error) error {
	status, detail, ok := responseDetail(err)
	if !ok {
		return fmt.Errorf("commit session: %w", err)
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, detail)
	default:
		return &StatusError{StatusCode: status, Detail: detail}
	}
}
