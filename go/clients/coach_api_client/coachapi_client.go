package coach_api_client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mcdev12/ironclad/go/clients"
)

// TokenSource supplies the bearer token for authenticated endpoints
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CoachApiClient talks to the coaching backend's verification and workout endpoints.
type CoachApiClient struct {
	*clients.BaseClient

	tokens TokenSource
	rpe    int
	notes  string
}

// Option configures a CoachApiClient
type Option func(*CoachApiClient)

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(tokens TokenSource) Option {
	return func(c *CoachApiClient) { c.tokens = tokens }
}

// WithCompletionDefaults overrides the rpe and notes sent with every commit
func WithCompletionDefaults(rpe int, notes string) Option {
	return func(c *CoachApiClient) {
		c.rpe = rpe
		c.notes = notes
	}
}

func NewCoachApiClient(baseURL string, opts ...Option) *CoachApiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &CoachApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
		rpe:        DefaultRPE,
		notes:      DefaultNotes,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// errorResponse is the backend's error body
type errorResponse struct {
	Detail string `json:"detail"`
}

// responseDetail extracts the status and detail message from a failed request.
// ok is false when err is not an HTTP response error (network failure etc).
func responseDetail(err error) (status int, detail string, ok bool) {
	var respErr *clients.ResponseError
	if !errors.As(err, &respErr) {
		return 0, "", false
	}
	var body errorResponse
	if jsonErr := json.Unmarshal(respErr.Body, &body); jsonErr != nil {
		body.Detail = string(respErr.Body)
	}
	return respErr.StatusCode, body.Detail, true
}
