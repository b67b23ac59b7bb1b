package coach_api_client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcdev12/ironclad/go/internal/credential"
)

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type verifyEmailResponse struct {
	AccessToken string `json:"access_token"`
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

// VerifyCode submits a one-time code for identity and returns the session credential.
func (c *CoachApiClient) VerifyCode(ctx context.Context, identity, code string) (credential.Credential, error) {
	var resp verifyEmailResponse
	err := c.Post(ctx, VerifyEmailEndpoint, verifyEmailRequest{Email: identity, Code: code}, &resp, nil)
	if err != nil {
		return credential.Credential{}, mapVerifyError(err)
	}
	if resp.AccessToken == "" {
		return credential.Credential{}, fmt.Errorf("verify response has no access token")
	}
	return credential.Credential{AccessToken: resp.AccessToken}, nil
}

// ResendCode asks the backend to send a fresh code to identity.
func (c *CoachApiClient) ResendCode(ctx context.Context, identity string) error {
	if err := c.Post(ctx, ResendOTPEndpoint, resendOTPRequest{Email: identity}, nil, nil); err != nil {
		return mapResendError(err)
	}
	return nil
}

func mapVerifyError(err error) error {
	status, detail, ok := responseDetail(err)
	if !ok {
		return fmt.Errorf("verify code: %w", err)
	}
	switch {
	case status == http.StatusBadRequest && strings.EqualFold(detail, detailCodeExpired):
		return fmt.Errorf("%w: %s", ErrExpired, detail)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidCode, detail)
	default:
		return &StatusError{StatusCode: status, Detail: detail}
	}
}

func mapResendError(err error) error {
	status, detail, ok := responseDetail(err)
	if !ok {
		return fmt.Errorf("resend code: %w", err)
	}
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case http.StatusBadRequest, http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, detail)
	default:
		return &StatusError{StatusCode: status, Detail: detail}
	}
}
