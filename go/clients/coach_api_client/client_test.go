package coach_api_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) { return "", errors.New("no token") }

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func TestVerifyCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, VerifyEmailEndpoint, r.URL.Path)

		var req verifyEmailRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.co", req.Email)

		switch req.Code {
		case "123456":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		case "000000":
			writeDetail(w, http.StatusBadRequest, "Code expired")
		case "999999":
			writeDetail(w, http.StatusInternalServerError, "boom")
		default:
			writeDetail(w, http.StatusBadRequest, "Invalid code")
		}
	}))
	defer srv.Close()

	client := NewCoachApiClient(srv.URL)
	ctx := context.Background()

	cred, err := client.VerifyCode(ctx, "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)

	_, err = client.VerifyCode(ctx, "a@b.co", "111111")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, IsTransient(err))

	_, err = client.VerifyCode(ctx, "a@b.co", "000000")
	assert.ErrorIs(t, err, ErrExpired)

	_, err = client.VerifyCode(ctx, "a@b.co", "999999")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Detail)
	assert.True(t, IsTransient(err))
}

func TestResendCode(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ResendOTPEndpoint, r.URL.Path)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "sent"})
			return
		}
		writeDetail(w, status, "nope")
	}))
	defer srv.Close()

	client := NewCoachApiClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.ResendCode(ctx, "a@b.co"))

	status = http.StatusTooManyRequests
	assert.ErrorIs(t, client.ResendCode(ctx, "a@b.co"), ErrRateLimited)

	status = http.StatusBadRequest
	assert.ErrorIs(t, client.ResendCode(ctx, "a@b.co"), ErrUnknownIdentity)
}

func TestCommitSessionDuration(t *testing.T) {
	var got completeWorkoutRequest
	var auth, path string
	status := http.StatusOK

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if status != http.StatusOK {
			writeDetail(w, status, "Workout not found")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewCoachApiClient(srv.URL, WithTokenSource(staticToken("tok-1")))
	ctx := context.Background()

	require.NoError(t, client.CommitSessionDuration(ctx, "w-42", 1830))
	assert.Equal(t, "/workouts/w-42/complete", path)
	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, completeWorkoutRequest{ActualDuration: 1830, RPE: DefaultRPE, Notes: DefaultNotes}, got)

	status = http.StatusNotFound
	assert.ErrorIs(t, client.CommitSessionDuration(ctx, "w-42", 10), ErrNotFound)

	status = http.StatusConflict
	assert.ErrorIs(t, client.CommitSessionDuration(ctx, "w-42", 10), ErrConflict)

	status = http.StatusUnauthorized
	assert.ErrorIs(t, client.CommitSessionDuration(ctx, "w-42", 10), ErrUnauthenticated)
}

func TestCommitWithoutTokenFailsBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewCoachApiClient(srv.URL, WithTokenSource(failingToken{}))
	err := client.CommitSessionDuration(context.Background(), "w-1", 5)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, called)
}

func TestCompletionDefaultsOverride(t *testing.T) {
	var got completeWorkoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	client := NewCoachApiClient(srv.URL, WithCompletionDefaults(9, "hard day"))
	require.NoError(t, client.CommitSessionDuration(context.Background(), "w-1", 60))
	assert.Equal(t, 9, got.RPE)
	assert.Equal(t, "hard day", got.Notes)
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewCoachApiClient(url).VerifyCode(context.Background(), "a@b.co", "123456")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
