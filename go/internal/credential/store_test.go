package credential

import (
	"context"
	"testing"

	"github.com/mcdev12/ironclad/go/internal/anchor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(anchor.NewMemoryKV())

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)

	assert.Error(t, s.Save(ctx, Credential{}))

	require.NoError(t, s.Save(ctx, Credential{AccessToken: "abc"}))
	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}
