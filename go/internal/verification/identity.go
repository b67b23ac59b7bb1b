package verification

import (
	"context"
	"fmt"

	"github.com/mcdev12/ironclad/go/internal/anchor"
	"github.com/rs/zerolog/log"
)

// PendingIdentityKey holds the identity awaiting verification between restarts
const PendingIdentityKey = "pending_verification_identity"

// SavePendingIdentity records identity as awaiting verification. Signup calls
// this before handing over to the verification screen.
func SavePendingIdentity(ctx context.Context, kv anchor.KV, identity string) error {
	if err := kv.Set(ctx, PendingIdentityKey, identity); err != nil {
		return fmt.Errorf("failed to save pending identity: %w", err)
	}
	return nil
}

// PendingIdentity returns the identity awaiting verification, if any
func PendingIdentity(ctx context.Context, kv anchor.KV) (string, bool, error) {
	identity, ok, err := kv.Get(ctx, PendingIdentityKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to read pending identity: %w", err)
	}
	return identity, ok && identity != "", nil
}

// ClearPendingIdentity forgets the pending identity
func ClearPendingIdentity(ctx context.Context, kv anchor.KV) error {
	if err := kv.Delete(ctx, PendingIdentityKey); err != nil {
		return fmt.Errorf("failed to clear pending identity: %w", err)
	}
	return nil
}

// resolveIdentity prefers the explicit identity and falls back to the persisted one.
func resolveIdentity(ctx context.Context, kv anchor.KV, explicit string) (string, error) {
	if explicit != "" {
		if err := SavePendingIdentity(ctx, kv, explicit); err != nil {
			log.Warn().Err(err).Str("identity", explicit).Msg("pending identity not persisted")
		}
		return explicit, nil
	}

	identity, ok, err := PendingIdentity(ctx, kv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoPendingIdentity, err)
	}
	if !ok {
		return "", ErrNoPendingIdentity
	}
	return identity, nil
}
