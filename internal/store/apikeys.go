package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// PermissionLevel gates what an API key's bearer may do: reads are open,
// every mutation requires admin.
type PermissionLevel string

const (
	PermissionReadOnly PermissionLevel = "read_only"
	PermissionAdmin    PermissionLevel = "admin"
)

// apiKeySecretBytes is 128 bits of entropy: enough that brute force is
// infeasible, short enough to fit comfortably in a Bearer header.
const apiKeySecretBytes = 16

// apiKeyPublicPrefixLen is the portion of the generated key stored in the
// clear as a lookup index, so VerifyAPIKey needn't hash every row.
const apiKeyPublicPrefixLen = 8

// NewAPIKey is the full generated secret, returned to the caller exactly
// once at creation time. The store never persists it in recoverable form.
type NewAPIKey struct {
	PublicPrefix string          `json:"publicPrefix"`
	FullKey      string          `json:"fullKey"`
	Permission   PermissionLevel `json:"permission"`
}

// CreateAPIKey generates a fresh key, hashes it, and persists the hash
// plus its public prefix.
func (s *Store) CreateAPIKey(ctx context.Context, notes string, permission PermissionLevel) (*NewAPIKey, error) {
	raw := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate api key entropy: %w", err)
	}
	full := hex.EncodeToString(raw)
	prefix := full[:apiKeyPublicPrefixLen]
	hash := sha256.Sum256([]byte(full))

	_, err := s.pool.Exec(ctx, `
		INSERT INTO graphix_api_tokens (public_prefix, sha256_api_key_hash, notes, permission_level)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, prefix, hash[:], notes, string(permission))
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &NewAPIKey{PublicPrefix: prefix, FullKey: full, Permission: permission}, nil
}

// RevokeAPIKey deletes a key by its public prefix.
func (s *Store) RevokeAPIKey(ctx context.Context, publicPrefix string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM graphix_api_tokens WHERE public_prefix = $1`, publicPrefix)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", publicPrefix, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", publicPrefix, ErrNotFound)
	}
	return nil
}

// ModifyAPIKey updates the notes/permission level of an existing key
// without rotating its secret.
func (s *Store) ModifyAPIKey(ctx context.Context, publicPrefix, notes string, permission PermissionLevel) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE graphix_api_tokens SET notes = NULLIF($2, ''), permission_level = $3
		WHERE public_prefix = $1
	`, publicPrefix, notes, string(permission))
	if err != nil {
		return fmt.Errorf("modify api key %s: %w", publicPrefix, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s: %w", publicPrefix, ErrNotFound)
	}
	return nil
}

// VerifyAPIKey checks a full bearer-presented key against its stored hash,
// using the public prefix as a lookup index and a constant-time compare
// on the hash itself to avoid timing side channels.
func (s *Store) VerifyAPIKey(ctx context.Context, fullKey string) (PermissionLevel, error) {
	if len(fullKey) < apiKeyPublicPrefixLen {
		return "", fmt.Errorf("malformed api key: %w", ErrNotFound)
	}
	prefix := fullKey[:apiKeyPublicPrefixLen]

	var (
		storedHash []byte
		permission string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT sha256_api_key_hash, permission_level FROM graphix_api_tokens WHERE public_prefix = $1
	`, prefix).Scan(&storedHash, &permission)
	if err != nil {
		return "", fmt.Errorf("api key: %w", ErrNotFound)
	}

	got := sha256.Sum256([]byte(fullKey))
	if subtle.ConstantTimeCompare(got[:], storedHash) != 1 {
		return "", fmt.Errorf("api key: %w", ErrNotFound)
	}
	return PermissionLevel(permission), nil
}
