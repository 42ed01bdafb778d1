package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pagebuilder/api-server/internal/models"
	"github.com/pagebuilder/api-server/internal/store"
	"go.uber.org/zap"
)

// secretPrefix marks generated keys so they are recognizable in logs and
// support tickets without revealing anything.
const secretPrefix = "spb_"

// previewLen is how many leading characters of the raw secret are kept for
// display.
const previewLen = 12

var (
	ErrMissingKey = errors.New("api key is required")
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key is expired")
)

// GenerateSecret returns a fresh raw API key. The caller must hand it to the
// user immediately; only its hash is ever stored.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

// HashSecret is the irreversible form under which secrets are persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Preview returns the displayable masked form of a raw secret.
func Preview(secret string) string {
	if len(secret) <= previewLen {
		return secret + "***"
	}
	return secret[:previewLen] + "***"
}

// Validator authenticates presented secrets against the key store.
type Validator struct {
	keys   *store.KeyStore
	logger *zap.Logger
	now    func() time.Time
}

func NewValidator(keys *store.KeyStore, logger *zap.Logger) *Validator {
	return &Validator{keys: keys, logger: logger, now: time.Now}
}

// Validate authenticates a presented secret. It scans every active key and
// compares the hash in constant time, so a near-miss costs the same as a
// total mismatch. On success it bumps last_used_at and request_count before
// returning the key record.
func (v *Validator) Validate(ctx context.Context, secret string) (*models.APIKey, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}

	keys, err := v.keys.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active keys: %w", err)
	}

	presented := []byte(HashSecret(secret))

	var matched *models.APIKey
	for i := range keys {
		if subtle.ConstantTimeCompare(presented, []byte(keys[i].SecretHash)) == 1 {
			matched = &keys[i]
			break
		}
	}

	if matched == nil {
		return nil, ErrInvalidKey
	}

	if matched.IsExpired(v.now()) {
		return nil, ErrExpiredKey
	}

	if err := v.keys.TouchUsage(ctx, matched.ID); err != nil {
		// Usage counters are observability, not authorization; a failed bump
		// must not reject an otherwise valid caller.
		v.logger.Warn("failed to update key usage",
			zap.Uint("key_id", matched.ID),
			zap.Error(err))
	} else {
		matched.RequestCount++
		now := v.now()
		matched.LastUsedAt = &now
	}

	return matched, nil
}
