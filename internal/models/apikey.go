package models

import (
	"time"

	"gorm.io/gorm"
)

// API key status values.
const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// APIKey represents a caller credential. Only the SHA-256 hash of the raw
// secret is stored; the raw value is returned once at generation time and is
// not recoverable afterwards. gorm's bookkeeping columns are spelled out so
// the JSON surface stays snake_case and update/delete timestamps stay out of
// API responses.
type APIKey struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
	Name         string         `json:"name"`
	SecretHash   string         `json:"-" gorm:"uniqueIndex"`
	Preview      string         `json:"preview"`
	Status       string         `json:"status" gorm:"index;default:active"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	LastUsedAt   *time.Time     `json:"last_used_at"`
	RequestCount int64          `json:"request_count"`
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
