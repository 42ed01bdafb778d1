package store

import (
	"context"
	"time"

	"github.com/pagebuilder/api-server/internal/models"
	"gorm.io/gorm"
)

// KeyStore persists API key records.
type KeyStore struct {
	db *gorm.DB
}

func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

func (s *KeyStore) Create(ctx context.Context, key *models.APIKey) error {
	return s.db.WithContext(ctx).Create(key).Error
}

// ListActive returns every active key; the validator scans all of them.
func (s *KeyStore) ListActive(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).
		Where("status = ?", models.KeyStatusActive).
		Find(&keys).Error
	return keys, err
}

func (s *KeyStore) ListAll(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (s *KeyStore) GetByID(ctx context.Context, id uint) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.WithContext(ctx).First(&key, id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Revoke flips the key to revoked; the row is kept for the audit trail.
func (s *KeyStore) Revoke(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("status", models.KeyStatusRevoked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *KeyStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.APIKey{}, id).Error
}

// TouchUsage bumps last_used_at and request_count in a single UPDATE so
// concurrent validations for the same key never lose an increment.
func (s *KeyStore) TouchUsage(ctx context.Context, id uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_used_at":  now,
			"request_count": gorm.Expr("request_count + 1"),
		}).Error
}
