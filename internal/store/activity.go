package store

import (
	"context"
	"time"

	"github.com/pagebuilder/api-server/internal/models"
	"gorm.io/gorm"
)

// ActivityStore is the append-only request and created-page trail.
type ActivityStore struct {
	db *gorm.DB
}

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// LogRequest appends one row per inbound request and fills in log.ID.
func (s *ActivityStore) LogRequest(ctx context.Context, log *models.ActivityLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// LogCreatedPage appends one row per successfully created page.
func (s *ActivityStore) LogCreatedPage(ctx context.Context, page *models.CreatedPage) error {
	return s.db.WithContext(ctx).Create(page).Error
}

// ActivityFilter narrows ListLogs; zero values mean "no filter".
type ActivityFilter struct {
	Status   string
	APIKeyID uint
	From     time.Time
	To       time.Time
}

func (s *ActivityStore) ListLogs(ctx context.Context, f ActivityFilter) ([]models.ActivityLog, error) {
	q := s.db.WithContext(ctx).Model(&models.ActivityLog{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.APIKeyID != 0 {
		q = q.Where("api_key_id = ?", f.APIKeyID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}

	var logs []models.ActivityLog
	err := q.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

func (s *ActivityStore) ListCreatedPages(ctx context.Context) ([]models.CreatedPage, error) {
	var pages []models.CreatedPage
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&pages).Error
	return pages, err
}

func (s *ActivityStore) CreatedPagesForLog(ctx context.Context, activityLogID uint) ([]models.CreatedPage, error) {
	var pages []models.CreatedPage
	err := s.db.WithContext(ctx).
		Where("activity_log_id = ?", activityLogID).
		Find(&pages).Error
	return pages, err
}
