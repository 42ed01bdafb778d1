package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity log outcomes.
const (
	ActivitySuccess = "success"
	ActivityFailed  = "failed"
)

// ActivityLog is one append-only row per inbound request. APIKeyID is a weak
// reference: it stays behind even if the key row is later hard-deleted.
type ActivityLog struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
	APIKeyID     *uint          `json:"api_key_id" gorm:"index"`
	Endpoint     string         `json:"endpoint"`
	HTTPMethod   string         `json:"http_method"`
	Status       string         `json:"status" gorm:"index"`
	PagesCreated int            `json:"pages_created"`
	ResponseTime int64          `json:"response_time_ms"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	RequestData  string         `json:"request_data"`
	ResponseData string         `json:"response_data"`
	ErrorMessage string         `json:"error_message"`
}

// CreatedPage records one successfully created page, linked back to the
// request that produced it.
type CreatedPage struct {
	ID            uint           `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"-"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
	PageID        uint           `json:"page_id"`
	PageTitle     string         `json:"page_title"`
	PageURL       string         `json:"page_url"`
	APIKeyID      uint           `json:"api_key_id" gorm:"index"`
	ActivityLogID uint           `json:"activity_log_id" gorm:"index"`
}
