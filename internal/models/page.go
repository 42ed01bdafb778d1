package models

import (
	"gorm.io/gorm"
)

// Page statuses accepted by the bulk endpoint.
const (
	PageStatusPublish = "publish"
	PageStatusDraft   = "draft"
	PageStatusPending = "pending"
)

// Page is the content row backing the default page store.
type Page struct {
	gorm.Model
	Title            string `json:"title"`
	Content          string `json:"content"`
	Status           string `json:"status"`
	Slug             string `json:"slug" gorm:"index"`
	ParentID         uint   `json:"parent_id"`
	Template         string `json:"template"`
	FeaturedImageURL string `json:"featured_image_url"`
}

// PageMeta holds one custom key/value attached to a page.
type PageMeta struct {
	gorm.Model
	PageID    uint   `json:"page_id" gorm:"index:idx_page_meta_key,unique"`
	MetaKey   string `json:"meta_key" gorm:"index:idx_page_meta_key,unique"`
	MetaValue string `json:"meta_value"`
}

// PageInput is one item of the bulk create-pages request body.
type PageInput struct {
	Title            string            `json:"title"`
	Content          string            `json:"content"`
	Status           string            `json:"status"`
	Slug             string            `json:"slug"`
	ParentID         uint              `json:"parent_id"`
	Template         string            `json:"template"`
	Meta             map[string]string `json:"meta"`
	FeaturedImageURL string            `json:"featured_image_url"`
}

// CreatedPageSummary is the per-page slice of a successful response and of
// the webhook payload.
type CreatedPageSummary struct {
	ID     uint   `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Status string `json:"status"`
}
