package store

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pagebuilder/api-server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// PageStore is the default content-storage collaborator: pages live in the
// same sqlite database as everything else.
type PageStore struct {
	db      *gorm.DB
	baseURL string
	client  *http.Client
}

func NewPageStore(db *gorm.DB, baseURL string) *PageStore {
	return &PageStore{
		db:      db,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CreatePage inserts one page and returns its id.
func (s *PageStore) CreatePage(ctx context.Context, in models.PageInput) (uint, error) {
	status := in.Status
	switch status {
	case models.PageStatusPublish, models.PageStatusDraft, models.PageStatusPending:
	case "":
		status = models.PageStatusPublish
	default:
		return 0, fmt.Errorf("invalid status %q", in.Status)
	}

	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Title)
	} else {
		slug = Slugify(slug)
	}

	page := models.Page{
		Title:    in.Title,
		Content:  in.Content,
		Status:   status,
		Slug:     slug,
		ParentID: in.ParentID,
		Template: in.Template,
	}

	if err := s.db.WithContext(ctx).Create(&page).Error; err != nil {
		return 0, err
	}

	return page.ID, nil
}

// GetPage returns the display summary (permalink, title, status) for a page.
func (s *PageStore) GetPage(ctx context.Context, id uint) (models.CreatedPageSummary, error) {
	var page models.Page
	if err := s.db.WithContext(ctx).First(&page, id).Error; err != nil {
		return models.CreatedPageSummary{}, err
	}

	return models.CreatedPageSummary{
		ID:     page.ID,
		Title:  page.Title,
		URL:    fmt.Sprintf("%s/pages/%s", s.baseURL, page.Slug),
		Status: page.Status,
	}, nil
}

// SetMeta upserts one custom key/value pair on a page.
func (s *PageStore) SetMeta(ctx context.Context, pageID uint, key, value string) error {
	meta := models.PageMeta{
		PageID:    pageID,
		MetaKey:   key,
		MetaValue: value,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "page_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
	}).Create(&meta).Error
}

// AttachFeaturedImage fetches the image URL and, if it resolves to an image,
// records it as the page's featured image. Callers treat failures as
// best-effort.
func (s *PageStore) AttachFeaturedImage(ctx context.Context, pageID uint, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("invalid image url: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image fetch returned HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("unexpected content type %q", ct)
	}

	return s.db.WithContext(ctx).Model(&models.Page{}).
		Where("id = ?", pageID).
		Update("featured_image_url", imageURL).Error
}

// Slugify lowercases a title and collapses runs of non-alphanumerics to
// single hyphens.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
