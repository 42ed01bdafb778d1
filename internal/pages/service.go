package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagebuilder/api-server/internal/models"
	"github.com/pagebuilder/api-server/internal/store"
	"github.com/pagebuilder/api-server/internal/webhook"
	"go.uber.org/zap"
)

// Creator is the content-storage collaborator consumed by the bulk service.
// The default implementation is the local sqlite page store; anything that
// can create pages, look them up and sideload media satisfies it.
type Creator interface {
	CreatePage(ctx context.Context, in models.PageInput) (uint, error)
	GetPage(ctx context.Context, id uint) (models.CreatedPageSummary, error)
	SetMeta(ctx context.Context, pageID uint, key, value string) error
	AttachFeaturedImage(ctx context.Context, pageID uint, imageURL string) error
}

// BulkResult is the outcome of one batch, partial failures included.
type BulkResult struct {
	Success        bool
	Message        string
	CreatedPages   []models.CreatedPageSummary
	Errors         []string
	TotalCreated   int
	TotalRequested int
	ResponseTimeMS int64
}

// RequestMeta carries the request-scoped diagnostics recorded in the
// activity trail.
type RequestMeta struct {
	Endpoint  string
	Method    string
	ClientIP  string
	UserAgent string
}

// Service orchestrates bulk page creation: creation loop, activity logging
// and webhook notification.
type Service struct {
	creator    Creator
	activity   *store.ActivityStore
	dispatcher *webhook.Dispatcher
	logger     *zap.Logger
	async      bool
}

func NewService(creator Creator, activity *store.ActivityStore, dispatcher *webhook.Dispatcher, logger *zap.Logger, asyncWebhook bool) *Service {
	return &Service{
		creator:    creator,
		activity:   activity,
		dispatcher: dispatcher,
		logger:     logger,
		async:      asyncWebhook,
	}
}

// CreateBatch processes the items in input order. A bad or failing item is
// recorded as a per-item error and never aborts the batch. Item indices in
// error strings are 0-based.
func (s *Service) CreateBatch(ctx context.Context, key *models.APIKey, items []models.PageInput, meta RequestMeta) *BulkResult {
	start := time.Now()

	// A caller disconnect must not abandon a half-done batch: pages already
	// created stay created and still get logged, so run the loop detached
	// from the request's cancellation.
	ctx = context.WithoutCancel(ctx)

	created := make([]models.CreatedPageSummary, 0, len(items))
	errs := make([]string, 0)

	for i, item := range items {
		if item.Title == "" {
			errs = append(errs, fmt.Sprintf("Page #%d: Title is required", i))
			continue
		}

		pageID, err := s.creator.CreatePage(ctx, item)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Page #%d (%s): %v", i, item.Title, err))
			continue
		}

		// Meta and featured image are best-effort side effects; their
		// failures do not fail the item.
		for k, v := range item.Meta {
			if err := s.creator.SetMeta(ctx, pageID, k, v); err != nil {
				s.logger.Warn("failed to set page meta",
					zap.Uint("page_id", pageID),
					zap.String("meta_key", k),
					zap.Error(err))
			}
		}
		if item.FeaturedImageURL != "" {
			if err := s.creator.AttachFeaturedImage(ctx, pageID, item.FeaturedImageURL); err != nil {
				s.logger.Warn("failed to attach featured image",
					zap.Uint("page_id", pageID),
					zap.String("image_url", item.FeaturedImageURL),
					zap.Error(err))
			}
		}

		summary, err := s.creator.GetPage(ctx, pageID)
		if err != nil {
			// The page exists; fall back to what we sent.
			summary = models.CreatedPageSummary{
				ID:     pageID,
				Title:  item.Title,
				Status: item.Status,
			}
		}
		created = append(created, summary)
	}

	elapsed := time.Since(start).Milliseconds()

	logID := s.logBatch(ctx, key, items, created, errs, elapsed, meta)
	for _, page := range created {
		err := s.activity.LogCreatedPage(ctx, &models.CreatedPage{
			PageID:        page.ID,
			PageTitle:     page.Title,
			PageURL:       page.URL,
			APIKeyID:      key.ID,
			ActivityLogID: logID,
		})
		if err != nil {
			s.logger.Error("failed to record created page",
				zap.Uint("page_id", page.ID),
				zap.Error(err))
		}
	}

	if len(created) > 0 {
		s.notify(ctx, key.Name, created)
	}

	message := fmt.Sprintf("%d page(s) created successfully", len(created))
	if len(errs) > 0 {
		message += fmt.Sprintf(" with %d error(s)", len(errs))
	}

	return &BulkResult{
		Success:        true,
		Message:        message,
		CreatedPages:   created,
		Errors:         errs,
		TotalCreated:   len(created),
		TotalRequested: len(items),
		ResponseTimeMS: elapsed,
	}
}

func (s *Service) logBatch(ctx context.Context, key *models.APIKey, items []models.PageInput, created []models.CreatedPageSummary, errs []string, elapsed int64, meta RequestMeta) uint {
	requestData, _ := json.Marshal(map[string]int{"pages_count": len(items)})
	responseData, _ := json.Marshal(map[string]int{"created": len(created), "errors": len(errs)})

	keyID := key.ID
	entry := models.ActivityLog{
		APIKeyID:     &keyID,
		Endpoint:     meta.Endpoint,
		HTTPMethod:   meta.Method,
		Status:       models.ActivitySuccess,
		PagesCreated: len(created),
		ResponseTime: elapsed,
		IPAddress:    meta.ClientIP,
		UserAgent:    meta.UserAgent,
		RequestData:  string(requestData),
		ResponseData: string(responseData),
	}

	if err := s.activity.LogRequest(ctx, &entry); err != nil {
		s.logger.Error("failed to write activity log", zap.Error(err))
		return 0
	}
	return entry.ID
}

// notify dispatches the webhook either inline or on a background goroutine.
// Background failures are still observable through the dispatcher's logging.
func (s *Service) notify(ctx context.Context, keyName string, created []models.CreatedPageSummary) {
	if !s.dispatcher.Configured() {
		return
	}

	if s.async {
		go s.dispatcher.Deliver(context.WithoutCancel(ctx), keyName, created)
		return
	}

	s.dispatcher.Deliver(ctx, keyName, created)
}
