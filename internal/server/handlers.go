package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagebuilder/api-server/internal/models"
	"github.com/pagebuilder/api-server/internal/pages"
)

// createPagesRequest is the bulk endpoint body.
type createPagesRequest struct {
	Pages []models.PageInput `json:"pages"`
}

// createPages handles POST /pagebuilder/v1/create-pages. Authentication and
// rate limiting already happened in the middleware; a malformed or empty
// batch is the only fatal error left, everything per-item is collected into
// the errors array of a 200 response.
func (s *Server) createPages(c *gin.Context) {
	start := time.Now()

	key := c.MustGet(apiKeyContextKey).(*models.APIKey)

	var req createPagesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Pages) == 0 {
		keyID := key.ID
		s.logRejected(c, &keyID, `The "pages" parameter is required and must be an array`, start)
		s.apiError(c, 400, "invalid_request", `The "pages" parameter is required and must be an array`)
		return
	}

	result := s.service.CreateBatch(c.Request.Context(), key, req.Pages, pages.RequestMeta{
		Endpoint:  c.Request.URL.Path,
		Method:    c.Request.Method,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.JSON(200, gin.H{
		"success": result.Success,
		"message": result.Message,
		"data": gin.H{
			"created_pages":    result.CreatedPages,
			"total_created":    result.TotalCreated,
			"total_requested":  result.TotalRequested,
			"errors":           result.Errors,
			"response_time_ms": result.ResponseTimeMS,
		},
	})
}
