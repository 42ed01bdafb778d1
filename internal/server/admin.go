package server

import (
	"crypto/subtle"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pagebuilder/api-server/internal/auth"
	"github.com/pagebuilder/api-server/internal/models"
	"github.com/pagebuilder/api-server/internal/store"
	"go.uber.org/zap"
)

const adminTokenDuration = 24 * time.Hour

func (s *Server) adminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.Security.AdminPassword)) != 1 {
		s.logger.Warn("failed admin login attempt", zap.String("client_ip", c.ClientIP()))
		c.JSON(401, gin.H{"error": "Invalid password"})
		return
	}

	claims := jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(adminTokenDuration).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.Security.JWTSecret))
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info("admin logged in")
	c.JSON(200, gin.H{"success": true, "token": token})
}

// ==================== Key management ====================

func (s *Server) listKeys(c *gin.Context) {
	keys, err := s.keys.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to list keys"})
		return
	}
	c.JSON(200, gin.H{"data": keys})
}

// generateKey mints a key and returns the raw secret exactly once.
func (s *Server) generateKey(c *gin.Context) {
	var req struct {
		Name      string     `json:"name" binding:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate key"})
		return
	}

	key := models.APIKey{
		Name:       req.Name,
		SecretHash: auth.HashSecret(secret),
		Preview:    auth.Preview(secret),
		Status:     models.KeyStatusActive,
		ExpiresAt:  req.ExpiresAt,
	}

	if err := s.keys.Create(c.Request.Context(), &key); err != nil {
		c.JSON(500, gin.H{"error": "Failed to store key"})
		return
	}

	s.logger.Info("API key generated",
		zap.Uint("key_id", key.ID),
		zap.String("name", key.Name))

	c.JSON(200, gin.H{
		"success": true,
		"api_key": secret,
		"key_id":  key.ID,
		"message": "API key generated successfully. Save it now; it cannot be retrieved again.",
	})
}

func (s *Server) revokeKey(c *gin.Context) {
	id, ok := s.keyIDParam(c)
	if !ok {
		return
	}

	if err := s.keys.Revoke(c.Request.Context(), id); err != nil {
		c.JSON(404, gin.H{"error": "Key not found"})
		return
	}

	s.logger.Info("API key revoked", zap.Uint("key_id", id))
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) deleteKey(c *gin.Context) {
	id, ok := s.keyIDParam(c)
	if !ok {
		return
	}

	if err := s.keys.Delete(c.Request.Context(), id); err != nil {
		c.JSON(500, gin.H{"error": "Failed to delete key"})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// ==================== Rate limit ====================

func (s *Server) rateLimitStatus(c *gin.Context) {
	id, ok := s.keyIDParam(c)
	if !ok {
		return
	}

	remaining, err := s.limiter.Remaining(c.Request.Context(), id)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to read rate limit"})
		return
	}

	c.JSON(200, gin.H{
		"key_id":    id,
		"limit":     s.cfg.RateLimit.RequestsPerHour,
		"remaining": remaining,
	})
}

func (s *Server) rateLimitReset(c *gin.Context) {
	id, ok := s.keyIDParam(c)
	if !ok {
		return
	}

	if err := s.limiter.Reset(c.Request.Context(), id); err != nil {
		c.JSON(500, gin.H{"error": "Failed to reset rate limit"})
		return
	}

	s.logger.Info("rate limit reset", zap.Uint("key_id", id))
	c.JSON(200, gin.H{"success": true})
}

// ==================== Activity trail ====================

func (s *Server) listActivity(c *gin.Context) {
	filter := store.ActivityFilter{
		Status: c.Query("status"),
	}
	if v := c.Query("api_key_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			filter.APIKeyID = uint(id)
		}
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}

	logs, err := s.activity.ListLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to list activity"})
		return
	}
	c.JSON(200, gin.H{"data": logs})
}

func (s *Server) listCreatedPages(c *gin.Context) {
	createdPages, err := s.activity.ListCreatedPages(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to list created pages"})
		return
	}
	c.JSON(200, gin.H{"data": createdPages})
}

func (s *Server) keyIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid key id"})
		return 0, false
	}
	return uint(id), true
}
