package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pagebuilder/api-server/internal/auth"
	"github.com/pagebuilder/api-server/internal/models"
	"go.uber.org/zap"
)

const apiKeyContextKey = "api_key"

// loggerMiddleware logs HTTP requests
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware handles CORS
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range s.cfg.Security.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			}
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Authorization, X-API-Key")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// apiKeyAuthMiddleware is the request gate: kill switch, then key
// validation, then the rate limit. Every rejection is written to the
// activity trail before the error response goes out.
func (s *Server) apiKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if !s.cfg.Security.APIEnabled {
			s.logRejected(c, nil, "API access is currently disabled", start)
			s.apiError(c, 503, "api_disabled", "API access is currently disabled")
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		key, err := s.validator.Validate(c.Request.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingKey):
				s.logRejected(c, nil, "API key is required", start)
				s.apiError(c, 401, "missing_api_key", "API key is required. Please provide it in the X-API-Key header.")
			case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrExpiredKey):
				s.logRejected(c, nil, "Invalid or expired API key", start)
				s.apiError(c, 401, "invalid_api_key", "Invalid or expired API key")
			default:
				s.logger.Error("key validation failed", zap.Error(err))
				s.logRejected(c, nil, "Internal error during authentication", start)
				s.apiError(c, 500, "internal_error", "Internal error during authentication")
			}
			return
		}

		allowed, err := s.limiter.Allow(c.Request.Context(), key.ID)
		if err != nil {
			// Backend outage: the fail-open/closed policy is a deployment
			// choice; closed (deny) is the default.
			s.logger.Error("rate limit backend error",
				zap.Uint("key_id", key.ID),
				zap.Bool("fail_open", s.cfg.RateLimit.FailOpen),
				zap.Error(err))
			allowed = s.cfg.RateLimit.FailOpen
		}
		if !allowed {
			keyID := key.ID
			s.logRejected(c, &keyID, "Rate limit exceeded", start)
			s.apiError(c, 429, "rate_limit_exceeded", "Rate limit exceeded. Please try again later.")
			return
		}

		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// adminAuthMiddleware checks the admin JWT issued by /admin/login.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(401, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(s.cfg.Security.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			s.logger.Warn("invalid admin token", zap.String("client_ip", c.ClientIP()))
			c.JSON(401, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// apiError writes the stable error envelope and aborts the request.
func (s *Server) apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
		"data":    gin.H{"status": status},
	})
	c.Abort()
}

// logRejected records a terminal 4xx/5xx in the activity trail with enough
// context to reconstruct the failure.
func (s *Server) logRejected(c *gin.Context, keyID *uint, message string, start time.Time) {
	entry := models.ActivityLog{
		APIKeyID:     keyID,
		Endpoint:     c.Request.URL.Path,
		HTTPMethod:   c.Request.Method,
		Status:       models.ActivityFailed,
		ResponseTime: time.Since(start).Milliseconds(),
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		ErrorMessage: message,
	}
	if err := s.activity.LogRequest(c.Request.Context(), &entry); err != nil {
		s.logger.Error("failed to log rejected request", zap.Error(err))
	}
}
