package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagebuilder/api-server/internal/auth"
	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pagebuilder/api-server/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8090,
			Mode:    "test",
			BaseURL: "http://example.com",
		},
		Security: config.SecurityConfig{
			AdminPassword: "hunter2",
			JWTSecret:     "test-jwt-secret",
			APIEnabled:    true,
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerHour: 5,
			Window:          time.Hour,
			Backend:         "memory",
		},
		Webhook: config.WebhookConfig{
			Timeout:     time.Second,
			MaxAttempts: 1,
			BackoffBase: time.Millisecond,
		},
	}
}

func testServer(t *testing.T, cfg *config.Config) (*Server, *store.KeyStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	srv, err := New(cfg, zap.NewNop(), db)
	require.NoError(t, err)
	return srv, store.NewKeyStore(db)
}

func seedActiveKey(t *testing.T, keys *store.KeyStore) (string, *models.APIKey) {
	t.Helper()
	secret, err := auth.GenerateSecret()
	require.NoError(t, err)

	key := &models.APIKey{
		Name:       "test-key",
		SecretHash: auth.HashSecret(secret),
		Preview:    auth.Preview(secret),
		Status:     models.KeyStatusActive,
	}
	require.NoError(t, keys.Create(context.Background(), key))
	return secret, key
}

func doJSON(srv *Server, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func pagesBody(titles ...string) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(titles))
	for _, title := range titles {
		items = append(items, map[string]interface{}{"title": title})
	}
	return map[string]interface{}{"pages": items}
}

func TestCreatePages_MissingKey(t *testing.T) {
	srv, _ := testServer(t, testConfig())

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", "", pagesBody("A"))

	assert.Equal(t, 401, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "missing_api_key", resp["code"])
	assert.Equal(t, float64(401), resp["data"].(map[string]interface{})["status"])
}

func TestCreatePages_InvalidKey(t *testing.T) {
	srv, keys := testServer(t, testConfig())
	seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", "spb_wrong", pagesBody("A"))

	assert.Equal(t, 401, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_api_key", resp["code"])
}

func TestCreatePages_APIDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Security.APIEnabled = false
	srv, keys := testServer(t, cfg)
	secret, _ := seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))

	assert.Equal(t, 503, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "api_disabled", resp["code"])
}

func TestCreatePages_RateLimitExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerHour = 2
	srv, keys := testServer(t, cfg)
	secret, _ := seedActiveKey(t, keys)

	for i := 0; i < 2; i++ {
		w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))
		assert.Equal(t, 200, w.Code, "request %d should pass the limiter", i+1)
	}

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))
	assert.Equal(t, 429, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "rate_limit_exceeded", resp["code"])
}

func TestCreatePages_EmptyBatch(t *testing.T) {
	srv, keys := testServer(t, testConfig())
	secret, _ := seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret,
		map[string]interface{}{"pages": []interface{}{}})

	assert.Equal(t, 400, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_request", resp["code"])
}

func TestCreatePages_Success(t *testing.T) {
	srv, keys := testServer(t, testConfig())
	secret, _ := seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("Home", "", "About"))

	require.Equal(t, 200, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			CreatedPages   []models.CreatedPageSummary `json:"created_pages"`
			TotalCreated   int                         `json:"total_created"`
			TotalRequested int                         `json:"total_requested"`
			Errors         []string                    `json:"errors"`
			ResponseTimeMS int64                       `json:"response_time_ms"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Data.TotalRequested)
	assert.Equal(t, 2, resp.Data.TotalCreated)
	require.Len(t, resp.Data.CreatedPages, 2)
	assert.Equal(t, "Home", resp.Data.CreatedPages[0].Title)
	assert.Equal(t, "http://example.com/pages/home", resp.Data.CreatedPages[0].URL)
	require.Len(t, resp.Data.Errors, 1)
	assert.Contains(t, resp.Data.Errors[0], "Page #1")
}

func TestCreatePages_KeyViaQueryParam(t *testing.T) {
	srv, keys := testServer(t, testConfig())
	secret, _ := seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages?api_key="+secret, "", pagesBody("Q"))
	assert.Equal(t, 200, w.Code)
}

func TestAdmin_LoginAndGenerateKey(t *testing.T) {
	srv, _ := testServer(t, testConfig())

	w := doJSON(srv, "POST", "/admin/login", "", map[string]string{"password": "wrong"})
	assert.Equal(t, 401, w.Code)

	w = doJSON(srv, "POST", "/admin/login", "", map[string]string{"password": "hunter2"})
	require.Equal(t, 200, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	// Generate a key through the admin API, then use it on the public API.
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]string{"name": "from-admin"})
	req := httptest.NewRequest("POST", "/admin/keys", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var created struct {
		APIKey string `json:"api_key"`
		KeyID  uint   `json:"key_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.APIKey)

	w = doJSON(srv, "POST", "/pagebuilder/v1/create-pages", created.APIKey, pagesBody("Via admin key"))
	assert.Equal(t, 200, w.Code)
}

func TestAdmin_ListKeysUsesSnakeCase(t *testing.T) {
	srv, keys := testServer(t, testConfig())
	seedActiveKey(t, keys)

	login := doJSON(srv, "POST", "/admin/login", "", map[string]string{"password": "hunter2"})
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginResp))

	req := httptest.NewRequest("GET", "/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"id"`)
	assert.Contains(t, body, `"created_at"`)
	assert.Contains(t, body, `"request_count"`)
	assert.NotContains(t, body, `"ID"`)
	assert.NotContains(t, body, `"CreatedAt"`)
	assert.NotContains(t, body, `"UpdatedAt"`)
	assert.NotContains(t, body, `"DeletedAt"`)
}

func TestAdmin_RequiresToken(t *testing.T) {
	srv, _ := testServer(t, testConfig())

	req := httptest.NewRequest("GET", "/admin/keys", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)

	req = httptest.NewRequest("GET", "/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestAdmin_RateLimitReset(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerHour = 1
	srv, keys := testServer(t, cfg)
	secret, key := seedActiveKey(t, keys)

	w := doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))
	require.Equal(t, 200, w.Code)
	w = doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))
	require.Equal(t, 429, w.Code)

	login := doJSON(srv, "POST", "/admin/login", "", map[string]string{"password": "hunter2"})
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginResp))

	req := httptest.NewRequest("POST", fmt.Sprintf("/admin/keys/%d/rate-limit/reset", key.ID), nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	w = doJSON(srv, "POST", "/pagebuilder/v1/create-pages", secret, pagesBody("A"))
	assert.Equal(t, 200, w.Code, "reset should clear the window immediately")
}

func TestRejectedRequestsAreLogged(t *testing.T) {
	srv, _ := testServer(t, testConfig())

	doJSON(srv, "POST", "/pagebuilder/v1/create-pages", "", pagesBody("A"))

	logs, err := srv.activity.ListLogs(context.Background(), store.ActivityFilter{Status: models.ActivityFailed})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "/pagebuilder/v1/create-pages", logs[0].Endpoint)
	assert.Equal(t, "POST", logs[0].HTTPMethod)
	assert.NotEmpty(t, logs[0].ErrorMessage)
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(t, testConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
