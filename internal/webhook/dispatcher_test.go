package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDispatcher(url string) *Dispatcher {
	return NewDispatcher(config.WebhookConfig{
		URL:         url,
		Secret:      "test-secret",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
	}, zap.NewNop())
}

func somePages() []models.CreatedPageSummary {
	return []models.CreatedPageSummary{
		{ID: 1, Title: "Home", URL: "http://example.com/pages/home", Status: "publish"},
		{ID: 2, Title: "About", URL: "http://example.com/pages/about", Status: "draft"},
	}
}

func TestDeliver_NotConfigured(t *testing.T) {
	d := testDispatcher("")

	res := d.Deliver(context.Background(), "key", somePages())

	assert.False(t, res.Configured)
	assert.False(t, res.Delivered)
	assert.Equal(t, 0, res.Attempts)
}

func TestDeliver_SuccessFirstTry(t *testing.T) {
	var attempts int32
	var received Payload
	var receivedSig string
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		receivedSig = r.Header.Get("X-Webhook-Signature")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "PageBuilder-Webhook/1.0", r.Header.Get("User-Agent"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		receivedBody = body
		json.Unmarshal(body, &received)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	res := d.Deliver(context.Background(), "deploy-bot", somePages())

	assert.True(t, res.Delivered)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.LastError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	assert.Equal(t, EventResourcesCreated, received.Event)
	assert.Equal(t, "deploy-bot", received.APIKeyName)
	assert.Equal(t, 2, received.TotalPages)
	assert.Len(t, received.Pages, 2)
	assert.NotEmpty(t, received.RequestID)
	assert.Equal(t, "req_", received.RequestID[:4])

	// Receiver-side round trip: the signature verifies over the exact bytes
	// that arrived.
	assert.True(t, d.VerifySignature(receivedBody, receivedSig))
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	res := d.Deliver(context.Background(), "key", somePages())

	assert.True(t, res.Delivered)
	assert.Equal(t, 2, res.Attempts, "success on the second try must stop the retry loop")
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDeliver_ExhaustsAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "upstream boom", 500)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL)
	res := d.Deliver(context.Background(), "key", somePages())

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Contains(t, res.LastError, "HTTP 500")
	assert.Contains(t, res.LastError, "upstream boom")
}

func TestDeliver_BackoffIsExponential(t *testing.T) {
	base := 50 * time.Millisecond
	d := NewDispatcher(config.WebhookConfig{
		URL:         "", // set below
		Secret:      "s",
		Timeout:     time.Second,
		MaxAttempts: 3,
		BackoffBase: base,
	}, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()
	d.url = srv.URL

	start := time.Now()
	res := d.Deliver(context.Background(), "key", somePages())
	elapsed := time.Since(start)

	assert.False(t, res.Delivered)
	// base + 2*base between the three attempts
	assert.GreaterOrEqual(t, elapsed, 3*base)
	assert.Less(t, elapsed, 10*base)
}

func TestDeliver_NetworkErrorIsRetryable(t *testing.T) {
	// A closed server produces a connection error on every attempt.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := testDispatcher(url)
	res := d.Deliver(context.Background(), "key", somePages())

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.NotEmpty(t, res.LastError)
}

func TestSignAndVerify(t *testing.T) {
	d := testDispatcher("http://example.com")

	payload := []byte(`{"event":"resources_created","total_pages":1}`)
	sig := d.Sign(payload)
	require.NotEmpty(t, sig)

	assert.True(t, d.VerifySignature(payload, sig))

	// Flipping any byte of the payload or the signature must fail.
	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0x01
	assert.False(t, d.VerifySignature(tampered, sig))

	badSig := []byte(sig)
	badSig[0] ^= 0x01
	assert.False(t, d.VerifySignature(payload, string(badSig)))

	other := testDispatcher("http://example.com")
	other.secret = "different-secret"
	assert.False(t, other.VerifySignature(payload, sig))
}
