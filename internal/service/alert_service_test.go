package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func testAlert() domain.RollbackAlert {
	return domain.RollbackAlert{
		OrderRef:    "ORD-1",
		Operation:   "transfer_compensation",
		Cause:       "disk full",
		FailedSteps: []string{"refund_buyer"},
		OccurredAt:  time.Now().UTC(),
	}
}

func TestWebhookAlertNotifier_DeliversSignedPayload(t *testing.T) {
	var (
		mu        sync.Mutex
		body      []byte
		signature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookAlertNotifier(srv.URL, "ops-secret", 0, srv.Client(), newTestLogger())
	require.NoError(t, n.NotifyRollbackFailed(context.Background(), testAlert()))
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, body)
	assert.True(t, VerifySignature("ops-secret", body, signature))
	assert.False(t, VerifySignature("other-secret", body, signature))

	var payload AlertPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, EventRollbackFailed, payload.EventType)
	assert.Equal(t, "ORD-1", payload.Data.OrderRef)
	assert.Equal(t, []string{"refund_buyer"}, payload.Data.FailedSteps)
}

func TestWebhookAlertNotifier_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookAlertNotifier(srv.URL, "s", -1, srv.Client(), newTestLogger())
	n.intervals = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond}

	require.NoError(t, n.NotifyRollbackFailed(context.Background(), testAlert()))
	n.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookAlertNotifier_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		},
	}

	n := NewWebhookAlertNotifier("https://ops.example.com/hook", "s", 2, client, newTestLogger())
	require.Len(t, n.intervals, 2)
	n.intervals = []time.Duration{time.Millisecond, time.Millisecond}

	require.NoError(t, n.NotifyRollbackFailed(context.Background(), testAlert()))
	n.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookAlertNotifier_NoURL(t *testing.T) {
	client := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			t.Fatal("should not be called")
			return nil, nil
		},
	}

	n := NewWebhookAlertNotifier("", "s", 0, client, newTestLogger())
	assert.NoError(t, n.NotifyRollbackFailed(context.Background(), testAlert()))
	n.Wait()
}

func TestSignPayload_Deterministic(t *testing.T) {
	body := []byte(`{"event_type":"ROLLBACK_FAILED"}`)
	a := signPayload("k", body)
	assert.Equal(t, a, signPayload("k", body))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, signPayload("k2", body))
}
