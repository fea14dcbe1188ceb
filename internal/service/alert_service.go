package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"marketplace-wallet/internal/core/domain"

	"github.com/rs/zerolog"
)

// alertRetryIntervals are the waits between delivery attempts.
var alertRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// EventRollbackFailed is the only alert event type.
const EventRollbackFailed = "ROLLBACK_FAILED"

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Wallet-Signature"

// AlertPayload is the JSON body posted to the operator webhook.
type AlertPayload struct {
	EventType string               `json:"event_type"`
	Data      domain.RollbackAlert `json:"data"`
	Timestamp int64                `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookAlertNotifier implements ports.AlertNotifier by posting signed
// alerts to an operator webhook in the background.
type WebhookAlertNotifier struct {
	url        string
	secret     string
	httpClient HTTPClient
	intervals  []time.Duration
	log        zerolog.Logger
	wg         sync.WaitGroup
}

// NewWebhookAlertNotifier creates a notifier. An empty url only logs alerts.
// maxRetries caps the retry schedule; a negative value keeps all of it.
func NewWebhookAlertNotifier(url, secret string, maxRetries int, httpClient HTTPClient, log zerolog.Logger) *WebhookAlertNotifier {
	intervals := alertRetryIntervals
	if maxRetries >= 0 && maxRetries < len(intervals) {
		intervals = intervals[:maxRetries]
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookAlertNotifier{
		url:        url,
		secret:     secret,
		httpClient: httpClient,
		intervals:  intervals,
		log:        log,
	}
}

// NotifyRollbackFailed queues alert for delivery and returns immediately.
func (n *WebhookAlertNotifier) NotifyRollbackFailed(ctx context.Context, alert domain.RollbackAlert) error {
	if n.url == "" {
		n.log.Debug().Str("order_ref", alert.OrderRef).Msg("alert: no webhook URL configured, skipping")
		return nil
	}

	body, err := json.Marshal(AlertPayload{
		EventType: EventRollbackFailed,
		Data:      alert,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetries(body, alert.OrderRef)
	}()
	return nil
}

// Wait blocks until queued deliveries have finished.
func (n *WebhookAlertNotifier) Wait() {
	n.wg.Wait()
}

func (n *WebhookAlertNotifier) deliverWithRetries(body []byte, orderRef string) {
	signature := signPayload(n.secret, body)

	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			time.Sleep(n.intervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			n.log.Error().Err(err).Str("order_ref", orderRef).Msg("alert: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SignatureHeader, signature)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			n.log.Warn().Err(err).Str("order_ref", orderRef).Int("attempt", attempt+1).Msg("alert: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.log.Info().Str("order_ref", orderRef).Int("attempt", attempt+1).Msg("alert: delivered")
			return
		}
		n.log.Warn().Str("order_ref", orderRef).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("alert: non-2xx response, retrying")
	}

	n.log.Error().Str("order_ref", orderRef).Bool("manual_intervention", true).Msg("alert: all retry attempts exhausted")
}

// signPayload returns the lowercase hex HMAC-SHA256 of body.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body, in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signPayload(secret, body)), []byte(signature))
}
