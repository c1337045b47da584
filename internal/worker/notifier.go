package worker

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/h51assets/h51/internal/domain"

	"github.com/h51assets/h51/infrastructure/logging"
	"github.com/h51assets/h51/infrastructure/metrics"
	infraratelimit "github.com/h51assets/h51/infrastructure/ratelimit"
	"github.com/h51assets/h51/infrastructure/resilience"
)

// webhookBody is the JSON payload POSTed to a task's notification_url.
type webhookBody struct {
	TaskID    string          `json:"task_id"`
	AccountID string          `json:"account_id"`
	AssetID   string          `json:"asset_id"`
	Type      domain.EventType `json:"type"`
	Reason    string          `json:"reason,omitempty"`
}

// Notifier delivers best-effort, unsigned-by-default-reader webhook
// notifications for completed tasks, signing each body with the account's
// API key so the receiver can verify authenticity, throttling outbound
// traffic per destination host via infrastructure/ratelimit's in-process
// token bucket so one slow or hostile receiver cannot starve the worker's
// notification goroutines, and tripping a per-host circuit breaker once a
// receiver fails repeatedly so the limiter doesn't keep queuing doomed
// requests behind it (§11).
type Notifier struct {
	client  *http.Client
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	perHost map[string]*hostClient
}

type hostClient struct {
	limited *infraratelimit.RateLimitedClient
	breaker *resilience.CircuitBreaker
}

// NewNotifier constructs a Notifier using httpClient (or http.DefaultClient
// if nil) as the underlying transport for each per-host limiter.
func NewNotifier(httpClient *http.Client, logger *logging.Logger, m *metrics.Metrics) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		client:  httpClient,
		logger:  logger,
		metrics: m,
		perHost: map[string]*hostClient{},
	}
}

func (n *Notifier) clientFor(host string) *hostClient {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.perHost[host]; ok {
		return c
	}
	cfg := infraratelimit.DefaultConfig()
	cfg.RequestsPerSecond = 5
	cfg.Burst = 10
	c := &hostClient{
		limited: infraratelimit.NewRateLimitedClient(n.client, cfg),
		breaker: resilience.New(resilience.DefaultConfig()),
	}
	n.perHost[host] = c
	return c
}

// Notify POSTs task's terminal event to its notification_url, signing the
// body with the owning account's apiKey. Delivery is best-effort: failures
// are logged, never retried, and never surfaced to the pipeline's own error
// handling.
func (n *Notifier) Notify(ctx context.Context, task *domain.Task, ev domain.TaskEvent, apiKey string) {
	body := webhookBody{
		TaskID:    task.ID,
		AccountID: task.AccountID,
		AssetID:   task.AssetID,
		Type:      ev.Type,
		Reason:    ev.Reason,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		n.logger.LogWebhookDelivery(ctx, task.NotificationURL, 0, err)
		return
	}

	u, err := url.Parse(task.NotificationURL)
	if err != nil {
		n.logger.LogWebhookDelivery(ctx, task.NotificationURL, 0, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.NotificationURL, bytes.NewReader(encoded))
	if err != nil {
		n.logger.LogWebhookDelivery(ctx, task.NotificationURL, 0, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-H51-Timestamp", timestamp)
	req.Header.Set("X-H51-Signature", sign(timestamp, encoded, apiKey))

	hc := n.clientFor(u.Host)
	var resp *http.Response
	breakerErr := hc.breaker.Execute(ctx, func() error {
		var doErr error
		resp, doErr = hc.limited.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
		}
		return nil
	})
	if breakerErr != nil {
		n.logger.LogWebhookDelivery(ctx, task.NotificationURL, 0, breakerErr)
		n.metrics.RecordWebhookDelivery("asset_worker", "error")
		return
	}
	defer resp.Body.Close()

	n.logger.LogWebhookDelivery(ctx, task.NotificationURL, resp.StatusCode, nil)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n.metrics.RecordWebhookDelivery("asset_worker", "delivered")
	} else {
		n.metrics.RecordWebhookDelivery("asset_worker", "rejected")
	}
}

// sign computes the hex SHA-1 digest of timestamp || body || apiKey, the
// signature scheme a receiver uses to authenticate the webhook (§4.6/§11).
func sign(timestamp string, body []byte, apiKey string) string {
	h := sha1.New()
	h.Write([]byte(timestamp))
	h.Write(body)
	h.Write([]byte(apiKey))
	return hex.EncodeToString(h.Sum(nil))
}
