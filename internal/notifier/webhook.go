package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/applyhook/internal/model"
)

// DeliveryHeader carries a stable per-application ID so receivers can drop
// repeated deliveries.
const DeliveryHeader = "X-Applyhook-Delivery"

// Ensure WebhookNotifier implements model.Notifier.
var _ model.Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier posts each payload as JSON to a fixed URL.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier returns a notifier that posts each payload to webhookURL.
func NewWebhookNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends one payload. A 429 is retried once after Retry-After; any other
// non-2xx status is an error.
func (w *WebhookNotifier) Notify(ctx context.Context, p model.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	deliveryID := DeliveryID(p.ApplyID)

	status, retryAfter, err := w.post(ctx, body, deliveryID)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		w.logger.Warn("webhook rate limited, retrying", "apply_id", p.ApplyID, "retry_after", retryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}

		status, _, err = w.post(ctx, body, deliveryID)
		if err != nil {
			return fmt.Errorf("post to webhook (retry): %w", err)
		}
		if status < 200 || status > 299 {
			return fmt.Errorf("webhook returned %d on retry", status)
		}
		return nil
	}

	if status < 200 || status > 299 {
		return fmt.Errorf("webhook returned %d", status)
	}
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte, deliveryID string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, deliveryID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to webhook: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// DeliveryID derives a name-based UUID from an application ID. The same
// application always yields the same delivery ID.
func DeliveryID(applyID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("applyhook:apply:"+applyID)).String()
}

// SendTestMessage sends a sample payload to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	email := "candidate@example.com"
	telegram := "@applyhook_test"
	return n.Notify(ctx, model.Payload{
		ApplyID:         "test-" + strconv.FormatInt(time.Now().Unix(), 10),
		UserName:        "Test Candidate",
		VacancyTitle:    "Test Notification",
		Experience:      4,
		Email:           &email,
		Telegram:        &telegram,
		Link:            "https://career.habr.com/applyhook_test",
		HabrProfileLink: "https://career.habr.com/applyhook_test",
		CoverLetter:     "This is a test message from applyhook.",
	})
}
