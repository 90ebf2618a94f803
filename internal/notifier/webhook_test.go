package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/amishk599/applyhook/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func samplePayload(applyID string) model.Payload {
	return model.Payload{
		ApplyID:         applyID,
		UserName:        "John Doe",
		VacancyTitle:    "Go Developer",
		Experience:      4,
		Email:           strPtr("john@example.com"),
		Link:            "https://career.habr.com/jdoe",
		HabrProfileLink: "https://career.habr.com/jdoe",
	}
}

func TestWebhookNotifier_PostsPayload(t *testing.T) {
	var body []byte
	var contentType, delivery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		delivery = r.Header.Get(DeliveryHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), samplePayload("501")); err != nil {
		t.Fatalf("Notify() = %v, want nil", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if delivery != DeliveryID("501") {
		t.Errorf("delivery header = %q, want %q", delivery, DeliveryID("501"))
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	want := map[string]any{
		"user_name":         "John Doe",
		"vacancy_title":     "Go Developer",
		"experience":        float64(4),
		"email":             "john@example.com",
		"telegram":          nil,
		"link":              "https://career.habr.com/jdoe",
		"habr_profile_link": "https://career.habr.com/jdoe",
	}
	if len(got) != len(want) {
		t.Errorf("payload keys = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestWebhookNotifier_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), samplePayload("1")); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), samplePayload("1")); err == nil {
		t.Error("expected error for 500 response, got nil")
	}
}

func TestWebhookNotifier_RateLimited(t *testing.T) {
	var calls atomic.Int32
	var deliveries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries = append(deliveries, r.Header.Get(DeliveryHeader))
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), samplePayload("7")); err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
	if len(deliveries) != 2 || deliveries[0] != deliveries[1] {
		t.Errorf("retry must reuse the delivery id, got %v", deliveries)
	}
}

func TestWebhookNotifier_RateLimitedTwice(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client(), discardLogger())
	if err := n.Notify(context.Background(), samplePayload("7")); err == nil {
		t.Error("expected error when retry is also rate limited")
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected exactly one retry, got %d calls", c)
	}
}

func TestDeliveryID_Stable(t *testing.T) {
	if DeliveryID("42") != DeliveryID("42") {
		t.Error("expected the same delivery id for the same apply id")
	}
	if DeliveryID("42") == DeliveryID("43") {
		t.Error("expected different delivery ids for different apply ids")
	}
}

func TestSendTestMessage(t *testing.T) {
	var got model.Payload
	n := notifierFunc(func(_ context.Context, p model.Payload) error {
		got = p
		return nil
	})
	if err := SendTestMessage(context.Background(), n); err != nil {
		t.Fatalf("SendTestMessage() = %v", err)
	}
	if got.UserName == "" || got.VacancyTitle == "" || got.Email == nil {
		t.Errorf("unexpected test payload: %+v", got)
	}
}

type notifierFunc func(ctx context.Context, p model.Payload) error

func (f notifierFunc) Notify(ctx context.Context, p model.Payload) error { return f(ctx, p) }
