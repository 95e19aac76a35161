package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookPostsEventJSON(t *testing.T) {
	var got Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "secret")
	n.OnEvent("RideRequested", "Ride RIDE_1 requested by rider R1")

	if got.Event != "RideRequested" || got.Message == "" {
		t.Fatalf("payload=%+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("auth=%q", auth)
	}
}

func TestWebhookSwallowsDeliveryFailures(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1/unreachable", "")
	// must not panic or block past the client timeout
	n.OnEvent("PaymentCompleted", "Payment of Rs.140.00 completed for ride RIDE_1")
}
