package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookNotifier posts each domain event as JSON to a backend endpoint,
// with an optional bearer token. Delivery is best-effort.
type WebhookNotifier struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewWebhookNotifier(endpoint, token string) *WebhookNotifier {
	return &WebhookNotifier{Endpoint: endpoint, Token: token, Client: &http.Client{Timeout: 3 * time.Second}}
}

// OnEvent implements events.Listener.
func (w *WebhookNotifier) OnEvent(kind, message string) {
	b, _ := json.Marshal(Notification{Event: kind, Message: message})
	req, err := http.NewRequest(http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	if resp, err := w.Client.Do(req); err == nil {
		resp.Body.Close()
	}
}
