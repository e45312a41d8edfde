package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/types"
)

// WebhookSink POSTs events to an external webhook endpoint. Delivery is
// asynchronous and best-effort: failures are logged and dropped, never
// surfaced to the publishing component.
type WebhookSink struct {
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// NewWebhookSink creates a sink for the given endpoint URL
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url: url,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.WithComponent("webhook"),
	}
}

func (w *WebhookSink) DeploymentCreated(deploymentID string) {
	w.post(&Event{
		Type:     EventDeploymentCreated,
		Metadata: map[string]string{"deployment_id": deploymentID},
	})
}

func (w *WebhookSink) DeploymentStatusChange(deploymentID string, oldStatus, newStatus types.DeploymentStatus) {
	w.post(&Event{
		Type: EventDeploymentStatusChanged,
		Metadata: map[string]string{
			"deployment_id": deploymentID,
			"old_status":    string(oldStatus),
			"new_status":    string(newStatus),
		},
	})
}

func (w *WebhookSink) Alert(kind, severity, message string, metadata map[string]string) {
	md := map[string]string{"kind": kind, "severity": severity}
	for k, v := range metadata {
		md[k] = v
	}
	w.post(&Event{
		Type:     EventAlert,
		Message:  message,
		Metadata: md,
	})
}

// post delivers one event in the background
func (w *WebhookSink) post(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to encode webhook event")
			return
		}

		resp, err := w.http.Post(w.url, "application/json", bytes.NewReader(data))
		if err != nil {
			w.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("webhook delivery failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			w.logger.Warn().
				Int("status", resp.StatusCode).
				Str("type", string(event.Type)).
				Msg("webhook endpoint rejected event")
		}
	}()
}
