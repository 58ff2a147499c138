// Package notify posts campaign events to an operator webhook. Delivery
// is best effort: a failed notification is logged, never an error for the
// caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
)

// EventType identifies the kind of notification.
type EventType string

const (
	EventRunSummary     EventType = "run_summary"
	EventInterviewAlert EventType = "interview_alert"
)

// Event is the webhook payload envelope.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Notifier delivers events to the configured webhook URL.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// New creates a Notifier with the given config.
func New(cfg config.NotifyConfig) *Notifier {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// RunFinished posts the run summary, then one interview alert per flagged
// reply. An unset webhook URL disables notifications entirely.
func (n *Notifier) RunFinished(ctx context.Context, summary *model.RunSummary) {
	if n.cfg.WebhookURL == "" {
		return
	}
	n.post(ctx, Event{
		Type:      EventRunSummary,
		Timestamp: time.Now().UTC(),
		Payload:   summary,
	})
	for _, alert := range summary.InterviewAlerts {
		n.post(ctx, Event{
			Type:      EventInterviewAlert,
			Timestamp: time.Now().UTC(),
			Payload:   alert,
		})
	}
}

// InterviewAlert posts a single interview alert, for signal handlers that
// learn of an interview outside a campaign run.
func (n *Notifier) InterviewAlert(ctx context.Context, alert model.InterviewAlert) {
	if n.cfg.WebhookURL == "" {
		return
	}
	n.post(ctx, Event{
		Type:      EventInterviewAlert,
		Timestamp: time.Now().UTC(),
		Payload:   alert,
	})
}

func (n *Notifier) post(ctx context.Context, event Event) {
	if err := n.sendWebhook(ctx, event); err != nil {
		zap.L().Error("notify: failed to send event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("notify: event sent", zap.String("type", string(event.Type)))
}

func (n *Notifier) sendWebhook(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
