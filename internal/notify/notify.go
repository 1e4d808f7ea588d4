// Package notify delivers pipeline events to an external webhook so
// downstream systems (CRM sync, Slack relays) can react without polling.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventLeadQualified  EventType = "lead.qualified"
	EventBatchCompleted EventType = "batch.completed"
)

// Event is a single webhook payload.
type Event struct {
	Type      EventType      `json:"type"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier posts pipeline events to a configured webhook URL. Delivery is
// best-effort: failures are logged, never propagated, so a dead webhook
// cannot stall processing.
type Notifier struct {
	url    string
	client *http.Client
}

// New creates a Notifier. An empty webhook URL disables delivery entirely.
func New(cfg config.NotifyConfig) *Notifier {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

// LeadQualified emits a lead.qualified event for an assignment that entered
// the qualified bucket.
func (n *Notifier) LeadQualified(ctx context.Context, lead *model.Lead, a *model.Assignment) {
	n.send(ctx, Event{
		Type:     EventLeadQualified,
		TenantID: lead.TenantID,
		Details: map[string]any{
			"lead_id":       lead.ID,
			"assignment_id": a.ID,
			"icp_id":        a.ICPID,
			"email":         lead.Email,
			"score":         a.Score,
		},
		Timestamp: time.Now().UTC(),
	})
}

// BatchCompleted emits a batch.completed event with the run's summary counts.
func (n *Notifier) BatchCompleted(ctx context.Context, tenantID string, summary *model.BatchSummary) {
	n.send(ctx, Event{
		Type:     EventBatchCompleted,
		TenantID: tenantID,
		Details: map[string]any{
			"total":          summary.Total,
			"processed":      summary.Processed,
			"qualified":      summary.Qualified,
			"pending_review": summary.PendingReview,
			"rejected":       summary.Rejected,
			"duplicates":     summary.Duplicates,
			"failed":         summary.Failed,
			"total_cost_usd": summary.TotalCostUSD,
		},
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) send(ctx context.Context, event Event) {
	if n == nil || n.url == "" {
		return
	}
	if err := n.post(ctx, event); err != nil {
		zap.L().Warn("notify: webhook delivery failed",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("notify: event sent", zap.String("type", string(event.Type)))
}

func (n *Notifier) post(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
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
