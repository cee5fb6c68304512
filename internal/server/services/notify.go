package services

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/netx"
)

// Notifier delivers a plain-text message to an address. It fails the caller
// only on transport errors.
type Notifier interface {
	Send(ctx context.Context, address, text string) error
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) Send(ctx context.Context, address, text string) error {
	n.logger.Info(ctx, "notification", "to", address, "text", text)
	return nil
}

// WebhookNotifier posts each message as JSON {"to","text"} to a relay that
// owns the actual delivery.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger logging.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger logging.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "notifier"),
	}
}

type webhookMessage struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (n *WebhookNotifier) Send(ctx context.Context, address, text string) error {
	if err := netx.PostJSON(ctx, n.client, n.url, webhookMessage{To: address, Text: text}); err != nil {
		n.logger.Error(ctx, "notification failed", "to", address, "error", err)
		return err
	}
	return nil
}
