package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/config"
	"github.com/spec-kit/conversation-orchestrator/internal/events"
)

// NotificationService forwards externally visible conversation events to the
// configured webhook. Delivery is fire-and-forget: a failed POST is logged and
// never affects the transition that produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *http.Client
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	timeout := time.Duration(cfg.WebhookTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
	}
}

// RegisterHandlers subscribes to the externally visible event types.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.ExternallyVisible() {
		n.dispatcher.Subscribe(eventType, n.handleEvent)
	}
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("conversation event",
		zap.String("event_type", string(event.Type)),
		zap.String("conversation_id", event.ConversationID))
	n.sendWebhook(event)
	return nil
}

// sendWebhook posts the event asynchronously so a slow subscriber never holds
// up the publishing path.
func (n *NotificationService) sendWebhook(event events.Event) {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return
	}

	go func() {
		body, err := json.Marshal(event)
		if err != nil {
			n.logger.Warn("webhook payload marshal failed", zap.Error(err))
			return
		}
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			n.logger.Warn("webhook request build failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Warn("webhook delivery failed",
				zap.String("event_type", string(event.Type)), zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			n.logger.Warn("webhook rejected",
				zap.String("event_type", string(event.Type)),
				zap.Int("status", resp.StatusCode))
		}
	}()
}
