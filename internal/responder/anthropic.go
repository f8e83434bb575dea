package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spec-kit/conversation-orchestrator/internal/config"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

const systemPrompt = `You are a customer support agent. Reply with a single JSON object
containing exactly these keys:
  "response"     string, your reply to the customer
  "confidence"   number between 0 and 1, or null when you cannot estimate it
  "handoff"      boolean, true when a human should take over
  "reason"       string, short snake_case reason when handoff is true, else empty
  "policy_flags" array of strings, policy categories the message touched
Optionally include "tool_error" (boolean), true when a tool call failed.
Output the JSON object only, with no surrounding prose.`

// AnthropicBackend drives the Anthropic Messages API and returns the model's
// text output as raw payload bytes.
type AnthropicBackend struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropicBackend builds the backend from responder configuration.
func NewAnthropicBackend(cfg config.ResponderConfig) *AnthropicBackend {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicBackend{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout(),
	}
}

// Invoke sends one conversation turn and returns the raw model output. API and
// transport failures map to CONNECTIVITY so callers treat them as recoverable.
func (b *AnthropicBackend) Invoke(ctx context.Context, cc ConversationContext) ([]byte, error) {
	if cc.Conversation == nil {
		return nil, apperrors.NewValidationError("conversation required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.buildPrompt(cc))),
		},
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apperrors.NewConnectivity(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return nil, apperrors.NewSchemaValidation("backend returned no text content", map[string]any{
			"conversation_id": cc.Conversation.ID,
		})
	}
	return []byte(text.String()), nil
}

func (b *AnthropicBackend) buildPrompt(cc ConversationContext) string {
	var sb strings.Builder
	conv := cc.Conversation
	fmt.Fprintf(&sb, "Conversation %s on channel %q, priority %s.\n", conv.ID, conv.Channel, conv.Priority)
	if conv.Subject != "" {
		fmt.Fprintf(&sb, "Subject: %s\n", conv.Subject)
	}
	if len(cc.Handoffs) > 0 {
		sb.WriteString("Earlier handoff reasons (a human already reviewed these):\n")
		for _, h := range cc.Handoffs {
			fmt.Fprintf(&sb, "- %s\n", h.ReasonCode)
		}
	}
	sb.WriteString("Produce the next reply.")
	return sb.String()
}
