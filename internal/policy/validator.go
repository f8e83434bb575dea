package policy

import (
	"encoding/json"

	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// rawPayload mirrors the fixed wire schema. Pointers distinguish missing keys
// from zero values; confidence additionally distinguishes JSON null.
type rawPayload struct {
	Response    *string          `json:"response"`
	Confidence  *json.RawMessage `json:"confidence"`
	Handoff     *bool            `json:"handoff"`
	Reason      *string          `json:"reason"`
	PolicyFlags *[]string        `json:"policy_flags"`
	ToolError   bool             `json:"tool_error"`
}

// ValidateResponse checks the opaque automation output against the fixed
// schema and returns a normalized payload. Schema failures map to the
// recoverable "fallback" outcome, distinct from a backend connectivity error.
func ValidateResponse(raw []byte) (*Payload, error) {
	var rp rawPayload
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, apperrors.NewSchemaValidation("response is not valid JSON", map[string]any{"error": err.Error()})
	}
	if rp.Response == nil {
		return nil, missingKey("response")
	}
	if rp.Handoff == nil {
		return nil, missingKey("handoff")
	}
	if rp.Reason == nil {
		return nil, missingKey("reason")
	}
	if rp.PolicyFlags == nil {
		return nil, missingKey("policy_flags")
	}
	if rp.Confidence == nil {
		return nil, missingKey("confidence")
	}

	confidence, err := parseConfidence(*rp.Confidence)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Response:    *rp.Response,
		Confidence:  confidence,
		Handoff:     *rp.Handoff,
		Reason:      NormalizeReason(*rp.Reason),
		PolicyFlags: NormalizeFlags(*rp.PolicyFlags),
		ToolError:   rp.ToolError,
	}, nil
}

// parseConfidence accepts a number in [0,1] or JSON null.
func parseConfidence(raw json.RawMessage) (*float64, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, apperrors.NewSchemaValidation("confidence must be a number", map[string]any{"key": "confidence"})
	}
	if value < 0 || value > 1 {
		return nil, apperrors.NewSchemaValidation("confidence out of range [0,1]", map[string]any{
			"key":   "confidence",
			"value": value,
		})
	}
	return &value, nil
}

func missingKey(key string) error {
	return apperrors.NewSchemaValidation("missing required key", map[string]any{"key": key})
}
