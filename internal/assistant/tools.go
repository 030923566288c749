package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/visaform/checkout-billing/internal/capability"
	"github.com/visaform/checkout-billing/internal/form"
)

// RegisterFormTools wires the form-state capabilities into the registry.
// These are the operations the chat assistant may perform against an
// applicant's in-progress form.
func RegisterFormTools(reg *capability.Registry, store *form.Store) error {
	tools := []capability.Capability{
		{
			Name:        "list_fields",
			Description: "List all form fields and their current values for a session",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"sessionId":{"type":"string"}},"required":["sessionId"]}`),
			Handler:     listFields(store),
		},
		{
			Name:        "read_field",
			Description: "Read the current value of one form field",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"sessionId":{"type":"string"},"field":{"type":"string"}},"required":["sessionId","field"]}`),
			Handler:     readField(store),
		},
		{
			Name:        "update_field",
			Description: "Set the value of one form field",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"sessionId":{"type":"string"},"field":{"type":"string"},"value":{"type":"string"}},"required":["sessionId","field","value"]}`),
			Handler:     updateField(store),
		},
	}
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func listFields(store *form.Store) capability.Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var in struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(input, &in); err != nil || in.SessionID == "" {
			return nil, fmt.Errorf("%w: sessionId is required", capability.ErrBadInput)
		}
		fields, err := store.Fields(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"fields": fields}, nil
	}
}

func readField(store *form.Store) capability.Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var in struct {
			SessionID string `json:"sessionId"`
			Field     string `json:"field"`
		}
		if err := json.Unmarshal(input, &in); err != nil || in.SessionID == "" || in.Field == "" {
			return nil, fmt.Errorf("%w: sessionId and field are required", capability.ErrBadInput)
		}
		value, exists, err := store.Field(ctx, in.SessionID, in.Field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"field": in.Field, "value": value, "exists": exists}, nil
	}
}

func updateField(store *form.Store) capability.Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var in struct {
			SessionID string  `json:"sessionId"`
			Field     string  `json:"field"`
			Value     *string `json:"value"`
		}
		if err := json.Unmarshal(input, &in); err != nil || in.SessionID == "" || in.Field == "" || in.Value == nil {
			return nil, fmt.Errorf("%w: sessionId, field and value are required", capability.ErrBadInput)
		}
		if err := store.SetField(ctx, in.SessionID, in.Field, *in.Value); err != nil {
			return nil, err
		}
		return map[string]any{"field": in.Field, "value": *in.Value}, nil
	}
}
