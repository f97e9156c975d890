package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// BroadcastEventToTenant marshals a typed event and sends it to one tenant.
func (h *Hub) BroadcastEventToTenant(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
