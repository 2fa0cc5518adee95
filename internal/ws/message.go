package ws

import (
	"encoding/json"
	"fmt"

	"quillboard/api/internal/store"
)

// Inbound message types accepted from clients.
const (
	msgOperation       = "operation"
	msgCursorUpdate    = "cursor_update"
	msgSelectionUpdate = "selection_update"
	msgPresence        = "presence"
	msgHeartbeat       = "heartbeat"
)

// Outbound frame types pushed to clients.
const (
	frameInitialState   = "initial_state"
	frameOperation      = "operation"
	frameCursorPosition = "cursor_position"
	frameSelectionRange = "selection_range"
	framePresenceUpdate = "presence_update"
	frameError          = "error"
)

// envelope carries only the discriminator; the payload is decoded in a
// second pass once the type is known.
type envelope struct {
	Type string `json:"type"`
}

type operationMessage struct {
	OperationType string          `json:"operation_type"`
	BlockID       string          `json:"block_id"`
	Data          json.RawMessage `json:"data"`
	Version       int64           `json:"version"`
}

type cursorMessage struct {
	Position json.RawMessage `json:"position"`
}

type selectionMessage struct {
	Range json.RawMessage `json:"range"`
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

type initialStateFrame struct {
	Type        string           `json:"type"`
	SessionID   string           `json:"session_id"`
	PageID      string           `json:"page_id"`
	ActiveUsers []map[string]any `json:"active_users"`
}

type operationFrame struct {
	Type      string         `json:"type"`
	Operation map[string]any `json:"operation"`
	Conflict  map[string]any `json:"conflict,omitempty"`
}

type cursorFrame struct {
	Type     string          `json:"type"`
	UserID   string          `json:"user_id"`
	Position json.RawMessage `json:"position"`
}

type selectionFrame struct {
	Type   string          `json:"type"`
	UserID string          `json:"user_id"`
	Range  json.RawMessage `json:"range"`
}

type presenceUpdateFrame struct {
	Type  string           `json:"type"`
	Users []map[string]any `json:"users"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func marshalFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}

func presenceJSON(p store.Presence) map[string]any {
	return map[string]any{
		"id":              p.UserID,
		"name":            p.DisplayName,
		"avatar":          p.AvatarURL,
		"cursor_position": p.Cursor,
		"selection_range": p.Selection,
	}
}

func presenceListJSON(list []store.Presence) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, p := range list {
		out = append(out, presenceJSON(p))
	}
	return out
}

func operationJSON(op store.Operation) map[string]any {
	return map[string]any{
		"id":             op.ID,
		"user_id":        op.UserID,
		"operation_type": op.Type,
		"block_id":       op.BlockID,
		"data":           op.Data,
		"version":        op.Version,
		"timestamp":      op.Timestamp,
	}
}

func conflictJSON(c store.Conflict) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"session_id":     c.SessionID,
		"operation_id":   c.OperationID,
		"conflicts_with": c.ConflictsWith,
		"resolved_by":    c.ResolvedBy,
		"resolution":     c.Resolution,
		"created_at":     c.CreatedAt,
		"resolved_at":    c.ResolvedAt,
	}
}
