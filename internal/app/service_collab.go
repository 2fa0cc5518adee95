package app

import (
	"context"
	"encoding/json"
	"fmt"

	"quillboard/api/internal/collab"
	"quillboard/api/internal/rbac"
	"quillboard/api/internal/store"
)

// sessionWorkspace resolves a collaboration session to its workspace so
// session-scoped endpoints can enforce membership.
func (s *Service) sessionWorkspace(ctx context.Context, sessionID string) (string, error) {
	session, err := s.store.GetCollabSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	page, err := s.store.GetPage(ctx, session.PageID)
	if err != nil {
		return "", err
	}
	return page.WorkspaceID, nil
}

func (s *Service) requireSessionRole(ctx context.Context, sessionID, userID string, action rbac.Action) error {
	workspaceID, err := s.sessionWorkspace(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.requireRole(ctx, workspaceID, userID, action)
}

func (s *Service) CollabSessions(ctx context.Context, workspaceID, userID string) (map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	sessions, err := s.collab.Sessions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, collabSessionJSON(session))
	}
	return map[string]any{"sessions": items}, nil
}

func (s *Service) CollabActiveUsers(ctx context.Context, sessionID, userID string) (map[string]any, error) {
	if err := s.requireSessionRole(ctx, sessionID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	users, err := s.collab.ActiveUsers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, presence := range users {
		items = append(items, presenceRESTJSON(presence))
	}
	return map[string]any{"activeUsers": items}, nil
}

func (s *Service) CollabOperations(ctx context.Context, sessionID, userID string) (map[string]any, error) {
	if err := s.requireSessionRole(ctx, sessionID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	operations, err := s.collab.Operations(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(operations))
	for _, op := range operations {
		items = append(items, operationRESTJSON(op))
	}
	return map[string]any{"operations": items}, nil
}

type RecordOperationInput struct {
	Type    string          `json:"operationType"`
	BlockID string          `json:"blockId"`
	Data    json.RawMessage `json:"data"`
	Version int64           `json:"version"`
}

func (s *Service) RecordCollabOperation(ctx context.Context, sessionID, userID string, in RecordOperationInput) (map[string]any, error) {
	if err := s.requireSessionRole(ctx, sessionID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	op, conflict, err := s.collab.RecordOperation(ctx, sessionID, userID, collab.OperationInput{
		Type:    in.Type,
		BlockID: in.BlockID,
		Data:    in.Data,
		Version: in.Version,
	})
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"operation": operationRESTJSON(op)}
	if conflict != nil {
		payload["conflict"] = conflictRESTJSON(*conflict)
	}
	return payload, nil
}

func (s *Service) CollabConflicts(ctx context.Context, sessionID, userID string) (map[string]any, error) {
	if err := s.requireSessionRole(ctx, sessionID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	conflicts, err := s.collab.Conflicts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(conflicts))
	for _, conflict := range conflicts {
		items = append(items, conflictRESTJSON(conflict))
	}
	return map[string]any{"conflicts": items}, nil
}

func (s *Service) ResolveCollabConflict(ctx context.Context, conflictID, userID string, resolution json.RawMessage) (map[string]any, error) {
	existing, err := s.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if err := s.requireSessionRole(ctx, existing.SessionID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	conflict, err := s.collab.ResolveConflict(ctx, conflictID, userID, resolution)
	if err != nil {
		return nil, err
	}

	// Tell the author of the losing operation their edit was reconciled.
	if op, err := s.store.GetOperation(ctx, conflict.OperationID); err == nil && op.UserID != userID {
		session, err := s.store.GetCollabSession(ctx, conflict.SessionID)
		if err == nil {
			s.notify(ctx, store.Notification{
				UserID:  op.UserID,
				Kind:    "conflict_resolved",
				ActorID: userID,
				PageID:  &session.PageID,
				Message: fmt.Sprintf("A conflict on one of your edits was resolved (operation %s)", op.ID),
			})
		}
	}
	return conflictRESTJSON(conflict), nil
}

func collabSessionJSON(session store.CollabSession) map[string]any {
	return map[string]any{
		"id":           session.ID,
		"pageId":       session.PageID,
		"createdAt":    session.CreatedAt,
		"lastActivity": session.LastActivity,
	}
}

func presenceRESTJSON(presence store.Presence) map[string]any {
	return map[string]any{
		"userId":         presence.UserID,
		"name":           presence.DisplayName,
		"avatar":         presence.AvatarURL,
		"cursorPosition": json.RawMessage(presence.Cursor),
		"selectionRange": json.RawMessage(presence.Selection),
		"lastSeen":       presence.LastSeen,
	}
}

func operationRESTJSON(op store.Operation) map[string]any {
	return map[string]any{
		"id":            op.ID,
		"sessionId":     op.SessionID,
		"userId":        op.UserID,
		"operationType": op.Type,
		"blockId":       op.BlockID,
		"data":          json.RawMessage(op.Data),
		"version":       op.Version,
		"timestamp":     op.Timestamp,
	}
}

func conflictRESTJSON(conflict store.Conflict) map[string]any {
	return map[string]any{
		"id":            conflict.ID,
		"sessionId":     conflict.SessionID,
		"operationId":   conflict.OperationID,
		"conflictsWith": conflict.ConflictsWith,
		"resolvedBy":    conflict.ResolvedBy,
		"resolution":    json.RawMessage(conflict.Resolution),
		"createdAt":     conflict.CreatedAt,
		"resolvedAt":    conflict.ResolvedAt,
	}
}
