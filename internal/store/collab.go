package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetOrCreateCollabSession returns the session for a page, creating it if
// missing. The UNIQUE constraint on page_id plus the ON CONFLICT upsert makes
// concurrent callers converge on a single row; newID is only used when this
// caller wins the insert.
func (s *PostgresStore) GetOrCreateCollabSession(ctx context.Context, pageID, newID string) (CollabSession, error) {
	var session CollabSession
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collab_sessions (id, page_id)
		VALUES ($1, $2)
		ON CONFLICT (page_id) DO UPDATE SET last_activity=NOW()
		RETURNING id, page_id, created_at, last_activity
	`, newID, pageID).Scan(&session.ID, &session.PageID, &session.CreatedAt, &session.LastActivity)
	if err != nil {
		return CollabSession{}, fmt.Errorf("get or create session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) GetCollabSession(ctx context.Context, sessionID string) (CollabSession, error) {
	var session CollabSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, created_at, last_activity
		FROM collab_sessions
		WHERE id=$1
	`, sessionID).Scan(&session.ID, &session.PageID, &session.CreatedAt, &session.LastActivity)
	if err != nil {
		return CollabSession{}, err
	}
	return session, nil
}

func (s *PostgresStore) TouchCollabSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE collab_sessions SET last_activity=NOW() WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCollabSessions(ctx context.Context, workspaceID string) ([]CollabSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id, cs.page_id, cs.created_at, cs.last_activity
		FROM collab_sessions cs
		JOIN pages p ON p.id = cs.page_id
		WHERE p.workspace_id=$1
		ORDER BY cs.last_activity DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]CollabSession, 0)
	for rows.Next() {
		var item CollabSession
		if err := rows.Scan(&item.ID, &item.PageID, &item.CreatedAt, &item.LastActivity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return items, nil
}

// UpsertPresence activates (or creates) the presence row for a user in a
// session. Cursor and selection are left untouched on re-activation so a
// reconnect does not wipe the last known position.
func (s *PostgresStore) UpsertPresence(ctx context.Context, presence Presence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collab_presence (id, session_id, user_id, cursor, selection, is_active, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_id, user_id) DO UPDATE SET is_active=EXCLUDED.is_active, last_seen=NOW()
	`, presence.ID, presence.SessionID, presence.UserID, presence.Cursor, presence.Selection, presence.IsActive)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPresenceCursor(ctx context.Context, sessionID, userID string, cursor json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collab_presence SET cursor=$3, is_active=TRUE, last_seen=NOW()
		WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID, cursor)
	if err != nil {
		return fmt.Errorf("set presence cursor: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPresenceSelection(ctx context.Context, sessionID, userID string, selection json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collab_presence SET selection=$3, is_active=TRUE, last_seen=NOW()
		WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID, selection)
	if err != nil {
		return fmt.Errorf("set presence selection: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPresenceInactive(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collab_presence SET is_active=FALSE, last_seen=NOW()
		WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("set presence inactive: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivePresence(ctx context.Context, sessionID string) ([]Presence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cp.id, cp.session_id, cp.user_id, cp.cursor, cp.selection, cp.is_active, cp.last_seen,
			u.display_name, u.avatar_url
		FROM collab_presence cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.session_id=$1 AND cp.is_active
		ORDER BY cp.last_seen DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list active presence: %w", err)
	}
	defer rows.Close()

	items := make([]Presence, 0)
	for rows.Next() {
		var item Presence
		if err := rows.Scan(&item.ID, &item.SessionID, &item.UserID, &item.Cursor, &item.Selection, &item.IsActive, &item.LastSeen, &item.DisplayName, &item.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertOperation(ctx context.Context, op Operation) (Operation, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collab_operations (id, session_id, user_id, operation_type, block_id, data, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, op.ID, op.SessionID, op.UserID, op.Type, op.BlockID, op.Data, op.Version).Scan(&op.Timestamp)
	if err != nil {
		return Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) GetOperation(ctx context.Context, operationID string) (Operation, error) {
	var op Operation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, operation_type, block_id, data, version, created_at
		FROM collab_operations
		WHERE id=$1
	`, operationID).Scan(&op.ID, &op.SessionID, &op.UserID, &op.Type, &op.BlockID, &op.Data, &op.Version, &op.Timestamp)
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// LatestBlockOperation returns the most recent operation recorded against a
// block within a session, or sql.ErrNoRows when the block is untouched.
func (s *PostgresStore) LatestBlockOperation(ctx context.Context, sessionID, blockID string) (Operation, error) {
	var op Operation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, operation_type, block_id, data, version, created_at
		FROM collab_operations
		WHERE session_id=$1 AND block_id=$2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, sessionID, blockID).Scan(&op.ID, &op.SessionID, &op.UserID, &op.Type, &op.BlockID, &op.Data, &op.Version, &op.Timestamp)
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

func (s *PostgresStore) ListOperations(ctx context.Context, sessionID string) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, operation_type, block_id, data, version, created_at
		FROM collab_operations
		WHERE session_id=$1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	items := make([]Operation, 0)
	for rows.Next() {
		var item Operation
		if err := rows.Scan(&item.ID, &item.SessionID, &item.UserID, &item.Type, &item.BlockID, &item.Data, &item.Version, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertConflict(ctx context.Context, conflict Conflict) (Conflict, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collab_conflicts (id, session_id, operation_id, conflicts_with)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, conflict.ID, conflict.SessionID, conflict.OperationID, conflict.ConflictsWith).Scan(&conflict.CreatedAt)
	if err != nil {
		return Conflict{}, fmt.Errorf("insert conflict: %w", err)
	}
	return conflict, nil
}

func (s *PostgresStore) GetConflict(ctx context.Context, conflictID string) (Conflict, error) {
	var item Conflict
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, operation_id, conflicts_with, resolved_by, resolution, created_at, resolved_at
		FROM collab_conflicts
		WHERE id=$1
	`, conflictID).Scan(&item.ID, &item.SessionID, &item.OperationID, &item.ConflictsWith, &item.ResolvedBy, &item.Resolution, &item.CreatedAt, &item.ResolvedAt)
	if err != nil {
		return Conflict{}, err
	}
	return item, nil
}

// ResolveConflict stamps a conflict with the resolver and payload. It is a
// plain overwrite: resolving an already resolved conflict replaces the
// previous resolution.
func (s *PostgresStore) ResolveConflict(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (Conflict, error) {
	var item Conflict
	err := s.db.QueryRowContext(ctx, `
		UPDATE collab_conflicts
		SET resolved_by=$2, resolution=$3, resolved_at=NOW()
		WHERE id=$1
		RETURNING id, session_id, operation_id, conflicts_with, resolved_by, resolution, created_at, resolved_at
	`, conflictID, resolverID, resolution).Scan(&item.ID, &item.SessionID, &item.OperationID, &item.ConflictsWith, &item.ResolvedBy, &item.Resolution, &item.CreatedAt, &item.ResolvedAt)
	if err != nil {
		return Conflict{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListConflicts(ctx context.Context, sessionID string) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, operation_id, conflicts_with, resolved_by, resolution, created_at, resolved_at
		FROM collab_conflicts
		WHERE session_id=$1
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	items := make([]Conflict, 0)
	for rows.Next() {
		var item Conflict
		if err := rows.Scan(&item.ID, &item.SessionID, &item.OperationID, &item.ConflictsWith, &item.ResolvedBy, &item.Resolution, &item.CreatedAt, &item.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return items, nil
}
