package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, avatar_url)
		VALUES ($1, $2, LOWER($3), $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.avatar_url
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.AvatarURL)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, workspace Workspace, memberID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workspace tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, slug, icon, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`, workspace.ID, workspace.Name, workspace.Slug, workspace.Icon, workspace.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert workspace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_members (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, 'admin')
	`, memberID, workspace.ID, workspace.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert workspace owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workspace tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, icon, owner_id, created_at, updated_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &item.Slug, &item.Icon, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.icon, w.owner_id, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE wm.user_id = $1
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.Icon, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddWorkspaceMember(ctx context.Context, member WorkspaceMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, member.ID, member.WorkspaceID, member.UserID, member.Role)
	if err != nil {
		return fmt.Errorf("upsert workspace member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]WorkspaceMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wm.id, wm.workspace_id, wm.user_id, wm.role, wm.joined_at, u.display_name, u.email
		FROM workspace_members wm
		JOIN users u ON u.id = wm.user_id
		WHERE wm.workspace_id = $1
		ORDER BY wm.joined_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace members: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceMember, 0)
	for rows.Next() {
		var item WorkspaceMember
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Role, &item.JoinedAt, &item.DisplayName, &item.Email); err != nil {
			return nil, fmt.Errorf("scan workspace member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM workspace_members WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read member role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, page Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, workspace_id, parent_id, title, icon, cover_url, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, page.ID, page.WorkspaceID, page.ParentID, page.Title, page.Icon, page.CoverURL, page.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (Page, error) {
	var item Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, parent_id, title, icon, cover_url, created_by, is_archived, created_at, updated_at
		FROM pages
		WHERE id=$1
	`, pageID).Scan(&item.ID, &item.WorkspaceID, &item.ParentID, &item.Title, &item.Icon, &item.CoverURL, &item.CreatedBy, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Page{}, err
	}
	return item, nil
}

func (s *PostgresStore) PageExists(ctx context.Context, pageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pages WHERE id=$1 AND NOT is_archived)`, pageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check page exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListPages(ctx context.Context, workspaceID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, parent_id, title, icon, cover_url, created_by, is_archived, created_at, updated_at
		FROM pages
		WHERE workspace_id=$1 AND NOT is_archived
		ORDER BY updated_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		var item Page
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.ParentID, &item.Title, &item.Icon, &item.CoverURL, &item.CreatedBy, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, pageID, title, icon, coverURL string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pages SET title=$2, icon=$3, cover_url=$4, updated_at=NOW() WHERE id=$1
	`, pageID, title, icon, coverURL)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ArchivePage(ctx context.Context, pageID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE pages SET is_archived=TRUE, updated_at=NOW() WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("archive page: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) TouchPage(ctx context.Context, pageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pages SET updated_at=NOW() WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("touch page: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertBlock(ctx context.Context, block Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (id, page_id, parent_id, type, content, position, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, block.ID, block.PageID, block.ParentID, block.Type, block.Content, block.Position, block.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, blockID string) (Block, error) {
	var item Block
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, parent_id, type, content, position, created_by, created_at, updated_at
		FROM blocks
		WHERE id=$1
	`, blockID).Scan(&item.ID, &item.PageID, &item.ParentID, &item.Type, &item.Content, &item.Position, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Block{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListBlocks(ctx context.Context, pageID string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, parent_id, type, content, position, created_by, created_at, updated_at
		FROM blocks
		WHERE page_id=$1
		ORDER BY position
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	items := make([]Block, 0)
	for rows.Next() {
		var item Block
		if err := rows.Scan(&item.ID, &item.PageID, &item.ParentID, &item.Type, &item.Content, &item.Position, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateBlock(ctx context.Context, blockID, blockType string, content json.RawMessage) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blocks SET type=$2, content=$3, updated_at=NOW() WHERE id=$1
	`, blockID, blockType, content)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) MoveBlock(ctx context.Context, blockID string, parentID *string, position float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blocks SET parent_id=$2, position=$3, updated_at=NOW() WHERE id=$1
	`, blockID, parentID, position)
	if err != nil {
		return fmt.Errorf("move block: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, blockID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id=$1`, blockID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) BlockBelongsToPage(ctx context.Context, blockID, pageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM blocks WHERE id=$1 AND page_id=$2)`, blockID, pageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check block page: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, page_id, block_id, author_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.PageID, comment.BlockID, comment.AuthorID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, pageID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.page_id, c.block_id, c.author_id, c.body, c.resolved_at, c.created_at, u.display_name
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.page_id=$1
		ORDER BY c.created_at
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.PageID, &item.BlockID, &item.AuthorID, &item.Body, &item.ResolvedAt, &item.CreatedAt, &item.AuthorName); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ResolveComment(ctx context.Context, commentID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE comments SET resolved_at=NOW() WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("resolve comment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertTemplate(ctx context.Context, template Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, workspace_id, name, description, kind, content, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, template.ID, template.WorkspaceID, template.Name, template.Description, template.Kind, template.Content, template.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (Template, error) {
	var item Template
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, kind, content, created_by, created_at
		FROM templates
		WHERE id=$1
	`, templateID).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.Kind, &item.Content, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Template{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, workspaceID string) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, description, kind, content, created_by, created_at
		FROM templates
		WHERE workspace_id=$1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]Template, 0)
	for rows.Next() {
		var item Template
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.Kind, &item.Content, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMediaFile(ctx context.Context, file MediaFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_files (id, workspace_id, uploader_id, object_key, filename, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, file.ID, file.WorkspaceID, file.UploaderID, file.ObjectKey, file.Filename, file.ContentType, file.Size)
	if err != nil {
		return fmt.Errorf("insert media file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMediaFile(ctx context.Context, fileID string) (MediaFile, error) {
	var item MediaFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, uploader_id, object_key, filename, content_type, size, created_at
		FROM media_files
		WHERE id=$1
	`, fileID).Scan(&item.ID, &item.WorkspaceID, &item.UploaderID, &item.ObjectKey, &item.Filename, &item.ContentType, &item.Size, &item.CreatedAt)
	if err != nil {
		return MediaFile{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMediaFiles(ctx context.Context, workspaceID string) ([]MediaFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, uploader_id, object_key, filename, content_type, size, created_at
		FROM media_files
		WHERE workspace_id=$1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	items := make([]MediaFile, 0)
	for rows.Next() {
		var item MediaFile
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.UploaderID, &item.ObjectKey, &item.Filename, &item.ContentType, &item.Size, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media file: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media files: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteMediaFile(ctx context.Context, fileID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM media_files WHERE id=$1`, fileID)
	if err != nil {
		return fmt.Errorf("delete media file: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, actor_id, page_id, comment_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, notification.ID, notification.UserID, notification.Kind, notification.ActorID, notification.PageID, notification.CommentID, notification.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	query := `
		SELECT id, user_id, kind, actor_id, page_id, comment_id, message, read_at, created_at
		FROM notifications
		WHERE user_id=$1
	`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Kind, &item.ActorID, &item.PageID, &item.CommentID, &item.Message, &item.ReadAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW() WHERE id=$1 AND user_id=$2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
