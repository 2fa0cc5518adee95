package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quillboard/api/internal/auth"
	"quillboard/api/internal/authpw"
	"quillboard/api/internal/collab"
	"quillboard/api/internal/config"
	"quillboard/api/internal/export"
	"quillboard/api/internal/media"
	"quillboard/api/internal/pagehist"
	"quillboard/api/internal/rbac"
	"quillboard/api/internal/search"
	"quillboard/api/internal/store"
	"quillboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

var allowedBlockTypes = map[string]struct{}{
	"text":    {},
	"heading": {},
	"list":    {},
	"todo":    {},
	"toggle":  {},
	"code":    {},
	"image":   {},
	"embed":   {},
	"table":   {},
	"divider": {},
}

var allowedMemberRoles = map[string]struct{}{
	"admin":  {},
	"editor": {},
	"viewer": {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertWorkspace(ctx context.Context, workspace store.Workspace, memberID string) error
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]store.Workspace, error)
	AddWorkspaceMember(ctx context.Context, member store.WorkspaceMember) error
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]store.WorkspaceMember, error)
	GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error)

	InsertPage(ctx context.Context, page store.Page) error
	GetPage(ctx context.Context, pageID string) (store.Page, error)
	ListPages(ctx context.Context, workspaceID string) ([]store.Page, error)
	UpdatePage(ctx context.Context, pageID, title, icon, coverURL string) error
	ArchivePage(ctx context.Context, pageID string) error
	TouchPage(ctx context.Context, pageID string) error

	InsertBlock(ctx context.Context, block store.Block) error
	GetBlock(ctx context.Context, blockID string) (store.Block, error)
	ListBlocks(ctx context.Context, pageID string) ([]store.Block, error)
	UpdateBlock(ctx context.Context, blockID, blockType string, content json.RawMessage) error
	MoveBlock(ctx context.Context, blockID string, parentID *string, position float64) error
	DeleteBlock(ctx context.Context, blockID string) error
	BlockBelongsToPage(ctx context.Context, blockID, pageID string) (bool, error)

	InsertComment(ctx context.Context, comment store.Comment) error
	ListComments(ctx context.Context, pageID string) ([]store.Comment, error)
	ResolveComment(ctx context.Context, commentID string) error

	InsertTemplate(ctx context.Context, template store.Template) error
	GetTemplate(ctx context.Context, templateID string) (store.Template, error)
	ListTemplates(ctx context.Context, workspaceID string) ([]store.Template, error)

	InsertMediaFile(ctx context.Context, file store.MediaFile) error
	GetMediaFile(ctx context.Context, fileID string) (store.MediaFile, error)
	ListMediaFiles(ctx context.Context, workspaceID string) ([]store.MediaFile, error)
	DeleteMediaFile(ctx context.Context, fileID string) error

	InsertNotification(ctx context.Context, notification store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string) error

	GetCollabSession(ctx context.Context, sessionID string) (store.CollabSession, error)
	GetOperation(ctx context.Context, operationID string) (store.Operation, error)
	GetConflict(ctx context.Context, conflictID string) (store.Conflict, error)
}

// refreshSessions is the fast path for refresh tokens. Redis in production;
// the Postgres table is the fallback when Redis is down.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshSessions
	passwords *authpw.Service
	collab    *collab.Manager
	history   *pagehist.Service
	search    *search.Service
	media     *media.Service
	exporter  *export.Service
}

// Deps carries the optional collaborators. A nil field disables the feature
// rather than failing at startup.
type Deps struct {
	Sessions  refreshSessions
	Passwords *authpw.Service
	Collab    *collab.Manager
	History   *pagehist.Service
	Search    *search.Service
	Media     *media.Service
	Exporter  *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  deps.Sessions,
		passwords: deps.Passwords,
		collab:    deps.Collab,
		history:   deps.History,
		search:    deps.Search,
		media:     deps.Media,
		exporter:  deps.Exporter,
	}
	if s.exporter == nil {
		s.exporter = export.NewService(exportStore{store: s.store})
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// ── Auth ──

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.lookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	s.revokeRefreshSession(ctx, tokenHash)
	// The Redis record only carries the user id.
	if user.DisplayName == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	claims := auth.NewClaims(user.ID, user.DisplayName, jti, s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.saveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) saveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if s.sessions != nil {
		if err := s.sessions.SaveRefreshSession(ctx, tokenHash, userID, expiresAt); err == nil {
			return nil
		}
	}
	return s.store.SaveRefreshSession(ctx, tokenHash, userID, expiresAt)
}

func (s *Service) lookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if s.sessions != nil {
		if user, err := s.sessions.LookupRefreshSession(ctx, tokenHash); err == nil {
			return user, nil
		}
	}
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *Service) revokeRefreshSession(ctx context.Context, tokenHash string) {
	if s.sessions != nil {
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
	}
	_ = s.store.RevokeRefreshSession(ctx, tokenHash)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// VerifyToken adapts SessionFromToken for the websocket gateway, which only
// needs an identity.
func (s *Service) VerifyToken(ctx context.Context, token string) (string, string, error) {
	session, err := s.SessionFromToken(ctx, token)
	if err != nil {
		return "", "", err
	}
	return session.UserID, session.UserName, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		s.revokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	return s.passwords.ChangePassword(ctx, userID, current, next)
}

// ── Membership ──

// memberRole fails with 403 when the user is not a member at all.
func (s *Service) memberRole(ctx context.Context, workspaceID, userID string) (rbac.Role, error) {
	role, err := s.store.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this workspace", nil)
		}
		return "", err
	}
	return rbac.Normalize(role), nil
}

func (s *Service) requireRole(ctx context.Context, workspaceID, userID string, action rbac.Action) error {
	role, err := s.memberRole(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !rbac.Can(role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) requirePageRole(ctx context.Context, pageID, userID string, action rbac.Action) (store.Page, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return store.Page{}, err
	}
	if err := s.requireRole(ctx, page.WorkspaceID, userID, action); err != nil {
		return store.Page{}, err
	}
	return page, nil
}

// ── Workspaces ──

func (s *Service) CreateWorkspace(ctx context.Context, name, icon, ownerID string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	workspace := store.Workspace{
		ID:      util.NewID("ws"),
		Name:    name,
		Slug:    slugify(name),
		Icon:    strings.TrimSpace(icon),
		OwnerID: ownerID,
	}
	if err := s.store.InsertWorkspace(ctx, workspace, util.NewID("wm")); err != nil {
		return nil, err
	}
	return workspaceJSON(workspace), nil
}

func (s *Service) ListWorkspaces(ctx context.Context, userID string) ([]map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		items = append(items, workspaceJSON(workspace))
	}
	return items, nil
}

func (s *Service) GetWorkspace(ctx context.Context, workspaceID, userID string) (map[string]any, error) {
	role, err := s.memberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	payload := workspaceJSON(workspace)
	payload["role"] = string(role)
	return payload, nil
}

func (s *Service) ListMembers(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"userId":   member.UserID,
			"name":     member.DisplayName,
			"email":    member.Email,
			"role":     member.Role,
			"joinedAt": member.JoinedAt,
		})
	}
	return items, nil
}

func (s *Service) AddMember(ctx context.Context, workspaceID, actorID, email, role string) (map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, actorID, rbac.ActionManage); err != nil {
		return nil, err
	}
	if _, ok := allowedMemberRoles[role]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be admin, editor, or viewer", nil)
	}
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no account with that email", nil)
		}
		return nil, err
	}
	member := store.WorkspaceMember{
		ID:          util.NewID("wm"),
		WorkspaceID: workspaceID,
		UserID:      user.ID,
		Role:        role,
	}
	if err := s.store.AddWorkspaceMember(ctx, member); err != nil {
		return nil, err
	}
	return map[string]any{
		"userId": user.ID,
		"name":   user.DisplayName,
		"email":  user.Email,
		"role":   role,
	}, nil
}

// ── Pages ──

type CreatePageInput struct {
	Title    string  `json:"title"`
	Icon     string  `json:"icon"`
	ParentID *string `json:"parentId"`
}

func (s *Service) CreatePage(ctx context.Context, workspaceID, userID string, in CreatePageInput) (map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	page := store.Page{
		ID:          util.NewID("pg"),
		WorkspaceID: workspaceID,
		ParentID:    in.ParentID,
		Title:       title,
		Icon:        strings.TrimSpace(in.Icon),
		CreatedBy:   userID,
	}
	if err := s.store.InsertPage(ctx, page); err != nil {
		return nil, err
	}

	if s.history != nil {
		if err := s.history.EnsurePageRepo(page.ID, pagehist.Snapshot{Title: page.Title, Icon: page.Icon}, userID); err != nil {
			return nil, fmt.Errorf("init page history: %w", err)
		}
	}
	if s.search != nil {
		s.search.IndexPage(search.PageRecord{ID: page.ID, Title: page.Title, Icon: page.Icon, WorkspaceID: workspaceID})
	}
	return pageJSON(page), nil
}

func (s *Service) ListPages(ctx context.Context, workspaceID, userID string) ([]map[string]any, error) {
	if err := s.requireRole(ctx, workspaceID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, pageJSON(page))
	}
	return items, nil
}

func (s *Service) GetPage(ctx context.Context, pageID, userID string) (map[string]any, error) {
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	blocks, err := s.store.ListBlocks(ctx, pageID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, blockJSON(block))
	}
	payload := pageJSON(page)
	payload["blocks"] = items
	return payload, nil
}

type UpdatePageInput struct {
	Title    string `json:"title"`
	Icon     string `json:"icon"`
	CoverURL string `json:"coverUrl"`
}

func (s *Service) UpdatePage(ctx context.Context, pageID, userID string, in UpdatePageInput) (map[string]any, error) {
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(firstNonBlank(in.Title, page.Title))
	if err := s.store.UpdatePage(ctx, pageID, title, strings.TrimSpace(in.Icon), strings.TrimSpace(in.CoverURL)); err != nil {
		return nil, err
	}

	page.Title = title
	page.Icon = strings.TrimSpace(in.Icon)
	page.CoverURL = strings.TrimSpace(in.CoverURL)
	if err := s.snapshotPage(ctx, page, userID, "Update page"); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexPage(search.PageRecord{ID: page.ID, Title: page.Title, Icon: page.Icon, WorkspaceID: page.WorkspaceID})
	}
	return pageJSON(page), nil
}

func (s *Service) ArchivePage(ctx context.Context, pageID, userID string) error {
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := s.store.ArchivePage(ctx, pageID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePage(page.ID)
	}
	return nil
}

// snapshotPage commits the current page content into its history repo.
// Identical snapshots are skipped inside the history service.
func (s *Service) snapshotPage(ctx context.Context, page store.Page, author, message string) error {
	if s.history == nil {
		return nil
	}
	blocks, err := s.store.ListBlocks(ctx, page.ID)
	if err != nil {
		return err
	}
	snap := pagehist.Snapshot{Title: page.Title, Icon: page.Icon}
	for _, block := range blocks {
		snap.Blocks = append(snap.Blocks, pagehist.BlockSnapshot{
			ID:       block.ID,
			Type:     block.Type,
			Position: block.Position,
			Content:  block.Content,
		})
	}
	if _, err := s.history.Commit(page.ID, snap, author, message); err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}
	return nil
}

func (s *Service) PageHistory(ctx context.Context, pageID, userID string, limit int) (map[string]any, error) {
	if _, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return map[string]any{"entries": []map[string]any{}}, nil
	}
	entries, err := s.history.History(pageID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, snapshotInfoJSON(entry))
	}
	return map[string]any{"entries": items}, nil
}

func (s *Service) PageAtVersion(ctx context.Context, pageID, hash, userID string) (map[string]any, error) {
	if _, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Page history unavailable", nil)
	}
	snap, info, err := s.history.GetSnapshot(pageID, hash)
	if err != nil {
		return nil, err
	}
	blocks := make([]map[string]any, 0, len(snap.Blocks))
	for _, block := range snap.Blocks {
		blocks = append(blocks, map[string]any{
			"id":       block.ID,
			"type":     block.Type,
			"position": block.Position,
			"content":  json.RawMessage(block.Content),
		})
	}
	payload := snapshotInfoJSON(info)
	payload["title"] = snap.Title
	payload["icon"] = snap.Icon
	payload["blocks"] = blocks
	return payload, nil
}

// ── Blocks ──

type CreateBlockInput struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
	ParentID *string         `json:"parentId"`
	Position float64         `json:"position"`
}

func (s *Service) CreateBlock(ctx context.Context, pageID, userID string, in CreateBlockInput) (map[string]any, error) {
	page, err := s.requirePageRole(ctx, pageID, userID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if _, ok := allowedBlockTypes[in.Type]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown block type", map[string]any{"type": in.Type})
	}
	if len(in.Content) == 0 {
		in.Content = json.RawMessage("{}")
	}

	block := store.Block{
		ID:        util.NewID("blk"),
		PageID:    pageID,
		ParentID:  in.ParentID,
		Type:      in.Type,
		Content:   in.Content,
		Position:  in.Position,
		CreatedBy: userID,
	}
	if err := s.store.InsertBlock(ctx, block); err != nil {
		return nil, err
	}
	_ = s.store.TouchPage(ctx, pageID)
	if err := s.snapshotPage(ctx, page, userID, "Add block"); err != nil {
		return nil, err
	}
	return blockJSON(block), nil
}

type UpdateBlockInput struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func (s *Service) UpdateBlock(ctx context.Context, blockID, userID string, in UpdateBlockInput) (map[string]any, error) {
	block, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	page, err := s.requirePageRole(ctx, block.PageID, userID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}

	blockType := firstNonBlank(in.Type, block.Type)
	if _, ok := allowedBlockTypes[blockType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown block type", map[string]any{"type": blockType})
	}
	content := block.Content
	if len(in.Content) > 0 {
		content = in.Content
	}
	if err := s.store.UpdateBlock(ctx, blockID, blockType, content); err != nil {
		return nil, err
	}
	_ = s.store.TouchPage(ctx, block.PageID)

	block.Type = blockType
	block.Content = content
	if err := s.snapshotPage(ctx, page, userID, "Edit block"); err != nil {
		return nil, err
	}
	return blockJSON(block), nil
}

type MoveBlockInput struct {
	ParentID *string `json:"parentId"`
	Position float64 `json:"position"`
}

func (s *Service) MoveBlock(ctx context.Context, blockID, userID string, in MoveBlockInput) (map[string]any, error) {
	block, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	page, err := s.requirePageRole(ctx, block.PageID, userID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := s.store.MoveBlock(ctx, blockID, in.ParentID, in.Position); err != nil {
		return nil, err
	}
	_ = s.store.TouchPage(ctx, block.PageID)

	block.ParentID = in.ParentID
	block.Position = in.Position
	if err := s.snapshotPage(ctx, page, userID, "Move block"); err != nil {
		return nil, err
	}
	return blockJSON(block), nil
}

func (s *Service) DeleteBlock(ctx context.Context, blockID, userID string) error {
	block, err := s.store.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	page, err := s.requirePageRole(ctx, block.PageID, userID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBlock(ctx, blockID); err != nil {
		return err
	}
	_ = s.store.TouchPage(ctx, block.PageID)
	return s.snapshotPage(ctx, page, userID, "Delete block")
}

// ── JSON shapes ──

func workspaceJSON(workspace store.Workspace) map[string]any {
	return map[string]any{
		"id":        workspace.ID,
		"name":      workspace.Name,
		"slug":      workspace.Slug,
		"icon":      workspace.Icon,
		"ownerId":   workspace.OwnerID,
		"createdAt": workspace.CreatedAt,
		"updatedAt": workspace.UpdatedAt,
	}
}

func pageJSON(page store.Page) map[string]any {
	return map[string]any{
		"id":          page.ID,
		"workspaceId": page.WorkspaceID,
		"parentId":    page.ParentID,
		"title":       page.Title,
		"icon":        page.Icon,
		"coverUrl":    page.CoverURL,
		"createdBy":   page.CreatedBy,
		"archived":    page.IsArchived,
		"createdAt":   page.CreatedAt,
		"updatedAt":   page.UpdatedAt,
	}
}

func blockJSON(block store.Block) map[string]any {
	return map[string]any{
		"id":        block.ID,
		"pageId":    block.PageID,
		"parentId":  block.ParentID,
		"type":      block.Type,
		"content":   json.RawMessage(block.Content),
		"position":  block.Position,
		"createdBy": block.CreatedBy,
		"createdAt": block.CreatedAt,
		"updatedAt": block.UpdatedAt,
	}
}

func snapshotInfoJSON(info store.SnapshotInfo) map[string]any {
	return map[string]any{
		"hash":      info.Hash,
		"message":   info.Message,
		"author":    info.Author,
		"createdAt": info.CreatedAt,
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
