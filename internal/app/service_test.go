package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quillboard/api/internal/authpw"
	"quillboard/api/internal/collab"
	"quillboard/api/internal/config"
	"quillboard/api/internal/store"
)

type fakeData struct {
	pingFn               func(context.Context) error
	getUserByIDFn        func(context.Context, string) (store.User, error)
	getUserByEmailFn     func(context.Context, string) (store.User, error)
	createUserFn         func(context.Context, store.User) error
	saveRefreshFn        func(context.Context, string, string, time.Time) error
	lookupRefreshFn      func(context.Context, string) (store.User, error)
	revokeRefreshFn      func(context.Context, string) error
	getMemberRoleFn      func(context.Context, string, string) (string, error)
	getWorkspaceFn       func(context.Context, string) (store.Workspace, error)
	insertWorkspaceFn    func(context.Context, store.Workspace, string) error
	insertPageFn         func(context.Context, store.Page) error
	getPageFn            func(context.Context, string) (store.Page, error)
	listBlocksFn         func(context.Context, string) ([]store.Block, error)
	insertBlockFn        func(context.Context, store.Block) error
	getBlockFn           func(context.Context, string) (store.Block, error)
	blockBelongsFn       func(context.Context, string, string) (bool, error)
	insertCommentFn      func(context.Context, store.Comment) error
	listCommentsFn       func(context.Context, string) ([]store.Comment, error)
	insertNotificationFn func(context.Context, store.Notification) error
	getCollabSessionFn   func(context.Context, string) (store.CollabSession, error)
	getOperationFn       func(context.Context, string) (store.Operation, error)
	getConflictFn        func(context.Context, string) (store.Conflict, error)
	resolveConflictFn    func(context.Context, string, string, json.RawMessage) (store.Conflict, error)
}

func (f *fakeData) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeData) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Tester"}, nil
}

func (f *fakeData) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeData) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}

func (f *fakeData) UpdateUserPassword(context.Context, string, string) error { return nil }

func (f *fakeData) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshFn != nil {
		return f.saveRefreshFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}

func (f *fakeData) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshFn != nil {
		return f.lookupRefreshFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeData) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, tokenHash)
	}
	return nil
}

func (f *fakeData) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeData) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeData) InsertWorkspace(ctx context.Context, workspace store.Workspace, memberID string) error {
	if f.insertWorkspaceFn != nil {
		return f.insertWorkspaceFn(ctx, workspace, memberID)
	}
	return nil
}

func (f *fakeData) GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	if f.getWorkspaceFn != nil {
		return f.getWorkspaceFn(ctx, workspaceID)
	}
	return store.Workspace{ID: workspaceID, Name: "Workspace"}, nil
}

func (f *fakeData) ListWorkspacesForUser(context.Context, string) ([]store.Workspace, error) {
	return nil, nil
}

func (f *fakeData) AddWorkspaceMember(context.Context, store.WorkspaceMember) error { return nil }
func (f *fakeData) ListWorkspaceMembers(context.Context, string) ([]store.WorkspaceMember, error) {
	return nil, nil
}

func (f *fakeData) GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	if f.getMemberRoleFn != nil {
		return f.getMemberRoleFn(ctx, workspaceID, userID)
	}
	return "admin", nil
}

func (f *fakeData) InsertPage(ctx context.Context, page store.Page) error {
	if f.insertPageFn != nil {
		return f.insertPageFn(ctx, page)
	}
	return nil
}

func (f *fakeData) GetPage(ctx context.Context, pageID string) (store.Page, error) {
	if f.getPageFn != nil {
		return f.getPageFn(ctx, pageID)
	}
	return store.Page{ID: pageID, WorkspaceID: "ws_1", Title: "Page"}, nil
}

func (f *fakeData) ListPages(context.Context, string) ([]store.Page, error) { return nil, nil }
func (f *fakeData) UpdatePage(context.Context, string, string, string, string) error {
	return nil
}
func (f *fakeData) ArchivePage(context.Context, string) error { return nil }
func (f *fakeData) TouchPage(context.Context, string) error   { return nil }

func (f *fakeData) InsertBlock(ctx context.Context, block store.Block) error {
	if f.insertBlockFn != nil {
		return f.insertBlockFn(ctx, block)
	}
	return nil
}

func (f *fakeData) GetBlock(ctx context.Context, blockID string) (store.Block, error) {
	if f.getBlockFn != nil {
		return f.getBlockFn(ctx, blockID)
	}
	return store.Block{ID: blockID, PageID: "pg_1", Type: "text"}, nil
}

func (f *fakeData) ListBlocks(ctx context.Context, pageID string) ([]store.Block, error) {
	if f.listBlocksFn != nil {
		return f.listBlocksFn(ctx, pageID)
	}
	return nil, nil
}

func (f *fakeData) UpdateBlock(context.Context, string, string, json.RawMessage) error {
	return nil
}
func (f *fakeData) MoveBlock(context.Context, string, *string, float64) error { return nil }
func (f *fakeData) DeleteBlock(context.Context, string) error                 { return nil }

func (f *fakeData) BlockBelongsToPage(ctx context.Context, blockID, pageID string) (bool, error) {
	if f.blockBelongsFn != nil {
		return f.blockBelongsFn(ctx, blockID, pageID)
	}
	return true, nil
}

func (f *fakeData) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}

func (f *fakeData) ListComments(ctx context.Context, pageID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, pageID)
	}
	return nil, nil
}

func (f *fakeData) ResolveComment(context.Context, string) error { return nil }

func (f *fakeData) InsertTemplate(context.Context, store.Template) error { return nil }
func (f *fakeData) GetTemplate(context.Context, string) (store.Template, error) {
	return store.Template{}, sql.ErrNoRows
}
func (f *fakeData) ListTemplates(context.Context, string) ([]store.Template, error) {
	return nil, nil
}

func (f *fakeData) InsertMediaFile(context.Context, store.MediaFile) error { return nil }
func (f *fakeData) GetMediaFile(context.Context, string) (store.MediaFile, error) {
	return store.MediaFile{}, sql.ErrNoRows
}
func (f *fakeData) ListMediaFiles(context.Context, string) ([]store.MediaFile, error) {
	return nil, nil
}
func (f *fakeData) DeleteMediaFile(context.Context, string) error { return nil }

func (f *fakeData) InsertNotification(ctx context.Context, notification store.Notification) error {
	if f.insertNotificationFn != nil {
		return f.insertNotificationFn(ctx, notification)
	}
	return nil
}

func (f *fakeData) ListNotifications(context.Context, string, bool) ([]store.Notification, error) {
	return nil, nil
}
func (f *fakeData) MarkNotificationRead(context.Context, string, string) error { return nil }

func (f *fakeData) GetCollabSession(ctx context.Context, sessionID string) (store.CollabSession, error) {
	if f.getCollabSessionFn != nil {
		return f.getCollabSessionFn(ctx, sessionID)
	}
	return store.CollabSession{ID: sessionID, PageID: "pg_1"}, nil
}

func (f *fakeData) GetOperation(ctx context.Context, operationID string) (store.Operation, error) {
	if f.getOperationFn != nil {
		return f.getOperationFn(ctx, operationID)
	}
	return store.Operation{}, sql.ErrNoRows
}

func (f *fakeData) GetConflict(ctx context.Context, conflictID string) (store.Conflict, error) {
	if f.getConflictFn != nil {
		return f.getConflictFn(ctx, conflictID)
	}
	return store.Conflict{}, sql.ErrNoRows
}

// The collab.Store surface, so tests can run a real Manager over the fake.
func (f *fakeData) PageExists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeData) GetOrCreateCollabSession(ctx context.Context, pageID, newID string) (store.CollabSession, error) {
	return store.CollabSession{ID: newID, PageID: pageID}, nil
}
func (f *fakeData) TouchCollabSession(context.Context, string) error { return nil }
func (f *fakeData) ListCollabSessions(context.Context, string) ([]store.CollabSession, error) {
	return nil, nil
}
func (f *fakeData) UpsertPresence(context.Context, store.Presence) error { return nil }
func (f *fakeData) SetPresenceCursor(context.Context, string, string, json.RawMessage) error {
	return nil
}
func (f *fakeData) SetPresenceSelection(context.Context, string, string, json.RawMessage) error {
	return nil
}
func (f *fakeData) SetPresenceInactive(context.Context, string, string) error { return nil }
func (f *fakeData) ListActivePresence(context.Context, string) ([]store.Presence, error) {
	return nil, nil
}
func (f *fakeData) InsertOperation(ctx context.Context, op store.Operation) (store.Operation, error) {
	op.Timestamp = time.Now()
	return op, nil
}
func (f *fakeData) LatestBlockOperation(context.Context, string, string) (store.Operation, error) {
	return store.Operation{}, sql.ErrNoRows
}
func (f *fakeData) ListOperations(context.Context, string) ([]store.Operation, error) {
	return nil, nil
}
func (f *fakeData) InsertConflict(ctx context.Context, conflict store.Conflict) (store.Conflict, error) {
	return conflict, nil
}
func (f *fakeData) ResolveConflict(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (store.Conflict, error) {
	if f.resolveConflictFn != nil {
		return f.resolveConflictFn(ctx, conflictID, resolverID, resolution)
	}
	return store.Conflict{}, sql.ErrNoRows
}
func (f *fakeData) ListConflicts(context.Context, string) ([]store.Conflict, error) {
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

// testStore joins the persistence surfaces the service and the collaboration
// manager pull from, so one fake can back both.
type testStore interface {
	dataStore
	collab.Store
	authpw.UserStore
}

func newTestService(f testStore) *Service {
	return &Service{
		cfg:       testConfig(),
		store:     f,
		passwords: authpw.NewService(f),
		collab:    collab.NewManager(f),
	}
}

func assertDomainStatus(t *testing.T, err error, status int) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%v)", status, domainErr.Status, err)
	}
}

func TestSignUpIssuesSession(t *testing.T) {
	var created store.User
	f := &fakeData{
		createUserFn: func(ctx context.Context, user store.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(f)

	session, err := svc.SignUp(context.Background(), "ada@example.com", "correct horse", "Ada")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if created.Email != "ada@example.com" || created.PasswordHash == "" {
		t.Fatalf("unexpected stored user: %+v", created)
	}

	f.getUserByIDFn = func(ctx context.Context, userID string) (store.User, error) {
		if userID != created.ID {
			return store.User{}, sql.ErrNoRows
		}
		return created, nil
	}
	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("session from token failed: %v", err)
	}
	if parsed.UserID != created.ID || parsed.UserName != "Ada" {
		t.Fatalf("unexpected parsed session: %+v", parsed)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	saved := map[string]string{}
	f := &fakeData{
		saveRefreshFn: func(ctx context.Context, tokenHash, userID string, _ time.Time) error {
			saved[tokenHash] = userID
			return nil
		},
		lookupRefreshFn: func(ctx context.Context, tokenHash string) (store.User, error) {
			userID, ok := saved[tokenHash]
			if !ok {
				return store.User{}, sql.ErrNoRows
			}
			return store.User{ID: userID, DisplayName: "Ada"}, nil
		},
		revokeRefreshFn: func(ctx context.Context, tokenHash string) error {
			delete(saved, tokenHash)
			return nil
		},
	}
	svc := newTestService(f)

	first, err := svc.issueSession(context.Background(), store.User{ID: "usr_1", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected the old refresh token to be revoked")
	}
}

func TestCreatePageRequiresEditorRole(t *testing.T) {
	f := &fakeData{
		getMemberRoleFn: func(ctx context.Context, workspaceID, userID string) (string, error) {
			return "viewer", nil
		},
	}
	svc := newTestService(f)

	_, err := svc.CreatePage(context.Background(), "ws_1", "usr_1", CreatePageInput{Title: "Doc"})
	assertDomainStatus(t, err, 403)
}

func TestCreatePageRejectsNonMembers(t *testing.T) {
	f := &fakeData{
		getMemberRoleFn: func(ctx context.Context, workspaceID, userID string) (string, error) {
			return "", sql.ErrNoRows
		},
	}
	svc := newTestService(f)

	_, err := svc.CreatePage(context.Background(), "ws_1", "usr_1", CreatePageInput{Title: "Doc"})
	assertDomainStatus(t, err, 403)
}

func TestCreatePageRequiresTitle(t *testing.T) {
	svc := newTestService(&fakeData{})

	_, err := svc.CreatePage(context.Background(), "ws_1", "usr_1", CreatePageInput{Title: "   "})
	assertDomainStatus(t, err, 422)
}

func TestCreateBlockRejectsUnknownType(t *testing.T) {
	inserted := false
	f := &fakeData{
		insertBlockFn: func(ctx context.Context, block store.Block) error {
			inserted = true
			return nil
		},
	}
	svc := newTestService(f)

	_, err := svc.CreateBlock(context.Background(), "pg_1", "usr_1", CreateBlockInput{Type: "callout"})
	assertDomainStatus(t, err, 422)
	if inserted {
		t.Fatal("invalid block must not be stored")
	}
}

func TestCreateCommentChecksBlockOwnership(t *testing.T) {
	blockID := "blk_other"
	f := &fakeData{
		blockBelongsFn: func(ctx context.Context, bid, pageID string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(f)

	_, err := svc.CreateComment(context.Background(), "pg_1", "usr_1", CreateCommentInput{
		Body:    "hello",
		BlockID: &blockID,
	})
	assertDomainStatus(t, err, 422)
}

func TestCreateCommentNotifiesPageOwner(t *testing.T) {
	var notified store.Notification
	f := &fakeData{
		getPageFn: func(ctx context.Context, pageID string) (store.Page, error) {
			return store.Page{ID: pageID, WorkspaceID: "ws_1", Title: "Plan", CreatedBy: "usr_owner"}, nil
		},
		insertNotificationFn: func(ctx context.Context, notification store.Notification) error {
			notified = notification
			return nil
		},
	}
	svc := newTestService(f)

	if _, err := svc.CreateComment(context.Background(), "pg_1", "usr_1", CreateCommentInput{Body: "hello"}); err != nil {
		t.Fatalf("create comment failed: %v", err)
	}
	if notified.UserID != "usr_owner" || notified.Kind != "comment" {
		t.Fatalf("unexpected notification: %+v", notified)
	}
}

func TestAddMemberValidatesRole(t *testing.T) {
	svc := newTestService(&fakeData{})

	_, err := svc.AddMember(context.Background(), "ws_1", "usr_1", "new@example.com", "owner")
	assertDomainStatus(t, err, 422)
}

func TestCollabSessionsRequiresMembership(t *testing.T) {
	f := &fakeData{
		getMemberRoleFn: func(ctx context.Context, workspaceID, userID string) (string, error) {
			return "", sql.ErrNoRows
		},
	}
	svc := newTestService(f)

	_, err := svc.CollabSessions(context.Background(), "ws_1", "usr_1")
	assertDomainStatus(t, err, 403)
}

func TestResolveConflictNotifiesOperationAuthor(t *testing.T) {
	resolvedBy := "usr_resolver"
	var notified store.Notification
	f := &fakeData{
		getConflictFn: func(ctx context.Context, conflictID string) (store.Conflict, error) {
			return store.Conflict{ID: conflictID, SessionID: "cs_1", OperationID: "op_9"}, nil
		},
		resolveConflictFn: func(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (store.Conflict, error) {
			return store.Conflict{ID: conflictID, SessionID: "cs_1", OperationID: "op_9", ResolvedBy: &resolverID}, nil
		},
		getOperationFn: func(ctx context.Context, operationID string) (store.Operation, error) {
			return store.Operation{ID: operationID, UserID: "usr_author"}, nil
		},
		insertNotificationFn: func(ctx context.Context, notification store.Notification) error {
			notified = notification
			return nil
		},
	}
	svc := newTestService(f)

	payload, err := svc.ResolveCollabConflict(context.Background(), "cf_1", resolvedBy, json.RawMessage(`{"keep":"op_9"}`))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if payload["id"] != "cf_1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if notified.UserID != "usr_author" || notified.Kind != "conflict_resolved" {
		t.Fatalf("unexpected notification: %+v", notified)
	}
}

func TestResolveConflictUnknownIs404(t *testing.T) {
	svc := newTestService(&fakeData{})

	_, err := svc.ResolveCollabConflict(context.Background(), "cf_missing", "usr_1", nil)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}
