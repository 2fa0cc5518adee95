package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quillboard/api/internal/store"
)

func newTestServer(f testStore) *HTTPServer {
	return NewHTTPServer(newTestService(f), nil, "*")
}

func doJSON(t *testing.T, server *HTTPServer, method, target, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	payload := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

func signUpToken(t *testing.T, server *HTTPServer) string {
	t.Helper()
	rec, payload := doJSON(t, server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"ada@example.com","password":"correct horse","displayName":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("signup response has no token")
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeData{})

	rec, payload := doJSON(t, server, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	f := &fakeData{
		pingFn: func(ctx context.Context) error { return errors.New("connection refused") },
	}
	server := newTestServer(f)

	rec, payload := doJSON(t, server, http.MethodGet, "/api/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if payload["status"] != "not_ready" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSignUpThenSignIn(t *testing.T) {
	var stored store.User
	f := &fakeData{
		createUserFn: func(ctx context.Context, user store.User) error {
			stored = user
			return nil
		},
	}
	f.getUserByEmailFn = func(ctx context.Context, email string) (store.User, error) {
		if stored.ID != "" && email == stored.Email {
			return stored, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	server := newTestServer(f)

	rec, _ := doJSON(t, server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"ada@example.com","password":"correct horse","displayName":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rec.Code, rec.Body.String())
	}

	rec, payload := doJSON(t, server, http.MethodPost, "/api/auth/signin", "",
		`{"email":"ada@example.com","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin returned %d: %s", rec.Code, rec.Body.String())
	}
	if payload["userName"] != "Ada" {
		t.Fatalf("unexpected signin payload: %v", payload)
	}

	rec, payload = doJSON(t, server, http.MethodPost, "/api/auth/signin", "",
		`{"email":"ada@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestSignUpDuplicateEmailConflicts(t *testing.T) {
	f := &fakeData{
		getUserByEmailFn: func(ctx context.Context, email string) (store.User, error) {
			return store.User{ID: "usr_1", Email: email}, nil
		},
	}
	server := newTestServer(f)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"ada@example.com","password":"correct horse","displayName":"Ada"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(&fakeData{})

	rec, payload := doJSON(t, server, http.MethodGet, "/api/workspaces", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	rec, _ = doJSON(t, server, http.MethodGet, "/api/workspaces", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestCreatePageForbiddenForViewers(t *testing.T) {
	f := &fakeData{
		getMemberRoleFn: func(ctx context.Context, workspaceID, userID string) (string, error) {
			return "viewer", nil
		},
	}
	server := newTestServer(f)
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/workspaces/ws_1/pages", token,
		`{"title":"Roadmap"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["code"] != "FORBIDDEN" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreatePageAndFetchIt(t *testing.T) {
	var inserted store.Page
	f := &fakeData{
		insertPageFn: func(ctx context.Context, page store.Page) error {
			inserted = page
			return nil
		},
	}
	f.getPageFn = func(ctx context.Context, pageID string) (store.Page, error) {
		if inserted.ID != "" && pageID == inserted.ID {
			return inserted, nil
		}
		return store.Page{}, sql.ErrNoRows
	}
	server := newTestServer(f)
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/workspaces/ws_1/pages", token,
		`{"title":"Roadmap","icon":"🗺"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create page returned %d: %s", rec.Code, rec.Body.String())
	}
	pageID, _ := payload["id"].(string)
	if pageID == "" || payload["title"] != "Roadmap" {
		t.Fatalf("unexpected create payload: %v", payload)
	}

	rec, payload = doJSON(t, server, http.MethodGet, "/api/pages/"+pageID, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get page returned %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := payload["blocks"]; !ok {
		t.Fatalf("page payload missing blocks: %v", payload)
	}

	rec, payload = doJSON(t, server, http.MethodGet, "/api/pages/pg_missing", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing page, got %d", rec.Code)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreateBlockUnknownTypeIs422(t *testing.T) {
	server := newTestServer(&fakeData{})
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/pages/pg_1/blocks", token,
		`{"type":"callout","content":{"text":"hi"}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestRecordOperationEndpoint(t *testing.T) {
	f := &fakeData{}
	server := newTestServer(f)
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/collaboration/sessions/cs_1/operations", token,
		`{"operationType":"update","blockId":"blk_1","data":{"text":"hello"},"version":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record operation returned %d: %s", rec.Code, rec.Body.String())
	}
	operation, ok := payload["operation"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing operation: %v", payload)
	}
	if operation["operationType"] != "update" || operation["blockId"] != "blk_1" {
		t.Fatalf("unexpected operation: %v", operation)
	}
	if _, ok := payload["conflict"]; ok {
		t.Fatalf("no conflict expected: %v", payload)
	}
}

func TestRecordOperationReportsConflict(t *testing.T) {
	// A prior operation on the same block at the same version collides.
	prior := store.Operation{ID: "op_prior", SessionID: "cs_1", BlockID: "blk_1", Version: 3}
	server := newTestServer(&fakeDataWithPrior{fakeData: &fakeData{}, prior: prior})
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/collaboration/sessions/cs_1/operations", token,
		`{"operationType":"update","blockId":"blk_1","data":{"text":"hello"},"version":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record operation returned %d: %s", rec.Code, rec.Body.String())
	}
	conflict, ok := payload["conflict"].(map[string]any)
	if !ok {
		t.Fatalf("expected a conflict in the payload: %v", payload)
	}
	if conflict["conflictsWith"] != "op_prior" {
		t.Fatalf("unexpected conflict: %v", conflict)
	}
}

// fakeDataWithPrior overrides the latest-operation lookup so version
// collisions can be exercised through the REST surface.
type fakeDataWithPrior struct {
	*fakeData
	prior store.Operation
}

func (f *fakeDataWithPrior) LatestBlockOperation(ctx context.Context, sessionID, blockID string) (store.Operation, error) {
	if sessionID == f.prior.SessionID && blockID == f.prior.BlockID {
		return f.prior, nil
	}
	return store.Operation{}, sql.ErrNoRows
}

func TestResolveConflictEndpoint(t *testing.T) {
	f := &fakeData{
		getConflictFn: func(ctx context.Context, conflictID string) (store.Conflict, error) {
			return store.Conflict{ID: conflictID, SessionID: "cs_1", OperationID: "op_9"}, nil
		},
		resolveConflictFn: func(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (store.Conflict, error) {
			return store.Conflict{
				ID:          conflictID,
				SessionID:   "cs_1",
				OperationID: "op_9",
				ResolvedBy:  &resolverID,
				Resolution:  resolution,
			}, nil
		},
	}
	server := newTestServer(f)
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/collaboration/conflicts/cf_1/resolve", token,
		`{"resolution":{"keep":"op_9"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve returned %d: %s", rec.Code, rec.Body.String())
	}
	if payload["id"] != "cf_1" || payload["resolvedBy"] == nil {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestResolveUnknownConflictIs404(t *testing.T) {
	server := newTestServer(&fakeData{})
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/collaboration/conflicts/cf_missing/resolve", token,
		`{"resolution":{}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestAddMemberUnknownEmailIs422(t *testing.T) {
	server := newTestServer(&fakeData{})
	token := signUpToken(t, server)

	rec, payload := doJSON(t, server, http.MethodPost, "/api/workspaces/ws_1/members", token,
		`{"email":"nobody@example.com","role":"editor"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}
