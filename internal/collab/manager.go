// Package collab owns collaboration sessions: the per-page session registry,
// the append-only operation log, presence, and advisory conflict detection.
package collab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"quillboard/api/internal/store"
	"quillboard/api/internal/util"
)

var (
	ErrPageNotFound     = errors.New("page not found")
	ErrInvalidOperation = errors.New("invalid operation")
)

var allowedOperationTypes = map[string]struct{}{
	"insert": {},
	"delete": {},
	"update": {},
	"move":   {},
}

// Store is the persistence surface the manager needs.
type Store interface {
	PageExists(ctx context.Context, pageID string) (bool, error)
	BlockBelongsToPage(ctx context.Context, blockID, pageID string) (bool, error)

	GetOrCreateCollabSession(ctx context.Context, pageID, newID string) (store.CollabSession, error)
	GetCollabSession(ctx context.Context, sessionID string) (store.CollabSession, error)
	TouchCollabSession(ctx context.Context, sessionID string) error
	ListCollabSessions(ctx context.Context, workspaceID string) ([]store.CollabSession, error)

	UpsertPresence(ctx context.Context, presence store.Presence) error
	SetPresenceCursor(ctx context.Context, sessionID, userID string, cursor json.RawMessage) error
	SetPresenceSelection(ctx context.Context, sessionID, userID string, selection json.RawMessage) error
	SetPresenceInactive(ctx context.Context, sessionID, userID string) error
	ListActivePresence(ctx context.Context, sessionID string) ([]store.Presence, error)

	InsertOperation(ctx context.Context, op store.Operation) (store.Operation, error)
	LatestBlockOperation(ctx context.Context, sessionID, blockID string) (store.Operation, error)
	ListOperations(ctx context.Context, sessionID string) ([]store.Operation, error)

	InsertConflict(ctx context.Context, conflict store.Conflict) (store.Conflict, error)
	GetConflict(ctx context.Context, conflictID string) (store.Conflict, error)
	ResolveConflict(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (store.Conflict, error)
	ListConflicts(ctx context.Context, sessionID string) ([]store.Conflict, error)
}

type Manager struct {
	store  Store
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewManager(s Store) *Manager {
	return &Manager{
		store: s,
		locks: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing writes for one session.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.locks[sessionID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	m.locks[sessionID] = lock
	return lock
}

// Join resolves the session for a page, creating it on first use, and marks
// the user's presence active. Reconnects reuse the existing presence row.
func (m *Manager) Join(ctx context.Context, pageID, userID string) (store.CollabSession, error) {
	exists, err := m.store.PageExists(ctx, pageID)
	if err != nil {
		return store.CollabSession{}, err
	}
	if !exists {
		return store.CollabSession{}, ErrPageNotFound
	}

	session, err := m.store.GetOrCreateCollabSession(ctx, pageID, util.NewID("cs"))
	if err != nil {
		return store.CollabSession{}, err
	}

	if err := m.store.UpsertPresence(ctx, store.Presence{
		ID:        util.NewID("pr"),
		SessionID: session.ID,
		UserID:    userID,
		IsActive:  true,
	}); err != nil {
		return store.CollabSession{}, err
	}
	return session, nil
}

// Leave flips the user's presence inactive. The row is kept.
func (m *Manager) Leave(ctx context.Context, sessionID, userID string) error {
	return m.store.SetPresenceInactive(ctx, sessionID, userID)
}

// Heartbeat marks the user active and refreshes last_seen.
func (m *Manager) Heartbeat(ctx context.Context, sessionID, userID string) error {
	return m.store.UpsertPresence(ctx, store.Presence{
		ID:        util.NewID("pr"),
		SessionID: sessionID,
		UserID:    userID,
		IsActive:  true,
	})
}

func (m *Manager) UpdateCursor(ctx context.Context, sessionID, userID string, cursor json.RawMessage) error {
	return m.store.SetPresenceCursor(ctx, sessionID, userID, cursor)
}

func (m *Manager) UpdateSelection(ctx context.Context, sessionID, userID string, selection json.RawMessage) error {
	return m.store.SetPresenceSelection(ctx, sessionID, userID, selection)
}

// ActiveUsers lists the users currently marked active in a session.
func (m *Manager) ActiveUsers(ctx context.Context, sessionID string) ([]store.Presence, error) {
	return m.store.ListActivePresence(ctx, sessionID)
}

// OperationInput is a client-submitted edit before the server stamps it.
type OperationInput struct {
	Type    string
	BlockID string
	Data    json.RawMessage
	Version int64
}

// RecordOperation validates and appends an operation, detecting version
// collisions against the latest prior operation on the same block. The
// operation is stored even when it collides; the returned conflict is
// advisory and resolution is manual. Writes for one session are serialized
// so the read-latest-then-append sequence cannot interleave.
func (m *Manager) RecordOperation(ctx context.Context, sessionID, userID string, in OperationInput) (store.Operation, *store.Conflict, error) {
	if _, ok := allowedOperationTypes[in.Type]; !ok {
		return store.Operation{}, nil, fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, in.Type)
	}
	if in.BlockID == "" {
		return store.Operation{}, nil, fmt.Errorf("%w: block id is required", ErrInvalidOperation)
	}

	session, err := m.store.GetCollabSession(ctx, sessionID)
	if err != nil {
		return store.Operation{}, nil, err
	}

	belongs, err := m.store.BlockBelongsToPage(ctx, in.BlockID, session.PageID)
	if err != nil {
		return store.Operation{}, nil, err
	}
	if !belongs {
		return store.Operation{}, nil, fmt.Errorf("%w: block %s is not on page %s", ErrInvalidOperation, in.BlockID, session.PageID)
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var prior *store.Operation
	latest, err := m.store.LatestBlockOperation(ctx, sessionID, in.BlockID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return store.Operation{}, nil, err
	}
	if err == nil {
		prior = &latest
	}

	data := in.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	op, err := m.store.InsertOperation(ctx, store.Operation{
		ID:        util.NewID("op"),
		SessionID: sessionID,
		UserID:    userID,
		Type:      in.Type,
		BlockID:   in.BlockID,
		Data:      data,
		Version:   in.Version,
	})
	if err != nil {
		return store.Operation{}, nil, err
	}

	if err := m.store.TouchCollabSession(ctx, sessionID); err != nil {
		return store.Operation{}, nil, err
	}

	// Collision rule: only the most recent prior operation on the block
	// matters, and equal versions collide too.
	if prior == nil || prior.Version < op.Version {
		return op, nil, nil
	}

	conflict, err := m.store.InsertConflict(ctx, store.Conflict{
		ID:            util.NewID("cf"),
		SessionID:     sessionID,
		OperationID:   op.ID,
		ConflictsWith: prior.ID,
	})
	if err != nil {
		return store.Operation{}, nil, err
	}
	return op, &conflict, nil
}

func (m *Manager) Operations(ctx context.Context, sessionID string) ([]store.Operation, error) {
	return m.store.ListOperations(ctx, sessionID)
}

func (m *Manager) Conflicts(ctx context.Context, sessionID string) ([]store.Conflict, error) {
	return m.store.ListConflicts(ctx, sessionID)
}

// ResolveConflict stamps resolver and payload on a conflict. Re-resolving
// overwrites the previous resolution.
func (m *Manager) ResolveConflict(ctx context.Context, conflictID, resolverID string, resolution json.RawMessage) (store.Conflict, error) {
	if resolverID == "" {
		return store.Conflict{}, fmt.Errorf("%w: resolver is required", ErrInvalidOperation)
	}
	return m.store.ResolveConflict(ctx, conflictID, resolverID, resolution)
}

func (m *Manager) Sessions(ctx context.Context, workspaceID string) ([]store.CollabSession, error) {
	return m.store.ListCollabSessions(ctx, workspaceID)
}

func (m *Manager) Session(ctx context.Context, sessionID string) (store.CollabSession, error) {
	return m.store.GetCollabSession(ctx, sessionID)
}
