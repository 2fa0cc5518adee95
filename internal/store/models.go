package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Workspace struct {
	ID        string
	Name      string
	Slug      string
	Icon      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WorkspaceMember struct {
	ID          string
	WorkspaceID string
	UserID      string
	Role        string
	JoinedAt    time.Time
	// Joined fields for API responses
	DisplayName string
	Email       string
}

type Page struct {
	ID          string
	WorkspaceID string
	ParentID    *string
	Title       string
	Icon        string
	CoverURL    string
	CreatedBy   string
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Block struct {
	ID        string
	PageID    string
	ParentID  *string
	Type      string
	Content   json.RawMessage
	Position  float64
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CollabSession is the per-page realtime editing session. One row per page,
// created lazily on first connect.
type CollabSession struct {
	ID           string
	PageID       string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Presence is one user's state within a session. Unique per (session, user);
// rows are never deleted, disconnects flip IsActive off.
type Presence struct {
	ID        string
	SessionID string
	UserID    string
	Cursor    json.RawMessage
	Selection json.RawMessage
	IsActive  bool
	LastSeen  time.Time
	// Joined fields for API responses
	DisplayName string
	AvatarURL   string
}

// Operation is one append-only edit record. Timestamp is assigned by the
// server at insert time; Version is whatever the client sent.
type Operation struct {
	ID        string
	SessionID string
	UserID    string
	Type      string
	BlockID   string
	Data      json.RawMessage
	Version   int64
	Timestamp time.Time
}

type Conflict struct {
	ID            string
	SessionID     string
	OperationID   string
	ConflictsWith string
	ResolvedBy    *string
	Resolution    json.RawMessage
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

type Comment struct {
	ID         string
	PageID     string
	BlockID    *string
	AuthorID   string
	Body       string
	ResolvedAt *time.Time
	CreatedAt  time.Time
	// Joined fields for API responses
	AuthorName string
}

type Template struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	Kind        string
	Content     json.RawMessage
	CreatedBy   string
	CreatedAt   time.Time
}

type MediaFile struct {
	ID          string
	WorkspaceID string
	UploaderID  string
	ObjectKey   string
	Filename    string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Kind      string
	ActorID   string
	PageID    *string
	CommentID *string
	Message   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// SnapshotInfo describes one entry in a page's saved history.
type SnapshotInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
