package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"quillboard/api/internal/collab"
	"quillboard/api/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

// Collab is the slice of the collaboration manager the gateway drives.
type Collab interface {
	Join(ctx context.Context, pageID, userID string) (store.CollabSession, error)
	Leave(ctx context.Context, sessionID, userID string) error
	Heartbeat(ctx context.Context, sessionID, userID string) error
	UpdateCursor(ctx context.Context, sessionID, userID string, cursor json.RawMessage) error
	UpdateSelection(ctx context.Context, sessionID, userID string, selection json.RawMessage) error
	ActiveUsers(ctx context.Context, sessionID string) ([]store.Presence, error)
	RecordOperation(ctx context.Context, sessionID, userID string, in collab.OperationInput) (store.Operation, *store.Conflict, error)
}

// VerifyToken authenticates a raw bearer token and returns the user it
// belongs to.
type VerifyToken func(ctx context.Context, token string) (userID, displayName string, err error)

// Gateway upgrades page connections to websockets and fans frames out to
// everyone editing the same page.
type Gateway struct {
	collab   Collab
	verify   VerifyToken
	rooms    *Rooms
	upgrader websocket.Upgrader
}

func NewGateway(c Collab, verify VerifyToken, allowedOrigin string) *Gateway {
	return &Gateway{
		collab: c,
		verify: verify,
		rooms:  NewRooms(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandlePage authenticates the request, joins the page's collaboration
// session and then upgrades the connection. Auth and page checks happen
// before the upgrade so the client sees a plain HTTP status on failure.
func (g *Gateway) HandlePage(w http.ResponseWriter, r *http.Request, pageID string) {
	token := requestToken(r)
	if token == "" {
		httpError(w, http.StatusUnauthorized, "missing token")
		return
	}
	userID, _, err := g.verify(r.Context(), token)
	if err != nil {
		httpError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	session, err := g.collab.Join(r.Context(), pageID, userID)
	if err != nil {
		if errors.Is(err, collab.ErrPageNotFound) {
			httpError(w, http.StatusNotFound, "page not found")
			return
		}
		log.Printf(`{"event":"ws_join_failed","page_id":%q,"error":%q}`, pageID, err.Error())
		httpError(w, http.StatusInternalServerError, "could not join session")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own response; undo the join.
		_ = g.collab.Leave(context.Background(), session.ID, userID)
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		pageID:    pageID,
		sessionID: session.ID,
		userID:    userID,
	}
	g.rooms.join(c)
	go c.writePump()

	g.sendInitialState(r.Context(), c, session)
	g.broadcastPresence(r.Context(), c)

	g.readLoop(r.Context(), c)

	g.rooms.leave(c)
	close(c.send)
	if err := g.collab.Leave(context.Background(), c.sessionID, c.userID); err != nil {
		log.Printf(`{"event":"ws_leave_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
	}
	g.broadcastPresence(context.Background(), c)
}

func (g *Gateway) sendInitialState(ctx context.Context, c *client, session store.CollabSession) {
	users, err := g.collab.ActiveUsers(ctx, session.ID)
	if err != nil {
		log.Printf(`{"event":"ws_presence_list_failed","session_id":%q,"error":%q}`, session.ID, err.Error())
		users = nil
	}
	if msg, err := marshalFrame(initialStateFrame{Type: frameInitialState, SessionID: session.ID, PageID: session.PageID, ActiveUsers: presenceListJSON(users)}); err == nil {
		c.trySend(msg)
	}
}

// broadcastPresence pushes the refreshed active-user list to the whole room,
// the sender included.
func (g *Gateway) broadcastPresence(ctx context.Context, c *client) {
	users, err := g.collab.ActiveUsers(ctx, c.sessionID)
	if err != nil {
		log.Printf(`{"event":"ws_presence_list_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		return
	}
	msg, err := marshalFrame(presenceUpdateFrame{Type: framePresenceUpdate, Users: presenceListJSON(users)})
	if err != nil {
		return
	}
	g.rooms.broadcast(c.pageID, nil, msg)
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			log.Printf(`{"event":"ws_bad_message","session_id":%q,"error":%q}`, c.sessionID, err.Error())
			continue
		}

		switch env.Type {
		case msgOperation:
			g.handleOperation(ctx, c, raw)
		case msgCursorUpdate:
			g.handleCursor(ctx, c, raw)
		case msgSelectionUpdate:
			g.handleSelection(ctx, c, raw)
		case msgPresence, msgHeartbeat:
			g.handleHeartbeat(ctx, c)
		default:
			log.Printf(`{"event":"ws_unknown_type","session_id":%q,"type":%q}`, c.sessionID, env.Type)
		}
	}
}

func (g *Gateway) handleOperation(ctx context.Context, c *client, raw []byte) {
	var msg operationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf(`{"event":"ws_bad_message","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		return
	}
	op, conflict, err := g.collab.RecordOperation(ctx, c.sessionID, c.userID, collab.OperationInput{
		Type:    msg.OperationType,
		BlockID: msg.BlockID,
		Data:    msg.Data,
		Version: msg.Version,
	})
	if err != nil {
		code := "operation_failed"
		if errors.Is(err, collab.ErrInvalidOperation) {
			code = "invalid_operation"
		} else {
			log.Printf(`{"event":"ws_operation_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		}
		c.sendError(code, err.Error())
		return
	}
	out := operationFrame{Type: frameOperation, Operation: operationJSON(op)}
	if conflict != nil {
		out.Conflict = conflictJSON(*conflict)
	}
	frame, err := marshalFrame(out)
	if err != nil {
		return
	}
	// No echo to the sender. Conflicts are surfaced through the conflicts
	// listing, not the socket.
	g.rooms.broadcast(c.pageID, c, frame)
}

func (g *Gateway) handleCursor(ctx context.Context, c *client, raw []byte) {
	var msg cursorMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if err := g.collab.UpdateCursor(ctx, c.sessionID, c.userID, msg.Position); err != nil {
		log.Printf(`{"event":"ws_cursor_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		return
	}
	if frame, err := marshalFrame(cursorFrame{Type: frameCursorPosition, UserID: c.userID, Position: msg.Position}); err == nil {
		g.rooms.broadcast(c.pageID, c, frame)
	}
}

func (g *Gateway) handleSelection(ctx context.Context, c *client, raw []byte) {
	var msg selectionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if err := g.collab.UpdateSelection(ctx, c.sessionID, c.userID, msg.Range); err != nil {
		log.Printf(`{"event":"ws_selection_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		return
	}
	if frame, err := marshalFrame(selectionFrame{Type: frameSelectionRange, UserID: c.userID, Range: msg.Range}); err == nil {
		g.rooms.broadcast(c.pageID, c, frame)
	}
}

// handleHeartbeat marks the sender active and broadcasts the refreshed
// active-user list to everyone in the room.
func (g *Gateway) handleHeartbeat(ctx context.Context, c *client) {
	if err := g.collab.Heartbeat(ctx, c.sessionID, c.userID); err != nil {
		log.Printf(`{"event":"ws_heartbeat_failed","session_id":%q,"error":%q}`, c.sessionID, err.Error())
		return
	}
	g.broadcastPresence(ctx, c)
}

func (c *client) sendError(code, message string) {
	if frame, err := marshalFrame(errorFrame{Type: frameError, Code: code, Message: message}); err == nil {
		c.trySend(frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// requestToken pulls the bearer token from the Authorization header, falling
// back to the token query parameter since browser websocket clients cannot
// set headers.
func requestToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message},
	})
}
