// Package hub keeps the set of websocket clients collaborating on a single
// sheet in sync: presence, per-cell locks, and broadcasting re-evaluated
// cells after every Engine.Set. It generalizes the teacher's single-sheet
// Server (clients map[*websocket.Conn]bool, broadcastAll) to many named
// participants and the presence/locking behavior the original TypeScript
// frontend expected of its Rust backend (see DESIGN.md's Open Question (c)).
package hub

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"gridsheet/internal/engine"
	"gridsheet/internal/grid"
)

// client is one connected browser tab.
type client struct {
	conn   *websocket.Conn
	userID string
	send   chan interface{}
}

// Hub owns one sheet's Engine plus the collaborative state layered on top
// of it: who is connected, and which cells are locked by whom.
type Hub struct {
	mu      sync.Mutex
	engine  *engine.Engine
	clients map[*client]bool
	locks   map[int]string // arena index -> userID holding the lock

	logger *log.Logger

	// onUpdate, when set, is called after every successful ApplyUpdate with
	// the raw text that was written and the ChangeSet it produced, so the
	// caller can persist the write and/or fan it out over internal/bus
	// without the hub itself knowing about storage or ZeroMQ.
	onUpdate func(row, col int, raw string, cs engine.ChangeSet)
}

func New(e *engine.Engine, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		engine:  e,
		clients: make(map[*client]bool),
		locks:   make(map[int]string),
		logger:  logger,
	}
}

// OnUpdate registers fn to run after every successful ApplyUpdate. Only one
// hook is supported; callers that need both persistence and bus fan-out
// should compose them into a single fn.
func (h *Hub) OnUpdate(fn func(row, col int, raw string, cs engine.ChangeSet)) {
	h.onUpdate = fn
}

// Join registers a new connection under userID and returns the snapshot it
// should see plus the channel the write pump should drain.
func (h *Hub) Join(conn *websocket.Conn, userID string) (*client, ConnectedMsg, error) {
	snapshot := h.engine.Snapshot()
	cells := make(map[string]WireCell, len(snapshot))
	for i, cell := range snapshot {
		if cell.Raw == "" {
			continue
		}
		coord := grid.CoordAt(i, h.engine.Width())
		wc, err := newWireCell(cell.Raw, cell.Out)
		if err != nil {
			return nil, ConnectedMsg{}, err
		}
		cells[coord.A1()] = wc
	}

	c := &client{conn: conn, userID: userID, send: make(chan interface{}, 32)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.broadcastParticipants()

	return c, ConnectedMsg{
		Type:   MsgConnected,
		UserID: userID,
		Width:  h.engine.Width(),
		Height: h.engine.Height(),
		Cells:  cells,
	}, nil
}

// Leave drops a client and releases any locks it held.
func (h *Hub) Leave(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	released := make([]int, 0)
	for idx, owner := range h.locks {
		if owner == c.userID {
			delete(h.locks, idx)
			released = append(released, idx)
		}
	}
	h.mu.Unlock()

	for _, idx := range released {
		h.broadcastLock(idx, "")
	}
	h.broadcastParticipants()
}

// TryLock acquires idx for userID on a first-writer-wins basis: the lock is
// granted only if unheld or already held by the same user.
func (h *Hub) TryLock(idx int, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner, ok := h.locks[idx]; ok && owner != userID {
		return false
	}
	h.locks[idx] = userID
	return true
}

// Unlock releases idx if userID currently holds it.
func (h *Hub) Unlock(idx int, userID string) {
	h.mu.Lock()
	owner, ok := h.locks[idx]
	if ok && owner == userID {
		delete(h.locks, idx)
	}
	h.mu.Unlock()
}

// ApplyUpdate sets a cell, releases any lock the author held on it, and
// broadcasts the resulting ChangeSet to every connected client.
func (h *Hub) ApplyUpdate(row, col int, raw, userID string) error {
	idx, err := h.engine.GetIndex(row, col)
	if err != nil {
		return err
	}

	cs, err := h.engine.Set(row, col, raw)
	if err != nil {
		return err
	}

	h.Unlock(idx, userID)
	h.broadcastLock(idx, "")

	if h.onUpdate != nil {
		h.onUpdate(row, col, raw, cs)
	}

	if len(cs) == 0 {
		return nil
	}
	cells := make(map[string]WireCell, len(cs))
	for i, cell := range cs {
		coord := grid.CoordAt(i, h.engine.Width())
		wc, err := newWireCell(cell.Raw, cell.Out)
		if err != nil {
			return err
		}
		cells[coord.A1()] = wc
	}
	h.broadcast(CellUpdatedMsg{Type: MsgCellUpdated, Cell: cells})
	return nil
}

func (h *Hub) broadcastLock(idx int, ownerUserID string) {
	coord := grid.CoordAt(idx, h.engine.Width())
	h.broadcast(CellLockedMsg{Type: MsgCellLocked, Coord: coord.A1(), UserID: ownerUserID})
}

func (h *Hub) broadcastParticipants() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for c := range h.clients {
		ids = append(ids, c.userID)
	}
	h.mu.Unlock()
	h.broadcast(ParticipantsMsg{Type: MsgParticipants, UserIDs: ids})
}

func (h *Hub) broadcast(msg interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Printf("hub: dropping slow client %s", c.userID)
		}
	}
}
