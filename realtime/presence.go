// Package realtime tracks which connections are watching which board and
// fans change notifications out to them. All presence state is process-local
// and rebuilt from scratch on restart; connections re-announce themselves.
package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Conn is one live client connection the registry can push events to.
type Conn interface {
	Send(event string, payload any) error
}

type presenceEntry struct {
	userID string
	conn   Conn
}

// Registry maps board ids to the set of subscribed connections and user ids
// to their current board. A user is present on at most one board at a time.
// All four entry points are atomic with respect to each other.
type Registry struct {
	mu        sync.Mutex
	boards    map[string][]presenceEntry
	userBoard map[string]string
	logger    *log.Logger
}

// NewRegistry creates an empty presence registry.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		boards:    make(map[string][]presenceEntry),
		userBoard: make(map[string]string),
		logger:    logger,
	}
}

// JoinBoard subscribes the connection to boardID. If the user was watching
// another board they are moved; rejoining the same board is idempotent.
func (r *Registry) JoinBoard(conn Conn, userID, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.userBoard[userID]; ok && previous != boardID {
		r.removeLocked(previous, userID)
	}
	r.userBoard[userID] = boardID

	for _, e := range r.boards[boardID] {
		if e.userID == userID {
			return
		}
	}
	r.boards[boardID] = append(r.boards[boardID], presenceEntry{userID: userID, conn: conn})
}

// Disconnect removes the user's entry from their current board. Boards with
// no remaining viewers are dropped entirely to bound memory.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	boardID, ok := r.userBoard[userID]
	if !ok {
		return
	}
	delete(r.userBoard, userID)
	r.removeLocked(boardID, userID)
}

func (r *Registry) removeLocked(boardID, userID string) {
	entries, ok := r.boards[boardID]
	if !ok {
		return
	}
	for i, e := range entries {
		if e.userID == userID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.boards, boardID)
		return
	}
	r.boards[boardID] = entries
}

type cardsChangedPayload struct {
	Sender string `json:"sender"`
}

type cardChangedPayload struct {
	Sender  string             `json:"sender"`
	Section domain.CardSection `json:"section"`
}

// CardsChanged notifies every viewer of the board that its card list
// changed; clients refetch the list.
func (r *Registry) CardsChanged(boardID, actorID string) {
	r.emit(boardID, boardID+"_UPDATE", cardsChangedPayload{Sender: actorID})
}

// CardChanged notifies every viewer of the board that one section of a card
// changed; clients can patch just that section.
func (r *Registry) CardChanged(boardID, cardID string, section domain.CardSection, actorID string) {
	r.emit(boardID, cardID+"_UPDATE", cardChangedPayload{Sender: actorID, Section: section})
}

// emit pushes the payload to a snapshot of the board's connection set.
// Broadcasting to an unwatched board is a no-op, and a failed delivery to
// one connection never affects the others or the caller.
func (r *Registry) emit(boardID, event string, payload any) {
	r.mu.Lock()
	entries := append([]presenceEntry(nil), r.boards[boardID]...)
	r.mu.Unlock()

	for _, e := range entries {
		if err := e.conn.Send(event, payload); err != nil && r.logger != nil {
			r.logger.WithFields(log.Fields{
				"board": boardID,
				"user":  e.userID,
				"event": event,
				"error": err.Error(),
			}).Warn("broadcast delivery failed")
		}
	}
}
