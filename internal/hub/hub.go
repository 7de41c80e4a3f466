// Package hub fans live game updates out to in-process subscribers.
// Delivery is non-blocking and lossy: a subscriber whose queue is full
// misses the message, the publisher and the other subscribers never
// wait. Clients needing complete history must read the event log.
package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const DefaultCapacity = 200

// Message is one frame pushed to live observers.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscription is one observer's bounded queue for a single game.
type Subscription struct {
	C chan Message

	gameID  uuid.UUID
	dropped uint64
}

// Dropped returns how many messages this subscriber missed because its
// queue was full.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

type Hub struct {
	mu       sync.Mutex
	subs     map[uuid.UUID][]*Subscription
	capacity int
}

func New() *Hub {
	return NewWithCapacity(DefaultCapacity)
}

func NewWithCapacity(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		subs:     make(map[uuid.UUID][]*Subscription),
		capacity: capacity,
	}
}

func (h *Hub) Subscribe(gameID uuid.UUID) *Subscription {
	sub := &Subscription{
		C:      make(chan Message, h.capacity),
		gameID: gameID,
	}
	h.mu.Lock()
	h.subs[gameID] = append(h.subs[gameID], sub)
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[sub.gameID]
	for i, s := range list {
		if s == sub {
			h.subs[sub.gameID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.gameID]) == 0 {
		delete(h.subs, sub.gameID)
	}
}

// Publish offers the message to every current subscriber of the game.
// The lock covers only the subscriber snapshot, never the hand-off, so
// one stuck consumer cannot slow registration or the others' delivery.
func (h *Hub) Publish(gameID uuid.UUID, msg Message) {
	h.mu.Lock()
	subs := make([]*Subscription, len(h.subs[gameID]))
	copy(subs, h.subs[gameID])
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.C <- msg:
		default:
			atomic.AddUint64(&sub.dropped, 1) // queue full, drop for this subscriber only
		}
	}
}

// Subscribers reports how many live observers one game currently has.
func (h *Hub) Subscribers(gameID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[gameID])
}
