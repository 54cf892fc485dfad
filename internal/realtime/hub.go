// Package realtime pushes assignment lifecycle events to connected
// customers and providers over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const sendBuffer = 32

var ErrClientBufferFull = errors.New("client send buffer is full")

// Message is the frame written to every socket.
type Message struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      assignments.Event `json:"data"`
}

// Hub tracks open sockets per user. A user may hold several connections,
// one per device.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
	logg    *logger.Logger
	now     func() time.Time
}

func NewHub(logg *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		logg:    logg,
		now:     time.Now,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.shutdown()
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Connected reports how many sockets the user currently holds.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify implements assignments.Notifier. The event goes to the booking
// owner and the assigned provider; users without a socket are skipped.
func (h *Hub) Notify(ctx context.Context, event assignments.Event) error {
	frame, err := json.Marshal(Message{
		Type:      string(event.Kind),
		Timestamp: h.now().UTC(),
		Data:      event,
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, userID := range recipients(event) {
		if err := h.SendToUser(ctx, userID, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendToUser queues frame on every socket of the user. A socket whose
// buffer is full is dropped.
func (h *Hub) SendToUser(ctx context.Context, userID uuid.UUID, frame []byte) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var slow []*client
	for _, c := range targets {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.unregister(c)
	}
	if len(slow) > 0 {
		if h.logg != nil {
			h.logg.Warn(h.logg.WithField(ctx, "user_id", userID.String()), "dropped slow websocket client")
		}
		return ErrClientBufferFull
	}
	return nil
}

func recipients(event assignments.Event) []uuid.UUID {
	out := make([]uuid.UUID, 0, 2)
	for _, id := range []uuid.UUID{event.CustomerUserID, event.ProviderUserID} {
		if id == uuid.Nil {
			continue
		}
		if len(out) == 1 && out[0] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
