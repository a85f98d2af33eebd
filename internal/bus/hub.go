// Package bus is the progress fan-out channel: every task mutation is
// published as a task_update event to connected websocket observers.
// Delivery is best-effort with no replay; late joiners poll the registry.
package bus

import (
	"context"

	"genserver/internal/domain"
	"genserver/internal/ports"

	"github.com/rs/zerolog/log"
)

var _ ports.Notifier = (*Hub)(nil)

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.Event
	clients    map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan domain.Event, 64),
		clients:    make(map[*Client]struct{}),
	}
}

// Run owns the client set; it is the only goroutine that touches it.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close()
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			log.Ctx(ctx).Info().Int("clients", len(h.clients)).Msg("progress observer connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(ev.TaskID) {
					continue
				}
				select {
				case c.send <- ev:
				default:
					// Observer cannot keep up; drop it rather than queue.
					delete(h.clients, c)
					c.close()
				}
			}
		}
	}
}

// Publish fans a task snapshot out to every interested observer.
func (h *Hub) Publish(taskID string, t domain.Task) {
	task := t
	ev := domain.Event{Type: domain.EventTaskUpdate, TaskID: taskID, Task: &task}
	select {
	case h.broadcast <- ev:
	default:
		// Bus saturated; progress events are droppable by contract.
		log.Warn().Str("task_id", taskID).Msg("progress bus full, update dropped")
	}
}
