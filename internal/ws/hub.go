// Package ws pushes newly reconciled orders to the purchaser's open
// connections, so an order placed in one tab shows up in the history
// view without a reload.
package ws

import (
	"context"
	"encoding/json"

	"github.com/luckpoint/my-cafe-demo/internal/order"
)

type orderNotice struct {
	userID string
	order  order.OrderWithItems
}

type Client struct {
	hub    *Hub
	conn   *Conn
	send   chan []byte
	userID string
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	notify     chan orderNotice
	clients    map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan orderNotice),
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.userID] = set
			}
			set[c] = true
		case c := <-h.unregister:
			if set, ok := h.clients[c.userID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.userID)
				}
			}
		case n := <-h.notify:
			msg, _ := json.Marshal(n.order)
			if set, ok := h.clients[n.userID]; ok {
				for c := range set {
					select {
					case c.send <- msg:
					default:
						delete(set, c)
						close(c.send)
					}
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		}
	}
}

// NotifyOrder is called by the reconciler after an order is persisted.
func (h *Hub) NotifyOrder(userID string, o order.OrderWithItems) {
	go func() { h.notify <- orderNotice{userID: userID, order: o} }()
}
