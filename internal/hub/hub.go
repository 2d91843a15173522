// Package hub fans committed status transitions out to live subscribers.
package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Subscription scopes what a client receives: a public tracking view sets
// TrackingNumber, an artisan dashboard sets ArtisanID. Both may be set.
type Subscription struct {
	TrackingNumber string
	ArtisanID      string
}

// Meta describes who an event concerns. ArtisanIDs carries every candidate
// the event addresses (offers and withdrawals), not just the assignee.
type Meta struct {
	TrackingNumber string
	ArtisanIDs     []string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action         string `json:"action"`
	TrackingNumber string `json:"tracking_number"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

// Broadcast delivers to every matching client without blocking: a subscriber
// that cannot keep up loses the message, never the registry's write path.
func (h *Hub) Broadcast(payload []byte, meta Meta) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !Match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func Match(sub Subscription, meta Meta) bool {
	if sub.TrackingNumber != "" && sub.TrackingNumber == meta.TrackingNumber {
		return true
	}
	if sub.ArtisanID != "" {
		for _, id := range meta.ArtisanIDs {
			if id == sub.ArtisanID {
				return true
			}
		}
	}
	return false
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
