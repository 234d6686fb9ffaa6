package hub

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"queueline/internal/auth"
	"queueline/internal/store"
)

var (
	ErrUnauthorized = errors.New("operator token required")
	ErrInvalidTopic = errors.New("subscription needs business_id or subject_id")
)

// Subscription selects the changes a client receives. A SubjectID narrows it
// to one entry or reservation; otherwise every change of BusinessID matches.
// The zero value matches nothing.
type Subscription struct {
	BusinessID string
	Kind       string
	SubjectID  string
}

func (s Subscription) IsZero() bool {
	return s.BusinessID == "" && s.SubjectID == ""
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	dropped int64
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	BusinessID string `json:"business_id"`
	Kind       string `json:"kind"`
	SubjectID  string `json:"subject_id"`
	Token      string `json:"token"`
}

// ChangedMessage is what clients receive. It carries no state; clients
// re-fetch whatever they display.
type ChangedMessage struct {
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	BusinessID string `json:"business_id"`
	SubjectID  string `json:"subject_id,omitempty"`
}

type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
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
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Broadcast fans a change out to every matching client. A client whose
// buffer is full misses the message.
func (h *Hub) Broadcast(change store.Change) {
	payload, err := json.Marshal(ChangedMessage{
		Type:       "changed",
		Kind:       change.Kind,
		BusinessID: change.BusinessID,
		SubjectID:  change.SubjectID,
	})
	if err != nil {
		log.Printf("hub encode error: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		if !match(client.Subscription, change) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.dropped++
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func match(sub Subscription, change store.Change) bool {
	if sub.IsZero() {
		return false
	}
	if sub.SubjectID != "" {
		if change.SubjectID != sub.SubjectID {
			return false
		}
		return sub.Kind == "" || sub.Kind == change.Kind
	}
	if change.BusinessID != sub.BusinessID {
		return false
	}
	return sub.Kind == "" || sub.Kind == change.Kind
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	msg.BusinessID = strings.TrimSpace(msg.BusinessID)
	msg.SubjectID = strings.TrimSpace(msg.SubjectID)
	return msg, true
}

// Resolve turns a subscribe request into a Subscription. Subject-scoped
// subscriptions need no token: knowing the id is the capability.
// Business-wide ones require a token allowed to operate that business.
func Resolve(msg SubscribeMessage, verifier TokenVerifier) (Subscription, error) {
	if msg.SubjectID != "" {
		return Subscription{Kind: msg.Kind, SubjectID: msg.SubjectID}, nil
	}
	if msg.BusinessID == "" {
		return Subscription{}, ErrInvalidTopic
	}
	if msg.Token == "" || verifier == nil {
		return Subscription{}, ErrUnauthorized
	}
	claims, err := verifier.Verify(msg.Token)
	if err != nil || !claims.CanOperate(msg.BusinessID) {
		return Subscription{}, ErrUnauthorized
	}
	return Subscription{BusinessID: msg.BusinessID, Kind: msg.Kind}, nil
}
