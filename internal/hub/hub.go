package hub

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
)

type TopicKind string

const (
	TopicTherapistQueue TopicKind = "therapist_queue"
	TopicCashierQueue   TopicKind = "cashier_queue"
	TopicMonitor        TopicKind = "monitor"
	TopicTransaction    TopicKind = "txn"
)

// Topic identifies a broadcast channel. Role queues and the monitor are
// singletons; per-transaction topics carry the transaction ID.
type Topic struct {
	Kind          TopicKind
	TransactionID string
}

func TherapistQueueTopic() Topic { return Topic{Kind: TopicTherapistQueue} }

func CashierQueueTopic() Topic { return Topic{Kind: TopicCashierQueue} }

func MonitorTopic() Topic { return Topic{Kind: TopicMonitor} }

func TransactionTopic(id string) Topic { return Topic{Kind: TopicTransaction, TransactionID: id} }

func (t Topic) String() string {
	if t.Kind == TopicTransaction {
		return "txn_" + t.TransactionID
	}
	return string(t.Kind)
}

// ParseTopic reverses String. Unknown names report false.
func ParseTopic(name string) (Topic, bool) {
	if id, ok := strings.CutPrefix(name, "txn_"); ok {
		if id == "" {
			return Topic{}, false
		}
		return TransactionTopic(id), true
	}
	switch TopicKind(name) {
	case TopicTherapistQueue, TopicCashierQueue, TopicMonitor:
		return Topic{Kind: TopicKind(name)}, true
	}
	return Topic{}, false
}

type Client struct {
	ID     string
	Send   chan []byte
	topics map[Topic]struct{}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.topics == nil {
		client.topics = make(map[Topic]struct{})
	}
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

func (h *Hub) Subscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.topics, topic)
}

// Broadcast delivers payload to every subscriber of topic. Delivery is best
// effort: a subscriber whose send buffer is full misses the message and is
// expected to resynchronize from the snapshot endpoint.
func (h *Hub) Broadcast(topic Topic, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message topic=%s client=%s", topic, client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action == "" {
		msg.Action = "subscribe"
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
