package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	commonlog "team_server/server/common/log"
)

// Broadcaster is the outbound side of the realtime layer. The gateway,
// the call manager and the supervisor emit through it; Hub is the
// production implementation.
type Broadcaster interface {
	EmitToUser(userID, event string, payload any)
	EmitToGroup(groupID, event string, payload any)
	EmitGlobal(event string, payload any)
}

type Client struct {
	UserID       string
	Username     string
	ConnectionID string
	Conn         *websocket.Conn
	mu           sync.Mutex
	groups       map[string]struct{}
}

func NewClient(userID, username, connectionID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID:       userID,
		Username:     username,
		ConnectionID: connectionID,
		Conn:         conn,
		groups:       map[string]struct{}{},
	}
}

func (c *Client) WriteJSON(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.Conn.WriteJSON(payload)
}

type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const realtimeEventsChannel = "realtime:events"

type hubEvent struct {
	Kind    string          `json:"kind"` // user | group | global
	Target  string          `json:"target,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub tracks live websocket clients and their group subscriptions. One
// client per user: a re-register closes the previous connection. When a
// redis client is attached, emits fan out through pub/sub so every node
// delivers to its local connections; without redis the emit falls back
// to local-only dispatch.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	groups    map[string]map[string]*Client
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*Client{},
		groups:  map[string]map[string]*Client{},
	}
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, realtimeEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

// Register adds the client, replacing (and closing) any previous
// connection of the same user.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	previous := h.clients[client.UserID]
	h.clients[client.UserID] = client
	if previous != nil {
		for groupID := range previous.groups {
			if members, ok := h.groups[groupID]; ok {
				delete(members, previous.UserID)
			}
		}
	}
	h.mu.Unlock()
	if previous != nil {
		_ = previous.Conn.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.UserID]
	if ok && current.ConnectionID == client.ConnectionID {
		delete(h.clients, client.UserID)
		for groupID := range client.groups {
			if members, ok := h.groups[groupID]; ok {
				delete(members, client.UserID)
				if len(members) == 0 {
					delete(h.groups, groupID)
				}
			}
		}
	}
	h.mu.Unlock()
	_ = client.Conn.Close()
}

func (h *Hub) JoinGroup(client *Client, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[groupID]; !ok {
		h.groups[groupID] = map[string]*Client{}
	}
	h.groups[groupID][client.UserID] = client
	client.groups[groupID] = struct{}{}
}

func (h *Hub) EmitToUser(userID, event string, payload any) {
	if h.publish(hubEventOf("user", userID, event, payload)) {
		return
	}
	count := h.emitToUserLocal(userID, event, payload)
	commonlog.Debugf("event=realtime_hub action=local_dispatch kind=user target=%s type=%s fanout_count=%d", userID, event, count)
}

func (h *Hub) EmitToGroup(groupID, event string, payload any) {
	if h.publish(hubEventOf("group", groupID, event, payload)) {
		return
	}
	count := h.emitToGroupLocal(groupID, event, payload)
	commonlog.Debugf("event=realtime_hub action=local_dispatch kind=group target=%s type=%s fanout_count=%d", groupID, event, count)
}

func (h *Hub) EmitGlobal(event string, payload any) {
	if h.publish(hubEventOf("global", "", event, payload)) {
		return
	}
	count := h.emitGlobalLocal(event, payload)
	commonlog.Debugf("event=realtime_hub action=local_dispatch kind=global type=%s fanout_count=%d", event, count)
}

func (h *Hub) emitToUserLocal(userID, event string, payload any) int {
	h.mu.RLock()
	client := h.clients[userID]
	h.mu.RUnlock()
	if client == nil {
		return 0
	}
	client.WriteJSON(wsEvent{Type: event, Payload: payload})
	return 1
}

func (h *Hub) emitToGroupLocal(groupID, event string, payload any) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[groupID]))
	for _, client := range h.groups[groupID] {
		members = append(members, client)
	}
	h.mu.RUnlock()
	for _, client := range members {
		client.WriteJSON(wsEvent{Type: event, Payload: payload})
	}
	return len(members)
}

func (h *Hub) emitGlobalLocal(event string, payload any) int {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		all = append(all, client)
	}
	h.mu.RUnlock()
	for _, client := range all {
		client.WriteJSON(wsEvent{Type: event, Payload: payload})
	}
	return len(all)
}

func hubEventOf(kind, target, event string, payload any) hubEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return hubEvent{Kind: kind, Target: target, Event: event, Payload: raw}
}

func (h *Hub) publish(event hubEvent) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	b, err := json.Marshal(event)
	if err != nil {
		commonlog.Errorf("event=realtime_hub action=publish status=failed kind=%s type=%s error=%v", event.Kind, event.Event, err)
		return false
	}
	if err := redisClient.Publish(context.Background(), realtimeEventsChannel, b).Err(); err != nil {
		commonlog.Errorf("event=realtime_hub action=publish status=failed kind=%s type=%s error=%v", event.Kind, event.Event, err)
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		var payload any
		if len(event.Payload) > 0 {
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				continue
			}
		}
		switch event.Kind {
		case "user":
			h.emitToUserLocal(event.Target, event.Event, payload)
		case "group":
			h.emitToGroupLocal(event.Target, event.Event, payload)
		case "global":
			h.emitGlobalLocal(event.Event, payload)
		}
	}
}
