package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	subscriberBuf  = 64
	maxClientFrame = 4096
)

// Update is a message patch pushed to chat subscribers.
type Update struct {
	MessageID string      `json:"message_id"`
	Content   *string     `json:"content,omitempty"`
	Thinking  *string     `json:"thinking,omitempty"`
	Sources   []ai.Source `json:"sources,omitempty"`
	Type      string      `json:"type,omitempty"`
}

type subscriber struct {
	id     string
	chatID string
	conn   *websocket.Conn
	send   chan Update
}

// Hub fans message updates out to websocket subscribers of a chat.
type Hub struct {
	mu       sync.RWMutex
	chats    map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		chats: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish delivers u to every subscriber of chatID. Slow subscribers drop
// updates rather than block the generation.
func (h *Hub) Publish(chatID string, u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.chats[chatID] {
		select {
		case sub.send <- u:
		default:
			slog.Warn("ws_update_dropped", "subscriber", sub.id, "chat_id", chatID, "message_id", u.MessageID)
		}
	}
}

// Subscribers returns the number of subscribers of chatID.
func (h *Hub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

// ServeChat upgrades the request and streams chatID's updates until the
// client goes away.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request, chatID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws_upgrade_failed", "chat_id", chatID, "error", err)
		return
	}

	sub := &subscriber{
		id:     uuid.NewString(),
		chatID: chatID,
		conn:   conn,
		send:   make(chan Update, subscriberBuf),
	}
	h.add(sub)

	go sub.writePump()
	sub.readPump()
	h.remove(sub)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.chats[sub.chatID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.chats[sub.chatID] = subs
	}
	subs[sub] = struct{}{}
	slog.Info("ws_subscribed", "subscriber", sub.id, "chat_id", sub.chatID, "subscribers", len(subs))
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.chats[sub.chatID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.chats, sub.chatID)
	}
	close(sub.send)
	slog.Info("ws_unsubscribed", "subscriber", sub.id, "chat_id", sub.chatID)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.chats {
		for sub := range subs {
			sub.conn.Close()
		}
	}
}

// readPump only handles control frames; clients do not send data.
func (s *subscriber) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxClientFrame)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws_read_error", "subscriber", s.id, "error", err)
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case u, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(u); err != nil {
				slog.Debug("ws_write_error", "subscriber", s.id, "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastUpdater persists patches with next and then publishes them.
type BroadcastUpdater struct {
	next chat.MessageUpdater
	hub  *Hub
}

// NewBroadcastUpdater wraps next so every successful write reaches hub.
func NewBroadcastUpdater(next chat.MessageUpdater, hub *Hub) *BroadcastUpdater {
	return &BroadcastUpdater{next: next, hub: hub}
}

func (b *BroadcastUpdater) UpdateMessage(ctx context.Context, chatID, messageID string, patch chat.MessagePatch) error {
	if err := b.next.UpdateMessage(ctx, chatID, messageID, patch); err != nil {
		return err
	}
	b.hub.Publish(chatID, Update{
		MessageID: messageID,
		Content:   patch.Content,
		Thinking:  patch.Thinking,
		Sources:   patch.Sources,
		Type:      patch.Type,
	})
	return nil
}
