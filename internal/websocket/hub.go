// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "ses-portal/internal/domain/websocket"

	"go.uber.org/zap"
)

type Hub struct {
	// Registered clients by user ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage

	done   chan struct{}
	logger *zap.Logger
}

// BroadcastMessage targets the clients of UserIDs, or every client when
// UserIDs is nil. A non-empty TrackingID narrows delivery to one session.
type BroadcastMessage struct {
	UserIDs    []int64
	TrackingID string
	Channel    wstypes.ChannelType
	Message    *wstypes.WSMessage
	// Disconnect closes every matched client once the message is queued.
	Disconnect bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	h.logger.Info("client connected",
		zap.Int64("user_id", client.userID),
		zap.String("tracking_id", client.trackingID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id":     client.userID,
		"tracking_id": client.trackingID,
		"role_id":     client.roleID,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(client)
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Info("client disconnected",
		zap.Int64("user_id", client.userID),
		zap.String("tracking_id", client.trackingID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				targets = append(targets, client)
			}
		}
	} else {
		for _, userID := range msg.UserIDs {
			for client := range h.clients[userID] {
				targets = append(targets, client)
			}
		}
	}

	for _, client := range targets {
		if msg.TrackingID != "" && client.trackingID != msg.TrackingID {
			continue
		}
		delivered := true
		if client.IsSubscribed(msg.Channel) {
			delivered = client.SendMessage(msg.Message)
		}
		// slow consumers are dropped rather than allowed to block the hub
		if msg.Disconnect || !delivered {
			h.remove(client)
		}
	}
}

// ForceLogout tells every connection of userID that its sessions were
// revoked, then disconnects them.
func (h *Hub) ForceLogout(userID int64, reason string) {
	h.enqueue(&BroadcastMessage{
		UserIDs: []int64{userID},
		Channel: wstypes.ChannelSession,
		Message: wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			Reason:  reason,
			Message: "Your sessions were ended by an administrator",
		}),
		Disconnect: true,
	})
}

// SessionEnded notifies the connections of one session that it is over.
func (h *Hub) SessionEnded(userID int64, trackingID, reason string) {
	if trackingID == "" {
		return
	}
	h.enqueue(&BroadcastMessage{
		UserIDs:    []int64{userID},
		TrackingID: trackingID,
		Channel:    wstypes.ChannelSession,
		Message: wstypes.NewMessage(wstypes.EventTypeSessionEnded, wstypes.SessionEventData{
			TrackingID: trackingID,
			Reason:     reason,
			Message:    "Your session has ended",
		}),
		Disconnect: true,
	})
}

// enqueue never blocks the caller, which is usually a request handler.
func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("realtime queue full, notice dropped", zap.String("type", string(msg.Message.Type)))
	}
}

func (h *Hub) GetConnectedClients(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID int64) bool {
	return h.GetConnectedClients(userID) > 0
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
