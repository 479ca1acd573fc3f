package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// TokenValidator authenticates the query-string token a browser WebSocket
// client presents (browsers cannot set Authorization headers on WS
// upgrades), satisfied by *internal/security.ClientTokenValidator or any
// equivalent the embedding application supplies.
type TokenValidator interface {
	ValidateClientToken(token string) (subject string, err error)
}

// Handler provides the WebSocket endpoint UI clients use to observe plugin
// lifecycle transitions and bus events in real time, and to invoke UI
// actions a plugin registered through its Relay-backed UIIntegration.
type Handler struct {
	hub    *Hub
	tokens TokenValidator
	bus    plugin.EventBus
	relay  *Relay
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler sharing hub with relay (so actions
// relay broadcasts reach the same clients this handler serves) and
// subscribes it to the event bus's wildcard stream for UI broadcasting.
func NewHandler(tokens TokenValidator, bus plugin.EventBus, hub *Hub, relay *Relay, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    hub,
		tokens: tokens,
		bus:    bus,
		relay:  relay,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers the WebSocket route on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/events", h.handleEventStream)
}

// handleEventStream upgrades the connection to WebSocket and streams
// broadcast messages to the client.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ValidateClientToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan Message, 256),
		logger: h.logger,
	}
	if h.relay != nil {
		client.onInvoke = func(actionID string) {
			if err := h.relay.Invoke(actionID); err != nil {
				h.logger.Debug("UI action invoke failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards every published event to connected clients.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	h.bus.Subscribe("*", func(ev plugin.Event) {
		h.hub.Broadcast(Message{
			Type:      MessageEvent,
			Timestamp: ev.Timestamp,
			Data: EventData{
				ID:      ev.EventID,
				Type:    ev.EventType,
				Source:  ev.Source,
				Payload: ev.Payload,
			},
		})
	})

	h.logger.Info("subscribed to event bus for WebSocket broadcasting")
}

// BroadcastPluginState notifies clients of a plugin lifecycle transition,
// called by the Lifecycle Manager's state-change observers.
func (h *Handler) BroadcastPluginState(pluginName string, state plugin.State) {
	h.hub.Broadcast(Message{
		Type: MessagePluginStateChanged,
		Data: PluginStateChangedData{Plugin: pluginName, State: string(state)},
	})
}
