package ws

import "time"

// MessageType discriminates WebSocket messages broadcast to connected UI
// clients, mirroring the Event Bus's own event-type strings for lifecycle
// and bus events the UI cares about.
type MessageType string

const (
	MessagePluginStateChanged MessageType = "plugin.state_changed"
	MessagePluginInstalled    MessageType = "plugin.installed"
	MessagePluginUninstalled  MessageType = "plugin.uninstalled"
	MessageEvent              MessageType = "event.published"
	MessageUIAction           MessageType = "ui.action"
	MessageUIInvoke           MessageType = "ui.invoke"
)

// Message is the envelope for all WebSocket messages sent to UI clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// PluginStateChangedData is the payload for plugin.state_changed messages.
type PluginStateChangedData struct {
	Plugin string `json:"plugin"`
	State  string `json:"state"`
}

// PluginInstalledData is the payload for plugin.installed messages.
type PluginInstalledData struct {
	Plugin  string `json:"plugin"`
	Version string `json:"version"`
}

// EventData mirrors a published plugin.Event for UI display.
type EventData struct {
	ID      string         `json:"id"`
	Type    string         `json:"event_type"`
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

// UIActionData is the payload for ui.action messages: a UI mutation a plugin
// made through its UIIntegration collaborator, relayed to connected shells
// for rendering. ActionID, when set, is the token a shell echoes back in a
// ui.invoke message to fire the plugin's registered callback.
type UIActionData struct {
	Action   string `json:"action"`
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	ActionID string `json:"action_id,omitempty"`
}

// UIInvokeData is the payload a shell sends back over the socket to fire a
// previously relayed UI action's callback.
type UIInvokeData struct {
	ActionID string `json:"action_id"`
}
