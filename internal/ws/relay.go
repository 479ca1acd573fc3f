package ws

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay implements plugin.UIIntegration by forwarding every UI mutation a
// plugin makes (menus, toolbars, dock widgets, pages) as a broadcast over the
// Hub, for a connected browser shell to render, and by invoking a plugin's
// registered callback when that shell reports a user action back over the
// socket. It is the Host's UIIntegration collaborator when no native desktop
// shell is attached (see internal/host.Builder.UI).
type Relay struct {
	hub    *Hub
	logger *zap.Logger

	mu       sync.Mutex
	actions  map[string]func()
	menus    map[string]struct{}
	toolbars map[string]struct{}
	owners   map[string]string // page/dock-widget name -> owning plugin
}

// NewRelay creates a Relay broadcasting over hub.
func NewRelay(hub *Hub, logger *zap.Logger) *Relay {
	return &Relay{
		hub:      hub,
		logger:   logger,
		actions:  make(map[string]func()),
		menus:    make(map[string]struct{}),
		toolbars: make(map[string]struct{}),
		owners:   make(map[string]string),
	}
}

// Invoke fires the callback registered for actionID, called by Handler when
// a shell reports a ui.invoke message.
func (r *Relay) Invoke(actionID string) error {
	r.mu.Lock()
	fn, ok := r.actions[actionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("ws: unknown UI action %q", actionID)
	}
	fn()
	return nil
}

func (r *Relay) registerAction(fn func()) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.actions[id] = fn
	r.mu.Unlock()
	return id
}

func (r *Relay) broadcast(action, name, label, actionID string) {
	r.hub.Broadcast(Message{
		Type: MessageUIAction,
		Data: UIActionData{Action: action, Name: name, Label: label, ActionID: actionID},
	})
}

// FindMenu implements plugin.UIIntegration.
func (r *Relay) FindMenu(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.menus[name]
	return name, ok
}

// AddMenu implements plugin.UIIntegration.
func (r *Relay) AddMenu(name string) (any, error) {
	r.mu.Lock()
	r.menus[name] = struct{}{}
	r.mu.Unlock()
	r.broadcast("add_menu", name, "", "")
	return name, nil
}

// AddMenuAction implements plugin.UIIntegration.
func (r *Relay) AddMenuAction(menu any, label string, onClick func()) error {
	name, ok := menu.(string)
	if !ok {
		return fmt.Errorf("ws: menu handle must come from FindMenu/AddMenu")
	}
	id := r.registerAction(onClick)
	r.broadcast("add_menu_action", name, label, id)
	return nil
}

// AddToolbar implements plugin.UIIntegration.
func (r *Relay) AddToolbar(name string) (any, error) {
	r.mu.Lock()
	r.toolbars[name] = struct{}{}
	r.mu.Unlock()
	r.broadcast("add_toolbar", name, "", "")
	return name, nil
}

// AddToolbarAction implements plugin.UIIntegration.
func (r *Relay) AddToolbarAction(toolbar any, label string, onClick func()) error {
	name, ok := toolbar.(string)
	if !ok {
		return fmt.Errorf("ws: toolbar handle must come from AddToolbar")
	}
	id := r.registerAction(onClick)
	r.broadcast("add_toolbar_action", name, label, id)
	return nil
}

// AddDockWidget implements plugin.UIIntegration. Host.RegisterUIComponent
// calls this with the owning plugin's own name, which doubles as the widget's
// identity for CleanupPlugin.
func (r *Relay) AddDockWidget(name string, _ any) error {
	r.mu.Lock()
	r.owners[name] = name
	r.mu.Unlock()
	r.broadcast("add_dock_widget", name, "", "")
	return nil
}

// AddPage implements plugin.UIIntegration. Host.RegisterUIComponent calls
// this with the owning plugin's own name, which doubles as the page's
// identity for CleanupPlugin.
func (r *Relay) AddPage(name string, _ any) error {
	r.mu.Lock()
	r.owners[name] = name
	r.mu.Unlock()
	r.broadcast("add_page", name, "", "")
	return nil
}

// RemovePage implements plugin.UIIntegration.
func (r *Relay) RemovePage(name string) error {
	r.mu.Lock()
	delete(r.owners, name)
	r.mu.Unlock()
	r.broadcast("remove_page", name, "", "")
	return nil
}

// CleanupPlugin implements plugin.UIIntegration, removing any page or dock
// widget owned by pluginName and broadcasting a teardown to connected shells.
func (r *Relay) CleanupPlugin(pluginName string) error {
	r.mu.Lock()
	if _, ok := r.owners[pluginName]; ok {
		delete(r.owners, pluginName)
	}
	r.mu.Unlock()
	r.broadcast("cleanup_plugin", pluginName, "", "")
	return nil
}
