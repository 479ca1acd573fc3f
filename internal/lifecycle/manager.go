// Package lifecycle implements the per-plugin state machine, lifecycle-hook
// execution, and UI-readiness signaling, grounded in internal/registry's
// lock discipline (a coarse registry lock plus
// per-concern bookkeeping) but split into the three independent locks the
// design calls for: state, hook recursion, and UI-integration records.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// record is an arena entry: a handle to the plugin instance, not an owning
// pointer (design notes §9) — lookups against a torn-down plugin simply miss.
type record struct {
	name     string
	instance plugin.Plugin
	manifest *plugin.Manifest
	hooks    map[plugin.HookKind]plugin.HookFunc
}

// Manager is the Lifecycle Manager. It owns no plugin's memory; it only
// tracks state transitions, hook dispatch, and UI readiness for plugins
// registered with it.
type Manager struct {
	logger *zap.Logger
	mt     plugin.MainThreadExecutor

	stateMu sync.RWMutex
	records map[string]*record
	states  map[string]plugin.State

	hookMu        sync.Mutex
	hookRecursion map[string]bool // "{plugin}:{hook}" currently executing

	uiMu       sync.Mutex
	uiByPlugin map[string]plugin.UIIntegration
	uiReady    map[string]chan struct{}
}

// New constructs an empty Manager. mt may be nil; when nil, UI-affecting
// hooks run inline on the calling goroutine.
func New(logger *zap.Logger, mt plugin.MainThreadExecutor) *Manager {
	return &Manager{
		logger:        logger,
		mt:            mt,
		records:       make(map[string]*record),
		states:        make(map[string]plugin.State),
		hookRecursion: make(map[string]bool),
		uiByPlugin:    make(map[string]plugin.UIIntegration),
		uiReady:       make(map[string]chan struct{}),
	}
}

// Discover registers a plugin instance at state Discovered.
func (m *Manager) Discover(name string, instance plugin.Plugin, manifest *plugin.Manifest) {
	hooks := map[plugin.HookKind]plugin.HookFunc{}
	if hp, ok := instance.(plugin.HookProvider); ok {
		hooks = hp.Hooks()
	}

	m.stateMu.Lock()
	m.records[name] = &record{name: name, instance: instance, manifest: manifest, hooks: hooks}
	m.states[name] = plugin.StateDiscovered
	m.stateMu.Unlock()

	m.uiMu.Lock()
	m.uiReady[name] = make(chan struct{})
	m.uiMu.Unlock()
}

// State returns a plugin's current state.
func (m *Manager) State(name string) (plugin.State, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	s, ok := m.states[name]
	return s, ok
}

// transition validates and applies a state change, logging on success.
func (m *Manager) transition(name string, to plugin.State) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	from, ok := m.states[name]
	if !ok {
		return fmt.Errorf("lifecycle: unknown plugin %q", name)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("lifecycle: invalid transition %s -> %s for plugin %q", from, to, name)
	}
	m.states[name] = to
	m.logger.Debug("plugin state transition", zap.String("plugin", name), zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

func (m *Manager) fail(name string, cause error) error {
	m.stateMu.Lock()
	m.states[name] = plugin.StateFailed
	m.stateMu.Unlock()
	m.logger.Error("plugin entered Failed state", zap.String("plugin", name), zap.Error(cause))
	return cause
}

// Initialize advances a plugin from Discovered through Loading,
// Initializing, Initialized, executing pre/post hooks the manifest declares
// for the equivalent install/enable transitions is the Installer's job; here
// Initialize only runs the plugin's own Initialize(ctx, host) method.
func (m *Manager) Initialize(ctx context.Context, name string, host plugin.Host) error {
	if err := m.transition(name, plugin.StateLoading); err != nil {
		return err
	}
	if err := m.transition(name, plugin.StateInitializing); err != nil {
		return err
	}

	m.stateMu.RLock()
	rec, ok := m.records[name]
	m.stateMu.RUnlock()
	if !ok {
		return fmt.Errorf("lifecycle: unknown plugin %q", name)
	}

	if err := rec.instance.Initialize(ctx, host); err != nil {
		return m.fail(name, &plugin.LifecycleHookError{Plugin: name, Hook: plugin.HookPreEnable, Cause: err})
	}
	return m.transition(name, plugin.StateInitialized)
}

// SignalUIReady transitions a plugin to UiReady, calls its OnUIReady hook if
// implemented, records the UI Integration collaborator, and closes the
// plugin's readiness flag so WaitForUIReady callers unblock.
func (m *Manager) SignalUIReady(ctx context.Context, name string, ui plugin.UIIntegration) error {
	if err := m.transition(name, plugin.StateUIReady); err != nil {
		return err
	}

	m.uiMu.Lock()
	m.uiByPlugin[name] = ui
	ch := m.uiReady[name]
	m.uiMu.Unlock()

	m.stateMu.RLock()
	rec := m.records[name]
	m.stateMu.RUnlock()

	if rec != nil {
		if uiPlugin, ok := rec.instance.(plugin.UIReadyPlugin); ok {
			if err := uiPlugin.OnUIReady(ctx, ui); err != nil {
				return m.fail(name, err)
			}
		}
	}

	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

// WaitForUIReady blocks until SignalUIReady has run for name, ctx
// cancellation, or timeout (zero means no timeout), whichever comes first.
func (m *Manager) WaitForUIReady(ctx context.Context, name string, timeout time.Duration) error {
	m.uiMu.Lock()
	ch, ok := m.uiReady[name]
	m.uiMu.Unlock()
	if !ok {
		return fmt.Errorf("lifecycle: unknown plugin %q", name)
	}

	if timeout <= 0 {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("lifecycle: timed out waiting for %q to become ui-ready", name)
	}
}

// Activate transitions a plugin to Active.
func (m *Manager) Activate(name string) error {
	return m.transition(name, plugin.StateActive)
}

// Disable drives a plugin Active -> Disabling -> Inactive, running its
// pre_disable/post_disable hooks.
func (m *Manager) Disable(ctx context.Context, name string) error {
	if err := m.transition(name, plugin.StateDisabling); err != nil {
		return err
	}
	if err := m.RunHook(ctx, name, plugin.HookPreDisable); err != nil {
		return m.fail(name, err)
	}
	if err := m.transition(name, plugin.StateInactive); err != nil {
		return err
	}
	if err := m.RunHook(ctx, name, plugin.HookPostDisable); err != nil {
		m.logger.Warn("post_disable hook failed", zap.String("plugin", name), zap.Error(err))
	}
	return nil
}

// ReEnable transitions Inactive -> Discovered so the plugin can be
// initialized again.
func (m *Manager) ReEnable(name string) error {
	return m.transition(name, plugin.StateDiscovered)
}

// Shutdown calls the plugin's Shutdown exactly once, cleans up its UI
// integration record, and does not alter its recorded state (the caller
// decides whether to transition to Inactive/Discovered per the Installer's
// own contract).
func (m *Manager) Shutdown(ctx context.Context, name string) error {
	m.stateMu.RLock()
	rec, ok := m.records[name]
	m.stateMu.RUnlock()
	if !ok {
		return fmt.Errorf("lifecycle: unknown plugin %q", name)
	}
	err := rec.instance.Shutdown(ctx)
	m.CleanupUI(name)
	return err
}

// RunHook executes the named hook on the plugin, suppressing re-entrant
// recursion into the same "{plugin}:{hook}" key (logged, not erred) and
// routing UI-affecting hooks to the main-thread executor when one is
// configured and the caller isn't already on it.
func (m *Manager) RunHook(ctx context.Context, name string, hook plugin.HookKind) error {
	m.stateMu.RLock()
	rec, ok := m.records[name]
	m.stateMu.RUnlock()
	if !ok {
		return fmt.Errorf("lifecycle: unknown plugin %q", name)
	}
	fn, declared := rec.hooks[hook]
	if !declared {
		return nil
	}

	key := name + ":" + string(hook)
	m.hookMu.Lock()
	if m.hookRecursion[key] {
		m.hookMu.Unlock()
		m.logger.Warn("suppressed recursive hook invocation", zap.String("key", key))
		return nil
	}
	m.hookRecursion[key] = true
	m.hookMu.Unlock()
	defer func() {
		m.hookMu.Lock()
		delete(m.hookRecursion, key)
		m.hookMu.Unlock()
	}()

	m.uiMu.Lock()
	ui := m.uiByPlugin[name]
	m.uiMu.Unlock()
	hctx := plugin.HookContext{PluginName: name, Hook: hook, UI: ui}

	run := func() error { return fn(ctx, hctx) }

	if hook.IsUIAffecting() && m.mt != nil && !m.mt.IsMainThread() {
		_, err := m.mt.RunOnMainThreadSync(func() (any, error) {
			return nil, run()
		})
		if err != nil {
			return &plugin.LifecycleHookError{Plugin: name, Hook: hook, Cause: err}
		}
		return nil
	}

	if err := run(); err != nil {
		return &plugin.LifecycleHookError{Plugin: name, Hook: hook, Cause: err}
	}
	return nil
}

// CleanupUI removes a plugin's UI integration record and resets its
// readiness flag; safe to call multiple times.
func (m *Manager) CleanupUI(name string) {
	m.uiMu.Lock()
	defer m.uiMu.Unlock()
	if ui, ok := m.uiByPlugin[name]; ok && ui != nil {
		_ = ui.CleanupPlugin(name)
	}
	delete(m.uiByPlugin, name)
	if ch, ok := m.uiReady[name]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
	m.uiReady[name] = make(chan struct{})
}

// Resolve implements plugin.PluginResolver by handle lookup: it returns
// the live instance only while the manager still tracks the name.
func (m *Manager) Resolve(name string) (plugin.Plugin, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, false
	}
	return rec.instance, true
}

// Forget removes a plugin's record entirely (used by the Installer on
// uninstall, after Shutdown has already run).
func (m *Manager) Forget(name string) {
	m.stateMu.Lock()
	delete(m.records, name)
	delete(m.states, name)
	m.stateMu.Unlock()

	m.uiMu.Lock()
	delete(m.uiByPlugin, name)
	delete(m.uiReady, name)
	m.uiMu.Unlock()
}
