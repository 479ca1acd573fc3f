// Package testutil provides shared plugin-domain fixtures: manifest
// builders and minimal fakes for the Host collaborator surface, used across
// this module's package test suites.
package testutil

import (
	"context"
	"time"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// NewManifest returns a valid Manifest with sensible defaults, suitable for
// test fixtures. Override individual fields after creation, or via opts.
func NewManifest(name string, opts ...func(*plugin.Manifest)) plugin.Manifest {
	m := plugin.Manifest{
		Name:           name,
		DisplayName:    name,
		Version:        "1.0.0",
		Description:    "test fixture plugin",
		Author:         plugin.Author{Name: "Test Author", Email: "author@example.com"},
		License:        "MIT",
		EntryPoint:     "main.Plugin",
		MinCoreVersion: "1.0.0",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithVersion sets the manifest version.
func WithVersion(v string) func(*plugin.Manifest) {
	return func(m *plugin.Manifest) { m.Version = v }
}

// WithDependency appends a dependency URL using the dependency string
// grammar, e.g. "widgets>=1.0.0".
func WithDependency(dep string) func(*plugin.Manifest) {
	return func(m *plugin.Manifest) { m.Dependencies = append(m.Dependencies, dep) }
}

// WithCapabilities sets the manifest's declared capability set.
func WithCapabilities(caps ...plugin.Capability) func(*plugin.Manifest) {
	return func(m *plugin.Manifest) { m.Capabilities = caps }
}

// WithHook registers a lifecycle hook entry point name under kind.
func WithHook(kind plugin.HookKind, entryPoint string) func(*plugin.Manifest) {
	return func(m *plugin.Manifest) {
		if m.LifecycleHooks == nil {
			m.LifecycleHooks = make(map[plugin.HookKind]string)
		}
		m.LifecycleHooks[kind] = entryPoint
	}
}

// FakePlugin is a minimal plugin.Plugin usable as a test double. Hooks, when
// set, are exposed through HookProvider.
type FakePlugin struct {
	InitErr     error
	ShutdownErr error
	Initialized bool
	ShutDown    bool
	LastHost    plugin.Host
	HookTable   map[plugin.HookKind]plugin.HookFunc
}

func (p *FakePlugin) Initialize(_ context.Context, host plugin.Host) error {
	p.Initialized = true
	p.LastHost = host
	return p.InitErr
}

func (p *FakePlugin) Shutdown(_ context.Context) error {
	p.ShutDown = true
	return p.ShutdownErr
}

// Hooks implements plugin.HookProvider.
func (p *FakePlugin) Hooks() map[plugin.HookKind]plugin.HookFunc {
	return p.HookTable
}

// FakeConfig is a minimal plugin.Config double backed by an in-memory map.
type FakeConfig struct {
	values    map[string]any
	listeners []func(key string, newValue any)
}

func NewFakeConfig() *FakeConfig {
	return &FakeConfig{values: make(map[string]any)}
}

func (c *FakeConfig) Unmarshal(any) error        { return nil }
func (c *FakeConfig) Get(key string) any         { return c.values[key] }
func (c *FakeConfig) GetString(key string) string {
	s, _ := c.values[key].(string)
	return s
}
func (c *FakeConfig) GetInt(key string) int {
	i, _ := c.values[key].(int)
	return i
}
func (c *FakeConfig) GetBool(key string) bool {
	b, _ := c.values[key].(bool)
	return b
}
func (c *FakeConfig) GetDuration(key string) time.Duration {
	d, _ := c.values[key].(time.Duration)
	return d
}
func (c *FakeConfig) IsSet(key string) bool {
	_, ok := c.values[key]
	return ok
}
func (c *FakeConfig) Sub(string) plugin.Config { return c }
func (c *FakeConfig) Set(key string, value any) {
	c.values[key] = value
	for _, fn := range c.listeners {
		fn(key, value)
	}
}
func (c *FakeConfig) RegisterListener(_ string, fn func(key string, newValue any)) {
	c.listeners = append(c.listeners, fn)
}

// FakeHost is a minimal plugin.Host double whose collaborators are all
// no-op or nil; override the fields a given test actually exercises.
type FakeHost struct {
	Cfg        plugin.Config
	Bus        plugin.EventBus
	Resolver   plugin.PluginResolver
	Sec        plugin.Security
	APIReg     plugin.APIRegistry
	HealthStat plugin.HealthStatus
}

func NewFakeHost() *FakeHost {
	return &FakeHost{Cfg: NewFakeConfig()}
}

func (h *FakeHost) Config() plugin.Config                 { return h.Cfg }
func (h *FakeHost) Loggers() plugin.LoggerFactory         { return nil }
func (h *FakeHost) EventBus() plugin.EventBus             { return h.Bus }
func (h *FakeHost) Plugins() plugin.PluginResolver        { return h.Resolver }
func (h *FakeHost) Files() plugin.FileHelper              { return nil }
func (h *FakeHost) Scheduler() plugin.TaskScheduler       { return nil }
func (h *FakeHost) Database() plugin.DatabasePool         { return nil }
func (h *FakeHost) Remote() plugin.RemoteServices         { return nil }
func (h *FakeHost) Security() plugin.Security             { return h.Sec }
func (h *FakeHost) API() plugin.APIRegistry                { return h.APIReg }
func (h *FakeHost) Cloud() plugin.Cloud                   { return nil }
func (h *FakeHost) Tasks() plugin.TaskManager              { return nil }

func (h *FakeHost) RegisterTask(string, func(context.Context) error, plugin.TaskProperties) error {
	return nil
}
func (h *FakeHost) ExecuteTask(context.Context, string, ...any) error { return nil }
func (h *FakeHost) RegisterUIComponent(any, string) error             { return nil }
func (h *FakeHost) Status() plugin.HealthStatus                       { return h.HealthStat }
