package plugin

import (
	"context"
	"time"
)

// Plugin is implemented by every loadable plugin's entry-point type.
// Initialize is called once the Lifecycle Manager reaches Initializing,
// handing the plugin its Host. Shutdown is called exactly once.
type Plugin interface {
	Initialize(ctx context.Context, host Host) error
	Shutdown(ctx context.Context) error
}

// UIReadyPlugin is implemented by plugins that care when the UI Integration
// collaborator attaches. The Lifecycle Manager calls OnUIReady once, after
// signaling readiness for this plugin.
type UIReadyPlugin interface {
	OnUIReady(ctx context.Context, ui UIIntegration) error
}

// HookProvider lets a plugin register its lifecycle-hook callables explicitly
// instead of the core resolving them by reflection (see design notes: avoid
// reflection, prefer explicit registration). The manifest's lifecycle_hooks
// map supplies the *kind*; this vtable supplies the *callable*.
type HookProvider interface {
	Hooks() map[HookKind]HookFunc
}

// HookFunc implements one lifecycle hook. ctx carries the plugin name and,
// when applicable, the currently registered UI Integration collaborator.
type HookFunc func(ctx context.Context, hctx HookContext) error

// HookContext is passed to every hook invocation.
type HookContext struct {
	PluginName string
	Hook       HookKind
	UI         UIIntegration // nil if no UI integration is registered
}

// Config abstracts configuration access, scoped to one plugin's section.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
	Set(key string, value any)
	RegisterListener(prefix string, fn func(key string, newValue any))
}

// Logger is a structured logging sink. Message plus optional key/value fields.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// LoggerFactory hands out named loggers, matching the donor's one-logger-per-component idiom.
type LoggerFactory interface {
	GetLogger(name string) Logger
}

// FileHelper is the narrow file-I/O surface a plugin is handed; the core does
// not constrain its internals (§1: file I/O helpers are an external collaborator).
type FileHelper interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	DataDir() string
}

// TaskProperties describes a scheduled task's cadence and retry policy.
type TaskProperties struct {
	Interval   time.Duration
	MaxRetries int
}

// TaskScheduler runs named functions on a cadence, independent of the Host's
// own RegisterTask/ExecuteTask convenience wrappers.
type TaskScheduler interface {
	Schedule(name string, fn func(ctx context.Context) error, props TaskProperties) error
	Cancel(name string) error
}

// DatabasePool is a narrow handle to a shared connection pool; a plugin uses
// it to run its own migrations and queries without owning the pool's lifecycle.
type DatabasePool interface {
	WithConnection(ctx context.Context, fn func(conn any) error) error
}

// RemoteServices resolves named external service endpoints (URLs, credentials
// handles) configured by the embedding application.
type RemoteServices interface {
	Endpoint(name string) (string, bool)
}

// Security exposes capability-gated checks; a plugin asks before performing
// an action gated by a capability it declared.
type Security interface {
	HasCapability(capability Capability) bool
}

// APIRegistry lets a plugin publish HTTP routes the introspection server mounts.
type APIRegistry interface {
	RegisterRoute(method, path string, handler any)
}

// Cloud is a narrow handle to cloud-provider collaborators (object storage,
// managed queues); internals are out of scope for the core.
type Cloud interface {
	Bucket(name string) (any, bool)
}

// TaskManager tracks in-flight background work across the whole host, as
// distinct from a single plugin's TaskScheduler.
type TaskManager interface {
	Submit(name string, fn func(ctx context.Context) error) error
	Status(name string) (running bool, lastErr error)
}

// Host is the service-locator surface the Lifecycle Manager hands a plugin
// at Initializing. Every collaborator is read-only from the plugin's view;
// the Host owns their lifecycles.
type Host interface {
	Config() Config
	Loggers() LoggerFactory
	EventBus() EventBus
	Plugins() PluginResolver
	Files() FileHelper
	Scheduler() TaskScheduler
	Database() DatabasePool
	Remote() RemoteServices
	Security() Security
	API() APIRegistry
	Cloud() Cloud
	Tasks() TaskManager

	// RegisterTask is a convenience wrapper over Scheduler().Schedule using
	// this plugin's own name as the task's namespace.
	RegisterTask(name string, fn func(ctx context.Context) error, props TaskProperties) error
	// ExecuteTask runs a previously registered task once, out of band.
	ExecuteTask(ctx context.Context, name string, args ...any) error
	// RegisterUIComponent asks the UI Integration collaborator (once
	// attached) to mount a component of the given kind (menu, toolbar,
	// dock widget, page).
	RegisterUIComponent(component any, kind string) error
	// Status reports this plugin's own health as the base plugin class
	// would publish it (wired to whatever introspection surface the
	// embedding application exposes).
	Status() HealthStatus
}

// HealthStatus is a plugin's self-reported health.
type HealthStatus struct {
	Status  string // "healthy", "degraded", "unhealthy"
	Message string
	Details map[string]string
}

// UIIntegration is the collaborator a plugin uses to extend host-provided UI
// surfaces. Internals (toolkit, windowing) are out of scope for the core.
type UIIntegration interface {
	FindMenu(name string) (any, bool)
	AddMenu(name string) (any, error)
	AddMenuAction(menu any, label string, onClick func()) error
	AddToolbar(name string) (any, error)
	AddToolbarAction(toolbar any, label string, onClick func()) error
	AddDockWidget(name string, widget any) error
	AddPage(name string, page any) error
	RemovePage(name string) error
	CleanupPlugin(pluginName string) error
}

// PluginResolver lets a plugin or core component locate another loaded
// plugin instance by name.
type PluginResolver interface {
	Resolve(name string) (Plugin, bool)
}

// ExtensionImplementation is a callable a plugin registers against another
// plugin's extension point.
type ExtensionImplementation func(ctx context.Context, args ...any) (any, error)

// ExtensionImplementationProvider lets a plugin supply its extension-use
// implementations through an explicit map instead of reflection-based
// method lookup (design notes: avoid reflection, prefer explicit
// registration). The map is keyed by the same deterministic
// name-resolution candidates the Extension Registry computes internally
// (see internal/extension.CandidateNames).
type ExtensionImplementationProvider interface {
	ExtensionImplementations() map[string]ExtensionImplementation
}
