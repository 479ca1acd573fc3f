// Package host assembles the Host collaborator surface (pkg/plugin.Host)
// handed to each plugin at Initializing, wiring together the event bus,
// lifecycle manager, config store, database pool, and introspection server
// built elsewhere in this module, following the same dependency-wired
// application-struct pattern this module's entry point uses to assemble
// its own top-level collaborators.
package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sssolid/qorzen-sub001/internal/security"
	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// Builder holds the collaborators shared across every plugin's Host view and
// mints a per-plugin Host via ForPlugin.
type Builder struct {
	Config    plugin.Config
	Loggers   plugin.LoggerFactory
	Bus       plugin.EventBus
	Resolver  plugin.PluginResolver
	Database  plugin.DatabasePool
	Remote    plugin.RemoteServices
	Cloud     plugin.Cloud
	APIServer APIRegistrarFor
	UI        plugin.UIIntegration
	DataDir   string
}

// APIRegistrarFor mints a plugin-scoped APIRegistry, satisfied by
// *internal/server.Server's Registry method.
type APIRegistrarFor interface {
	Registry(pluginName string) plugin.APIRegistry
}

// ForPlugin returns a Host scoped to manifest: its own data directory,
// config subtree, capability guard, and namespaced task scheduler.
func (b *Builder) ForPlugin(manifest *plugin.Manifest) (*Host, error) {
	dataDir := filepath.Join(b.DataDir, manifest.Name)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugin data dir: %w", err)
	}

	var apiReg plugin.APIRegistry
	if b.APIServer != nil {
		apiReg = b.APIServer.Registry(manifest.Name)
	}

	return &Host{
		name:      manifest.Name,
		config:    b.Config.Sub("plugins." + manifest.Name),
		loggers:   b.Loggers,
		bus:       b.Bus,
		resolver:  b.Resolver,
		files:     &dirFileHelper{dir: dataDir},
		scheduler: newTickerScheduler(b.Loggers.GetLogger(manifest.Name + ".scheduler")),
		database:  b.Database,
		remote:    b.Remote,
		security:  security.NewCapabilityGuard(manifest),
		api:       apiReg,
		cloud:     b.Cloud,
		tasks:     newTaskManager(),
		ui:        b.UI,
	}, nil
}

// Host implements plugin.Host for exactly one plugin instance.
type Host struct {
	name      string
	config    plugin.Config
	loggers   plugin.LoggerFactory
	bus       plugin.EventBus
	resolver  plugin.PluginResolver
	files     plugin.FileHelper
	scheduler *tickerScheduler
	database  plugin.DatabasePool
	remote    plugin.RemoteServices
	security  plugin.Security
	api       plugin.APIRegistry
	cloud     plugin.Cloud
	tasks     *taskManager

	mu sync.RWMutex
	ui plugin.UIIntegration
}

// SetUIIntegration attaches the UI Integration collaborator once a UI shell
// registers with the embedding application. Safe to call before or after
// Initialize.
func (h *Host) SetUIIntegration(ui plugin.UIIntegration) {
	h.mu.Lock()
	h.ui = ui
	h.mu.Unlock()
}

func (h *Host) Config() plugin.Config          { return h.config }
func (h *Host) Loggers() plugin.LoggerFactory  { return h.loggers }
func (h *Host) EventBus() plugin.EventBus      { return h.bus }
func (h *Host) Plugins() plugin.PluginResolver { return h.resolver }
func (h *Host) Files() plugin.FileHelper       { return h.files }
func (h *Host) Scheduler() plugin.TaskScheduler { return h.scheduler }
func (h *Host) Database() plugin.DatabasePool  { return h.database }
func (h *Host) Remote() plugin.RemoteServices  { return h.remote }
func (h *Host) Security() plugin.Security      { return h.security }
func (h *Host) API() plugin.APIRegistry        { return h.api }
func (h *Host) Cloud() plugin.Cloud            { return h.cloud }
func (h *Host) Tasks() plugin.TaskManager      { return h.tasks }

// RegisterTask schedules fn under this plugin's own namespace.
func (h *Host) RegisterTask(name string, fn func(ctx context.Context) error, props plugin.TaskProperties) error {
	return h.scheduler.Schedule(h.name+"."+name, fn, props)
}

// ExecuteTask runs a previously registered task once, out of band, tracked
// through the shared TaskManager so Tasks().Status reflects it.
func (h *Host) ExecuteTask(ctx context.Context, name string, _ ...any) error {
	full := h.name + "." + name
	return h.tasks.Submit(full, func(ctx context.Context) error {
		return h.scheduler.RunOnce(ctx, full)
	})
}

// RegisterUIComponent asks the attached UI Integration collaborator to mount
// component. Returns an error if no UI Integration has attached yet.
func (h *Host) RegisterUIComponent(component any, kind string) error {
	h.mu.RLock()
	ui := h.ui
	h.mu.RUnlock()
	if ui == nil {
		return fmt.Errorf("plugin %q: no UI integration attached", h.name)
	}
	switch kind {
	case "page":
		return ui.AddPage(h.name, component)
	case "dock_widget":
		return ui.AddDockWidget(h.name, component)
	default:
		return fmt.Errorf("plugin %q: unsupported UI component kind %q", h.name, kind)
	}
}

// Status reports this plugin's self-reported health. Plugins that want a
// richer status override this by publishing their own via Tasks()/events;
// the Host falls back to a default "healthy" when nothing else is known.
func (h *Host) Status() plugin.HealthStatus {
	return plugin.HealthStatus{Status: "healthy"}
}

// dirFileHelper implements plugin.FileHelper over a plugin's data directory:
// relative paths are joined onto that directory. Absolute paths, and relative
// paths that climb out with "..", are used as given, so access is not
// confined to the data directory.
type dirFileHelper struct {
	dir string
}

func (f *dirFileHelper) DataDir() string { return f.dir }

func (f *dirFileHelper) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(f.resolve(path))
}

func (f *dirFileHelper) WriteFile(path string, data []byte) error {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (f *dirFileHelper) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.dir, path)
}

// tickerScheduler runs named tasks on a cadence using one goroutine+ticker
// per task. No suitable cron-style library appears among the corpus's
// dependencies, so this stays on the standard library (time.Ticker).
type tickerScheduler struct {
	logger plugin.Logger

	mu    sync.Mutex
	tasks map[string]*scheduledTask
}

type scheduledTask struct {
	fn     func(ctx context.Context) error
	props  plugin.TaskProperties
	cancel context.CancelFunc
}

func newTickerScheduler(logger plugin.Logger) *tickerScheduler {
	return &tickerScheduler{logger: logger, tasks: make(map[string]*scheduledTask)}
}

// Schedule implements plugin.TaskScheduler.
func (s *tickerScheduler) Schedule(name string, fn func(ctx context.Context) error, props plugin.TaskProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q already scheduled", name)
	}
	if props.Interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &scheduledTask{fn: fn, props: props, cancel: cancel}
	s.tasks[name] = t

	go s.run(ctx, name, t)
	return nil
}

func (s *tickerScheduler) run(ctx context.Context, name string, t *scheduledTask) {
	ticker := time.NewTicker(t.props.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWithRetries(ctx, name, t)
		}
	}
}

func (s *tickerScheduler) runWithRetries(ctx context.Context, name string, t *scheduledTask) {
	var err error
	attempts := t.props.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if err = t.fn(ctx); err == nil {
			return
		}
		s.logger.Warn("scheduled task failed", "task", name, "attempt", i+1, "error", err.Error())
	}
	s.logger.Error("scheduled task exhausted retries", "task", name, "error", err.Error())
}

// RunOnce runs a previously scheduled task's function immediately, outside
// its normal cadence.
func (s *tickerScheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q is not scheduled", name)
	}
	return t.fn(ctx)
}

// Cancel implements plugin.TaskScheduler.
func (s *tickerScheduler) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %q is not scheduled", name)
	}
	t.cancel()
	delete(s.tasks, name)
	return nil
}

// taskManager tracks in-flight one-off work submitted via Host.ExecuteTask,
// implementing plugin.TaskManager.
type taskManager struct {
	mu     sync.Mutex
	status map[string]taskStatus
}

type taskStatus struct {
	running bool
	lastErr error
}

func newTaskManager() *taskManager {
	return &taskManager{status: make(map[string]taskStatus)}
}

// Submit implements plugin.TaskManager.
func (m *taskManager) Submit(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.status[name] = taskStatus{running: true}
	m.mu.Unlock()

	go func() {
		err := fn(context.Background())
		m.mu.Lock()
		m.status[name] = taskStatus{running: false, lastErr: err}
		m.mu.Unlock()
	}()
	return nil
}

// Status implements plugin.TaskManager.
func (m *taskManager) Status(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status[name]
	return st.running, st.lastErr
}
