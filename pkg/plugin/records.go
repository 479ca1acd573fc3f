package plugin

import "time"

// State is one step in the per-plugin lifecycle state machine.
type State string

const (
	StateDiscovered   State = "discovered"
	StateLoading      State = "loading"
	StateInitializing State = "initializing"
	StateInitialized  State = "initialized"
	StateUIReady      State = "ui_ready"
	StateActive       State = "active"
	StateDisabling    State = "disabling"
	StateInactive     State = "inactive"
	StateFailed       State = "failed"
)

// validTransitions enumerates the state machine's edges. Re-enable loops
// Inactive back to Discovered.
var validTransitions = map[State][]State{
	StateDiscovered:   {StateLoading, StateFailed},
	StateLoading:      {StateInitializing, StateFailed},
	StateInitializing: {StateInitialized, StateFailed},
	StateInitialized:  {StateUIReady, StateFailed},
	StateUIReady:      {StateActive, StateFailed},
	StateActive:       {StateDisabling, StateFailed},
	StateDisabling:    {StateInactive, StateFailed},
	StateInactive:     {StateDiscovered},
	StateFailed:       {},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	for _, candidate := range validTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// InstalledPluginRecord is the Installer's persisted view of one installed
// plugin: its manifest plus install-specific bookkeeping. Owned exclusively
// by the Installer; mutated only through install/enable/disable/uninstall.
type InstalledPluginRecord struct {
	Manifest    Manifest
	InstallPath string
	Enabled     bool
	InstalledAt time.Time
}

// DependencyNode is one vertex of a Dependency Graph.
type DependencyNode struct {
	Name         string
	Version      string
	Dependencies []Dependency
	Manifest     *Manifest // nil for the synthetic "core" node
	RepoTag      string    // non-empty if this node came from a named repository
	LocalPath    string    // non-empty if this node came from an already-installed manifest
	IsCore       bool
}

// Repository is the narrow contract for a single named plugin repository.
type Repository interface {
	Search(query string) ([]SearchResult, error)
	GetPluginVersions(name string) ([]string, error)
	DownloadPlugin(name, version string) (path string, err error)
	PublishPlugin(path, notes string, public bool) error
}

// SearchResult is one hit from a Repository.Search call.
type SearchResult struct {
	Name         string
	DisplayName  string
	Version      string
	Description  string
	Author       string
	Downloads    int
	Rating       float64
	Capabilities []string
	Tags         []string
}

// Verifier checks a package's detached signature.
type Verifier interface {
	Verify(manifestPath string, manifest *Manifest) (bool, error)
}

// MainThreadExecutor runs submitted functions on a single designated thread,
// typically a UI event loop goroutine.
type MainThreadExecutor interface {
	RunOnMainThread(fn func())
	RunOnMainThreadSync(fn func() (any, error)) (any, error)
	IsMainThread() bool
}

// Migration is one forward-only schema change a plugin registers against its
// slice of the shared database pool (DatabasePool in host.go). Version order
// is the apply order; already-applied versions are skipped.
type Migration struct {
	Version     int
	Description string
	Up          func(tx any) error
}
