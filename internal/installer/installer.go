// Package installer implements the Installer / Integrated Installer:
// install/uninstall/update against the Installed Plugin Record registry,
// plus get_loading_order() over the currently enabled set.
//
// Go has no safe equivalent of dynamically importing a downloaded module the
// way the original host does (plugin.Open requires toolchain- and
// architecture-matched .so files and is unsuitable for third-party
// distribution). Instead, embedders register a PluginFactory per
// entry_point string at startup; the Installer resolves a manifest's
// EntryPoint through that registry to obtain a live plugin.Plugin to run
// hooks against and to hand to the Lifecycle Manager.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/internal/depgraph"
	"github.com/sssolid/qorzen-sub001/internal/lifecycle"
	"github.com/sssolid/qorzen-sub001/internal/pkgloader"
	"github.com/sssolid/qorzen-sub001/internal/store"
	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// PluginFactory constructs a fresh plugin.Plugin instance for a manifest's
// entry_point. Registered by the embedding application at startup.
type PluginFactory func() plugin.Plugin

// InstallOptions are the Install contract's inputs.
type InstallOptions struct {
	PackagePath         string
	Force               bool
	SkipVerification    bool
	Enable              bool
	ResolveDependencies bool
	InstallDependencies bool
}

// UninstallOptions are the Uninstall contract's inputs.
type UninstallOptions struct {
	Name     string
	Force    bool // bypass the dependent check
	KeepData bool
}

// Installer drives install/uninstall/update against the Installed Plugin
// Record registry, coordinating the Package Loader, Dependency Resolver,
// Verifier, and Lifecycle Manager collaborators.
type Installer struct {
	logger      *zap.Logger
	store       *store.SQLiteStore
	resolver    *depgraph.Resolver
	lifecycle   *lifecycle.Manager
	verifier    plugin.Verifier // may be nil: skip_verification must then be honored by callers
	pluginsDir  string
	coreVersion string

	repoMu    sync.Mutex
	repoOrder []string
	repos     map[string]plugin.Repository

	factoryMu sync.Mutex
	factories map[string]PluginFactory
}

// New constructs an Installer rooted at pluginsDir.
func New(logger *zap.Logger, st *store.SQLiteStore, resolver *depgraph.Resolver, lc *lifecycle.Manager, verifier plugin.Verifier, pluginsDir, coreVersion string) *Installer {
	return &Installer{
		logger:      logger,
		store:       st,
		resolver:    resolver,
		lifecycle:   lc,
		verifier:    verifier,
		pluginsDir:  pluginsDir,
		coreVersion: coreVersion,
		repos:       make(map[string]plugin.Repository),
		factories:   make(map[string]PluginFactory),
	}
}

// RegisterFactory binds entryPoint (a manifest's entry_point value) to a
// constructor. Must be called before a manifest naming that entry point is
// installed.
func (in *Installer) RegisterFactory(entryPoint string, f PluginFactory) {
	in.factoryMu.Lock()
	defer in.factoryMu.Unlock()
	in.factories[entryPoint] = f
}

func (in *Installer) factoryFor(entryPoint string) (PluginFactory, bool) {
	in.factoryMu.Lock()
	defer in.factoryMu.Unlock()
	f, ok := in.factories[entryPoint]
	return f, ok
}

// AddRepository registers a named Repository, appended to the search order
// used when install_dependencies fetches a missing dependency.
func (in *Installer) AddRepository(name string, repo plugin.Repository) {
	in.repoMu.Lock()
	defer in.repoMu.Unlock()
	if _, exists := in.repos[name]; !exists {
		in.repoOrder = append(in.repoOrder, name)
	}
	in.repos[name] = repo
}

func (in *Installer) installedManifests(ctx context.Context) (map[string]*plugin.Manifest, error) {
	records, err := in.store.AllInstalledPlugins(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*plugin.Manifest, len(records))
	for name, rec := range records {
		m := rec.Manifest
		out[name] = &m
	}
	return out, nil
}

// Install runs the full install contract end to end.
func (in *Installer) Install(ctx context.Context, opts InstallOptions) (*plugin.InstalledPluginRecord, error) {
	pkg, err := pkgloader.Load(opts.PackagePath)
	if err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: opts.PackagePath, Cause: err}
	}
	defer pkg.Cleanup()

	manifest := pkg.Manifest
	if err := plugin.ValidateManifest(manifest); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}

	if err := os.MkdirAll(in.pluginsDir, 0o755); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}
	// Staged under pluginsDir (not os.TempDir) so the final os.Rename is an
	// atomic same-filesystem move rather than a cross-device copy.
	stagingRoot, err := os.MkdirTemp(in.pluginsDir, ".install-"+manifest.Name+"-")
	if err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}
	defer os.RemoveAll(stagingRoot)
	if _, err := pkg.Extract(stagingRoot); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}

	if _, declared := manifest.LifecycleHooks[plugin.HookPreInstall]; declared {
		if err := in.runStandaloneHook(ctx, manifest, plugin.HookPreInstall); err != nil {
			return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
		}
	}

	if opts.ResolveDependencies {
		if err := in.resolveAndInstallDependencies(ctx, manifest, opts.InstallDependencies); err != nil {
			return nil, err
		}
	}

	existing, err := in.store.GetInstalledPlugin(ctx, manifest.Name)
	if err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}
	if existing != nil && !opts.Force {
		return nil, &plugin.PluginInstallationError{
			Plugin: manifest.Name,
			Cause:  fmt.Errorf("already installed at version %s (use force to reinstall)", existing.Manifest.Version),
		}
	}

	if !opts.SkipVerification && in.verifier != nil {
		ok, err := in.verifier.Verify(filepath.Join(stagingRoot, "manifest.json"), manifest)
		if err != nil || !ok {
			return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: fmt.Errorf("signature verification failed: %w", err)}
		}
	}

	installPath := filepath.Join(in.pluginsDir, manifest.Name)
	if err := os.RemoveAll(installPath); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}
	if err := os.Rename(stagingRoot, installPath); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}
	// stagingRoot has been moved; the deferred RemoveAll becomes a silent no-op.

	record := plugin.InstalledPluginRecord{
		Manifest:    *manifest,
		InstallPath: installPath,
		Enabled:     opts.Enable,
		InstalledAt: time.Now(),
	}
	if err := in.store.PutInstalledPlugin(ctx, record); err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
	}

	if err := in.discoverWithFactory(manifest); err != nil {
		in.logger.Warn("installed plugin has no registered factory; hooks beyond pre_install will not run",
			zap.String("plugin", manifest.Name), zap.Error(err))
	} else if _, declared := manifest.LifecycleHooks[plugin.HookPostInstall]; declared {
		if err := in.lifecycle.RunHook(ctx, manifest.Name, plugin.HookPostInstall); err != nil {
			in.logger.Warn("post_install hook failed", zap.String("plugin", manifest.Name), zap.Error(err))
		}
	}

	return &record, nil
}

// discoverWithFactory constructs manifest's plugin instance through its
// registered factory and registers it with the Lifecycle Manager at state
// Discovered, so subsequent RunHook calls have a live instance to dispatch
// to.
func (in *Installer) discoverWithFactory(manifest *plugin.Manifest) error {
	f, ok := in.factoryFor(manifest.EntryPoint)
	if !ok {
		return fmt.Errorf("no factory registered for entry_point %q", manifest.EntryPoint)
	}
	in.lifecycle.Discover(manifest.Name, f(), manifest)
	return nil
}

// runStandaloneHook runs a single hook against a short-lived instance built
// from the manifest's factory, used for pre_install before the plugin is
// registered with the Lifecycle Manager.
func (in *Installer) runStandaloneHook(ctx context.Context, manifest *plugin.Manifest, hook plugin.HookKind) error {
	f, ok := in.factoryFor(manifest.EntryPoint)
	if !ok {
		in.logger.Warn("no factory registered, skipping declared hook",
			zap.String("plugin", manifest.Name), zap.String("hook", string(hook)))
		return nil
	}
	instance := f()
	hp, ok := instance.(plugin.HookProvider)
	if !ok {
		return nil
	}
	fn, declared := hp.Hooks()[hook]
	if !declared {
		return nil
	}
	return fn(ctx, plugin.HookContext{PluginName: manifest.Name, Hook: hook})
}

// resolveAndInstallDependencies runs the Dependency Resolver against the
// currently installed set, downloading missing dependencies through the
// configured repositories when install_dependencies is set.
func (in *Installer) resolveAndInstallDependencies(ctx context.Context, manifest *plugin.Manifest, installMissing bool) error {
	installed, err := in.installedManifests(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < len(manifest.Dependencies)+1; attempt++ {
		_, _, err := in.resolver.ResolveDependencies(depgraph.ResolveInput{
			Root:        manifest,
			Installed:   installed,
			CoreVersion: in.coreVersion,
		})
		if err == nil {
			return nil
		}

		missing, ok := err.(*plugin.MissingDependencyError)
		if !ok || !installMissing {
			return &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
		}

		repo, repoName, ok := in.findInRepositories(missing.Missing[0])
		if !ok {
			return &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: err}
		}

		versions, verr := repo.GetPluginVersions(missing.Missing[0])
		if verr != nil || len(versions) == 0 {
			return &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: fmt.Errorf("no versions of %q available from repository %q", missing.Missing[0], repoName)}
		}
		path, derr := repo.DownloadPlugin(missing.Missing[0], versions[len(versions)-1])
		if derr != nil {
			return &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: derr}
		}

		if _, err := in.Install(ctx, InstallOptions{PackagePath: path, Enable: true, ResolveDependencies: true, InstallDependencies: true}); err != nil {
			return err
		}
		installed, err = in.installedManifests(ctx)
		if err != nil {
			return err
		}
	}
	return &plugin.PluginInstallationError{Plugin: manifest.Name, Cause: fmt.Errorf("dependency resolution did not converge")}
}

func (in *Installer) findInRepositories(name string) (plugin.Repository, string, bool) {
	in.repoMu.Lock()
	defer in.repoMu.Unlock()
	for _, repoName := range in.repoOrder {
		repo := in.repos[repoName]
		if versions, err := repo.GetPluginVersions(name); err == nil && len(versions) > 0 {
			return repo, repoName, true
		}
	}
	return nil, "", false
}

// Uninstall runs the uninstall contract: dependent check, pre/post hooks,
// file removal (optionally keeping a data/ subdirectory), and state cleanup.
func (in *Installer) Uninstall(ctx context.Context, opts UninstallOptions) error {
	record, err := in.store.GetInstalledPlugin(ctx, opts.Name)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("plugin %q is not installed", opts.Name)
	}

	if !opts.Force {
		if dependents := in.dependentsOf(ctx, opts.Name); len(dependents) > 0 {
			return &plugin.PluginInstallationError{
				Plugin: opts.Name,
				Cause:  fmt.Errorf("plugins depend on it: %v (use force to override)", dependents),
			}
		}
	}

	if _, declared := record.Manifest.LifecycleHooks[plugin.HookPreUninstall]; declared {
		if err := in.lifecycle.RunHook(ctx, opts.Name, plugin.HookPreUninstall); err != nil {
			return err
		}
	}

	if err := in.lifecycle.Shutdown(ctx, opts.Name); err != nil {
		in.logger.Warn("plugin shutdown failed during uninstall", zap.String("plugin", opts.Name), zap.Error(err))
	}

	if opts.KeepData {
		entries, err := os.ReadDir(record.InstallPath)
		if err == nil {
			for _, e := range entries {
				if e.Name() == "data" {
					continue
				}
				os.RemoveAll(filepath.Join(record.InstallPath, e.Name()))
			}
		}
	} else {
		if err := os.RemoveAll(record.InstallPath); err != nil {
			return fmt.Errorf("remove install path for %q: %w", opts.Name, err)
		}
	}

	if _, declared := record.Manifest.LifecycleHooks[plugin.HookPostUninstall]; declared {
		if err := in.lifecycle.RunHook(ctx, opts.Name, plugin.HookPostUninstall); err != nil {
			in.logger.Warn("post_uninstall hook failed", zap.String("plugin", opts.Name), zap.Error(err))
		}
	}

	in.lifecycle.Forget(opts.Name)
	return in.store.DeleteInstalledPlugin(ctx, opts.Name)
}

func (in *Installer) dependentsOf(ctx context.Context, name string) []string {
	all, err := in.installedManifests(ctx)
	if err != nil {
		return nil
	}
	var dependents []string
	for depName, m := range all {
		for _, dep := range m.Dependencies {
			if dep.Name == name && !dep.Optional {
				dependents = append(dependents, depName)
			}
		}
	}
	return dependents
}

// Update reinstalls packagePath with force=true, preserving the previously
// recorded enabled flag, firing pre_update before the reinstall and
// post_update after it. The reinstall goes through Install, so the install
// hooks fire as well. Proceeds (with a log line) even when the new version is not
// greater than the currently installed one.
func (in *Installer) Update(ctx context.Context, packagePath string) (*plugin.InstalledPluginRecord, error) {
	pkg, err := pkgloader.Load(packagePath)
	if err != nil {
		return nil, &plugin.PluginInstallationError{Plugin: packagePath, Cause: err}
	}
	name := pkg.Manifest.Name
	newVersion := pkg.Manifest.Version
	pkg.Cleanup()

	prior, err := in.store.GetInstalledPlugin(ctx, name)
	if err != nil {
		return nil, err
	}
	wasEnabled := prior != nil && prior.Enabled
	if prior != nil && !isNewerVersion(newVersion, prior.Manifest.Version) {
		in.logger.Info("updating to a version that is not newer than the installed one",
			zap.String("plugin", name), zap.String("installed", prior.Manifest.Version), zap.String("new", newVersion))
	}

	if prior != nil {
		if _, declared := prior.Manifest.LifecycleHooks[plugin.HookPreUpdate]; declared {
			if err := in.lifecycle.RunHook(ctx, name, plugin.HookPreUpdate); err != nil {
				return nil, err
			}
		}
	}

	record, err := in.Install(ctx, InstallOptions{
		PackagePath:         packagePath,
		Force:               true,
		Enable:              wasEnabled,
		ResolveDependencies: true,
		InstallDependencies: true,
	})
	if err != nil {
		return nil, err
	}

	if _, declared := record.Manifest.LifecycleHooks[plugin.HookPostUpdate]; declared {
		if err := in.lifecycle.RunHook(ctx, name, plugin.HookPostUpdate); err != nil {
			in.logger.Warn("post_update hook failed", zap.String("plugin", name), zap.Error(err))
		}
	}
	return record, nil
}

func isNewerVersion(candidate, current string) bool {
	pred, err := plugin.ParsePredicate(">" + current)
	if err != nil {
		return true
	}
	ok, err := pred.Satisfies(candidate)
	return err == nil && ok
}

// GetLoadingOrder builds a dependency graph over the currently enabled
// installed manifests and topologically sorts it.
func (in *Installer) GetLoadingOrder(ctx context.Context) ([]string, error) {
	records, err := in.store.AllInstalledPlugins(ctx)
	if err != nil {
		return nil, err
	}

	g := depgraph.NewGraph()
	for name, rec := range records {
		if !rec.Enabled {
			continue
		}
		m := rec.Manifest
		g.AddNode(&plugin.DependencyNode{Name: name, Version: m.Version, Dependencies: m.Dependencies, Manifest: &m})
	}
	for name, rec := range records {
		if !rec.Enabled {
			continue
		}
		for _, dep := range rec.Manifest.Dependencies {
			if dep.Name == "core" {
				continue
			}
			if _, ok := g.Get(dep.Name); ok {
				g.AddEdge(name, dep.Name)
			}
		}
	}
	return g.Resolve()
}
