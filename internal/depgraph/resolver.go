package depgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// ResolveInput are the inputs to the Dependency Resolver algorithm.
type ResolveInput struct {
	Root               *plugin.Manifest
	Installed          map[string]*plugin.Manifest // name -> manifest, the already-installed set
	CoreVersion        string
	ResolveTransitives bool
	FetchMissing       bool
	Repo               plugin.Repository // optional; required only if FetchMissing is set
}

// Resolver implements the Dependency Resolver: seeds the graph with the root
// and a synthetic core node, walks declared dependencies, and topologically
// orders the result.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// ResolveDependencies runs the full algorithm and returns the load order
// (dependencies before dependents) plus the graph that produced it.
func (r *Resolver) ResolveDependencies(in ResolveInput) ([]string, *Graph, error) {
	g := NewGraph()
	g.AddNode(&plugin.DependencyNode{
		Name:         in.Root.Name,
		Version:      in.Root.Version,
		Dependencies: in.Root.Dependencies,
		Manifest:     in.Root,
	})
	g.AddNode(&plugin.DependencyNode{Name: "core", Version: in.CoreVersion, IsCore: true})

	if err := r.processDependencies(g, in.Root, in); err != nil {
		return nil, nil, err
	}

	order, err := g.Resolve()
	if err != nil {
		return nil, nil, err
	}
	return order, g, nil
}

func (r *Resolver) processDependencies(g *Graph, m *plugin.Manifest, in ResolveInput) error {
	for _, dep := range m.Dependencies {
		if dep.Optional && !in.FetchMissing && !in.ResolveTransitives {
			// Nothing asked us to pull in optional dependencies at all.
			if _, ok := g.Get(dep.Name); !ok {
				if _, ok := in.Installed[dep.Name]; !ok {
					continue
				}
			}
		}

		if dep.Name == "core" {
			g.AddEdge(m.Name, "core")
			continue
		}

		if existing, ok := g.Get(dep.Name); ok {
			if err := checkCompatible(dep, existing.Version); err != nil {
				if dep.Optional {
					r.logger.Warn("skipping incompatible optional dependency",
						zap.String("plugin", m.Name), zap.String("dependency", dep.Name), zap.Error(err))
					continue
				}
				return err
			}
			g.AddEdge(m.Name, dep.Name)
			continue
		}

		if installedManifest, ok := in.Installed[dep.Name]; ok {
			if err := checkCompatible(dep, installedManifest.Version); err != nil {
				if dep.Optional {
					r.logger.Warn("skipping incompatible optional dependency",
						zap.String("plugin", m.Name), zap.String("dependency", dep.Name), zap.Error(err))
					continue
				}
				return err
			}
			g.AddNode(&plugin.DependencyNode{
				Name:         dep.Name,
				Version:      installedManifest.Version,
				Dependencies: installedManifest.Dependencies,
				Manifest:     installedManifest,
				LocalPath:    "installed",
			})
			g.AddEdge(m.Name, dep.Name)
			if in.ResolveTransitives {
				if err := r.processDependencies(g, installedManifest, in); err != nil {
					return err
				}
			}
			continue
		}

		if in.FetchMissing && in.Repo != nil {
			repoTag, name, version, err := ParseDependencyURL(dep.URL, dep.Name)
			if err != nil {
				return err
			}
			if version == "" {
				version = dep.Version
			}
			path, err := in.Repo.DownloadPlugin(name, version)
			if err != nil {
				if dep.Optional {
					r.logger.Warn("optional dependency unavailable from repository",
						zap.String("plugin", m.Name), zap.String("dependency", name), zap.Error(err))
					continue
				}
				return &plugin.MissingDependencyError{Plugin: m.Name, Missing: []string{name}}
			}

			fetched, err := loadManifestAt(path)
			if err != nil {
				return fmt.Errorf("load fetched manifest for %q: %w", name, err)
			}
			if err := checkCompatible(dep, fetched.Version); err != nil {
				if dep.Optional {
					continue
				}
				return err
			}

			g.AddNode(&plugin.DependencyNode{
				Name:         name,
				Version:      fetched.Version,
				Dependencies: fetched.Dependencies,
				Manifest:     fetched,
				RepoTag:      repoTag,
			})
			g.AddEdge(m.Name, name)
			if in.ResolveTransitives {
				if err := r.processDependencies(g, fetched, in); err != nil {
					return err
				}
			}
			continue
		}

		if dep.Optional {
			continue
		}
		return &plugin.MissingDependencyError{Plugin: m.Name, Missing: []string{dep.Name}}
	}
	return nil
}

// checkCompatible fails closed: a semver predicate that cannot be evaluated
// is treated as incompatible rather than silently assumed compatible (an
// explicit decision, recorded in DESIGN.md).
func checkCompatible(dep plugin.Dependency, available string) error {
	pred, err := plugin.ParsePredicate(dep.Version)
	if err != nil {
		return &plugin.IncompatibleVersionError{Dependency: dep.Name, Required: dep.Version, Available: available}
	}
	ok, err := pred.Satisfies(available)
	if err != nil || !ok {
		return &plugin.IncompatibleVersionError{Dependency: dep.Name, Required: dep.Version, Available: available}
	}
	return nil
}

// ParseDependencyURL parses the fetch-hint grammar:
// "http(s)://…" is reserved (not implemented as a direct fetch target),
// "{repo}:{name}[@{version}]" names a repository entry, and a bare token
// defaults to the "default" repository. fallbackName is used when url is empty.
func ParseDependencyURL(url, fallbackName string) (repoTag, name, version string, err error) {
	if url == "" {
		return "default", fallbackName, "", nil
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return "", "", "", fmt.Errorf("direct URL dependency fetch is reserved, not implemented: %q", url)
	}

	repoTag = "default"
	rest := url
	if idx := strings.Index(url, ":"); idx >= 0 {
		repoTag = url[:idx]
		rest = url[idx+1:]
	}
	name = rest
	if idx := strings.Index(rest, "@"); idx >= 0 {
		name = rest[:idx]
		version = rest[idx+1:]
	}
	if name == "" {
		name = fallbackName
	}
	return repoTag, name, version, nil
}

// loadManifestAt reads manifest.json from a directory a Repository handed back.
func loadManifestAt(dir string) (*plugin.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var m plugin.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrManifestInvalid, err)
	}
	return &m, nil
}
