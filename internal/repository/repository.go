// Package repository implements the Repository client and RepositoryManager
// collaborators, grounded in the original's httpx-based
// PluginRepository/PluginRepositoryManager, adapted to net/http in the same
// style as internal/scout/updater's binary-update HTTP client.
package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// HTTPRepository is a single named plugin repository reachable over HTTP,
// implementing plugin.Repository.
type HTTPRepository struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	cacheDir string
}

// Config configures one HTTPRepository.
type Config struct {
	Name     string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheDir string // where DownloadPlugin stages fetched packages
}

// NewHTTPRepository constructs a repository client for cfg.
func NewHTTPRepository(cfg Config) *HTTPRepository {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRepository{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		cacheDir: cfg.CacheDir,
	}
}

func (r *HTTPRepository) headers(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// Search implements plugin.Repository.
func (r *HTTPRepository) Search(query string) ([]plugin.SearchResult, error) {
	u := fmt.Sprintf("%s/api/v1/plugins/search?q=%s", r.baseURL, url.QueryEscape(query))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	r.headers(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repository %q search: %w", r.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository %q search: status %d", r.name, resp.StatusCode)
	}

	var results []plugin.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("repository %q search: decode: %w", r.name, err)
	}
	return results, nil
}

// GetPluginVersions implements plugin.Repository.
func (r *HTTPRepository) GetPluginVersions(name string) ([]string, error) {
	u := fmt.Sprintf("%s/api/v1/plugins/%s/versions", r.baseURL, url.PathEscape(name))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	r.headers(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repository %q versions for %q: %w", r.name, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository %q versions for %q: status %d", r.name, name, resp.StatusCode)
	}

	var versions []string
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, fmt.Errorf("repository %q versions for %q: decode: %w", r.name, name, err)
	}
	sort.Strings(versions)
	return versions, nil
}

// DownloadPlugin implements plugin.Repository, staging the fetched package
// under cacheDir.
func (r *HTTPRepository) DownloadPlugin(name, version string) (string, error) {
	u := fmt.Sprintf("%s/api/v1/plugins/%s/download", r.baseURL, url.PathEscape(name))
	if version != "" {
		u += "?version=" + url.QueryEscape(version)
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	r.headers(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("repository %q download %q: %w", r.name, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("repository %q download %q: status %d", r.name, name, resp.StatusCode)
	}

	cacheDir := r.cacheDir
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(cacheDir, fmt.Sprintf("%s-%s.zip", name, version))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("repository %q download %q: write: %w", r.name, name, err)
	}
	return dest, nil
}

// PublishPlugin implements plugin.Repository.
func (r *HTTPRepository) PublishPlugin(path, notes string, public bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	u := fmt.Sprintf("%s/api/v1/plugins/publish?public=%t&notes=%s", r.baseURL, public, url.QueryEscape(notes))
	req, err := http.NewRequest(http.MethodPost, u, f)
	if err != nil {
		return err
	}
	r.headers(req)
	req.Header.Set("Content-Type", "application/zip")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("repository %q publish: %w", r.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("repository %q publish: status %d", r.name, resp.StatusCode)
	}
	return nil
}

// Manager aggregates multiple named repositories with a chosen default.
type Manager struct {
	mu      sync.RWMutex
	order   []string
	repos   map[string]plugin.Repository
	defName string
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{repos: make(map[string]plugin.Repository)}
}

// Add registers repo under name, appended to the search order. The first
// repository added becomes the default until SetDefault is called.
func (m *Manager) Add(name string, repo plugin.Repository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.repos[name]; !exists {
		m.order = append(m.order, name)
	}
	m.repos[name] = repo
	if m.defName == "" {
		m.defName = name
	}
}

// Remove drops a repository by name.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[name]; !ok {
		return false
	}
	delete(m.repos, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.defName == name {
		m.defName = ""
		if len(m.order) > 0 {
			m.defName = m.order[0]
		}
	}
	return true
}

// SetDefault changes which registered repository Get("") resolves to.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[name]; !ok {
		return fmt.Errorf("repository %q is not registered", name)
	}
	m.defName = name
	return nil
}

// Get returns the named repository, or the default when name is empty.
func (m *Manager) Get(name string) (plugin.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.defName
	}
	repo, ok := m.repos[name]
	if !ok {
		return nil, fmt.Errorf("repository %q is not registered", name)
	}
	return repo, nil
}

// Order returns the repository names in registration order, used when a
// missing dependency must be searched across every configured repository.
func (m *Manager) Order() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.order...)
}
