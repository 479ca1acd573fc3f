// Package config provides a Viper-backed implementation of the plugin.Config interface.
package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

type configListener struct {
	prefix string
	fn     func(key string, newValue any)
}

// ViperConfig wraps a Viper instance to implement plugin.Config.
type ViperConfig struct {
	v *viper.Viper

	mu        sync.Mutex
	listeners []configListener
}

// New creates a Config backed by the given Viper instance.
// Returns the concrete type; callers assign to plugin.Config where needed.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Set writes key and notifies any listener whose prefix matches.
func (c *ViperConfig) Set(key string, value any) {
	c.v.Set(key, value)

	c.mu.Lock()
	listeners := append([]configListener{}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		if strings.HasPrefix(key, l.prefix) {
			l.fn(key, value)
		}
	}
}

// RegisterListener calls fn whenever Set is called with a key sharing prefix.
func (c *ViperConfig) RegisterListener(prefix string, fn func(key string, newValue any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, configListener{prefix: prefix, fn: fn})
}

// Viper returns the underlying Viper instance for direct access
// (e.g., by the server for top-level config like server.port).
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
