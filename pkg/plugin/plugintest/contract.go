// Package plugintest provides a shared contract test that verifies any
// plugin.Plugin implementation obeys the lifecycle interface's basic
// invariants. Every plugin package's test file should call
// TestPluginContract to ensure conformance.
package plugintest

import (
	"context"
	"testing"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// TestPluginContract runs a suite of behavioral contract tests against any
// plugin.Plugin implementation. Call this from a plugin's own test file:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return widgets.New() }, testutil.NewFakeHost())
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin, host plugin.Host) {
	t.Helper()

	t.Run("Initialize_succeeds_with_valid_host", func(t *testing.T) {
		p := factory()
		if err := p.Initialize(context.Background(), host); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		_ = p.Shutdown(context.Background())
	})

	t.Run("Shutdown_without_Initialize_does_not_panic", func(t *testing.T) {
		p := factory()
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Shutdown() without Initialize panicked: %v", r)
			}
		}()
		_ = p.Shutdown(context.Background())
	})

	t.Run("Shutdown_after_Initialize_succeeds", func(t *testing.T) {
		p := factory()
		if err := p.Initialize(context.Background(), host); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if err := p.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	})

	t.Run("HookProvider_hooks_are_stable", func(t *testing.T) {
		hp, ok := factory().(plugin.HookProvider)
		if !ok {
			t.Skip("plugin does not implement HookProvider")
		}
		a := hp.Hooks()
		b := hp.Hooks()
		if len(a) != len(b) {
			t.Error("Hooks() must return a consistent hook table across calls")
		}
	})
}
