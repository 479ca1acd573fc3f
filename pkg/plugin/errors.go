package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds the core surfaces. Callers match with errors.Is,
// or errors.As against the carrying types below for the ones with payload.
var (
	ErrNotInitialized     = errors.New("plugin: not initialized")
	ErrAlreadyInitialized = errors.New("plugin: already initialized")
	ErrQueueFull          = errors.New("plugin: event queue full")
	ErrEventBusFailure    = errors.New("plugin: event bus failure")
	ErrManifestInvalid    = errors.New("plugin: manifest invalid")
	ErrPackageCorrupt     = errors.New("plugin: package corrupt")
	ErrSignatureInvalid   = errors.New("plugin: signature invalid")
	ErrExtensionNotFound  = errors.New("plugin: extension point not found")
	ErrExtensionVersion   = errors.New("plugin: extension point version mismatch")
)

// CircularDependencyError names the chain of plugin names that form a cycle.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// MissingDependencyError carries the names of dependencies that could not be satisfied.
type MissingDependencyError struct {
	Plugin  string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin %q has unmet dependencies: %s", e.Plugin, strings.Join(e.Missing, ", "))
}

// IncompatibleVersionError carries the required predicate and the available version.
type IncompatibleVersionError struct {
	Dependency string
	Required   string
	Available  string
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("dependency %q requires %s, but %s is installed", e.Dependency, e.Required, e.Available)
}

// PluginInstallationError is a generic installer failure naming the plugin and cause.
type PluginInstallationError struct {
	Plugin string
	Cause  error
}

func (e *PluginInstallationError) Error() string {
	return fmt.Sprintf("failed to install plugin %q: %v", e.Plugin, e.Cause)
}

func (e *PluginInstallationError) Unwrap() error { return e.Cause }

// LifecycleHookError carries the hook kind and the plugin that raised it.
type LifecycleHookError struct {
	Plugin string
	Hook   HookKind
	Cause  error
}

func (e *LifecycleHookError) Error() string {
	return fmt.Sprintf("plugin %q hook %q failed: %v", e.Plugin, e.Hook, e.Cause)
}

func (e *LifecycleHookError) Unwrap() error { return e.Cause }

// ExtensionPointVersionMismatchError names the provider/point whose declared
// version could not satisfy a consumer's required version.
type ExtensionPointVersionMismatchError struct {
	Provider    string
	ExtensionID string
	Required    string
	Available   string
}

func (e *ExtensionPointVersionMismatchError) Error() string {
	return fmt.Sprintf("extension point %q from provider %q has incompatible version: required %s, available %s",
		e.ExtensionID, e.Provider, e.Required, e.Available)
}
