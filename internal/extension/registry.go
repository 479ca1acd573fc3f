// Package extension implements the late-binding Extension Registry: typed
// extension points, version-gated implementations, and a pending-use queue
// for out-of-order loads.
package extension

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// extensionPoint tracks one provider.id point and its installed implementations.
type extensionPoint struct {
	provider         string
	decl             plugin.ExtensionPointDecl
	providerInstance any
	implOrder        []string // consumer names, registration order
	impls            map[string]plugin.ExtensionImplementation
}

func newExtensionPoint(provider string, decl plugin.ExtensionPointDecl, providerInstance any) *extensionPoint {
	return &extensionPoint{
		provider:         provider,
		decl:             decl,
		providerInstance: providerInstance,
		impls:            make(map[string]plugin.ExtensionImplementation),
	}
}

func (p *extensionPoint) register(consumer string, impl plugin.ExtensionImplementation) {
	if _, exists := p.impls[consumer]; !exists {
		p.implOrder = append(p.implOrder, consumer)
	}
	p.impls[consumer] = impl
}

func (p *extensionPoint) unregister(consumer string) {
	if _, ok := p.impls[consumer]; !ok {
		return
	}
	delete(p.impls, consumer)
	for i, name := range p.implOrder {
		if name == consumer {
			p.implOrder = append(p.implOrder[:i], p.implOrder[i+1:]...)
			break
		}
	}
}

// snapshot copies this point's registration order and implementation table,
// called under the registry lock so Invoke can run the implementations
// themselves without holding it (they may block, and a concurrent
// Register/Unregister must not see a torn read of implOrder/impls).
func (p *extensionPoint) snapshot() ([]string, map[string]plugin.ExtensionImplementation) {
	order := append([]string(nil), p.implOrder...)
	impls := make(map[string]plugin.ExtensionImplementation, len(order))
	for _, consumer := range order {
		impls[consumer] = p.impls[consumer]
	}
	return order, impls
}

// invokeAll calls every implementation in order, in registration order.
// Per-implementation errors are captured under an "error" key rather than
// aborting the invocation.
func invokeAll(ctx context.Context, order []string, impls map[string]plugin.ExtensionImplementation, args ...any) map[string]any {
	results := make(map[string]any, len(order))
	for _, consumer := range order {
		impl := impls[consumer]
		func() {
			defer func() {
				if r := recover(); r != nil {
					results[consumer] = map[string]any{"error": fmt.Sprintf("panic: %v", r)}
				}
			}()
			res, err := impl(ctx, args...)
			if err != nil {
				results[consumer] = map[string]any{"error": err.Error()}
				return
			}
			results[consumer] = res
		}()
	}
	return results
}

// pendingUse holds everything needed to retry installation once its point
// registers. Unlike the original implementation (which re-discovered the
// consumer's instance through a process-wide plugin manager lookup when the
// point arrived), the implementation closure itself is captured at enqueue
// time: RegisterExtensionUse already has it in hand, and Go's design here
// favors holding a handle over a global registry lookup.
type pendingUse struct {
	consumer   string
	consumerID string
	version    string
	required   bool
	impl       plugin.ExtensionImplementation
}

// Registry is the Extension Registry. A single lock guards both points and
// pending-uses.
type Registry struct {
	mu      sync.Mutex
	points  map[string]map[string]*extensionPoint // provider -> id -> point
	pending map[string][]pendingUse               // "{provider}.{id}" -> queued uses
	logger  *zap.Logger
}

// New constructs an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		points:  make(map[string]map[string]*extensionPoint),
		pending: make(map[string][]pendingUse),
		logger:  logger,
	}
}

func pendingKey(provider, id string) string { return provider + "." + id }

// RegisterExtensionPoint registers a point and drains any pending uses
// queued against it. A pending required use that is still incompatible once
// its point finally arrives cannot be retried automatically, so it is
// surfaced to the caller as an *plugin.ExtensionPointVersionMismatchError
// (logged at Error, not just Warn) rather than silently dropped; pending
// optional uses that mismatch are dropped with a Warn log only.
func (r *Registry) RegisterExtensionPoint(provider string, decl plugin.ExtensionPointDecl, providerInstance any) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.points[provider] == nil {
		r.points[provider] = make(map[string]*extensionPoint)
	}
	r.points[provider][decl.ID] = newExtensionPoint(provider, decl, providerInstance)
	r.logger.Debug("registered extension point", zap.String("provider", provider), zap.String("id", decl.ID))

	key := pendingKey(provider, decl.ID)
	uses := r.pending[key]
	delete(r.pending, key)

	var errs []error
	point := r.points[provider][decl.ID]
	for _, use := range uses {
		if !isCompatible(point.decl.Version, use.version) {
			if use.required {
				err := &plugin.ExtensionPointVersionMismatchError{
					Provider: provider, ExtensionID: decl.ID, Required: use.version, Available: point.decl.Version,
				}
				r.logger.Error("pending required use still incompatible on point registration",
					zap.String("key", key), zap.String("consumer", use.consumer),
					zap.String("required", use.version), zap.String("available", point.decl.Version))
				errs = append(errs, err)
				continue
			}
			r.logger.Warn("pending optional use still incompatible on point registration",
				zap.String("key", key), zap.String("consumer", use.consumer),
				zap.String("required", use.version), zap.String("available", point.decl.Version))
			continue
		}
		point.register(use.consumer, use.impl)
		r.logger.Debug("resolved pending use", zap.String("key", key), zap.String("consumer", use.consumer))
	}
	return errs
}

// UnregisterExtensionPoint removes a point entirely.
func (r *Registry) UnregisterExtensionPoint(provider, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byID, ok := r.points[provider]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(r.points, provider)
		}
	}
}

// isCompatible applies the registry's stricter gating rule: major must
// match and available >= required, distinct from the full resolver
// grammar in internal/depgraph.
func isCompatible(available, required string) bool {
	pred, err := plugin.ParsePredicate(">=" + required)
	if err != nil {
		return false
	}
	ok, err := pred.Satisfies(available)
	if err != nil || !ok {
		return false
	}
	majPred, err := plugin.ParsePredicate("^" + required)
	if err != nil {
		return false
	}
	ok, err = majPred.Satisfies(available)
	return err == nil && ok
}

// RegisterExtensionUse installs consumer's implementation against
// provider.id if the point exists and versions are compatible. If the point
// is missing and required, the use is enqueued as pending; if missing and
// optional, it is logged and dropped.
func (r *Registry) RegisterExtensionUse(consumer, consumerID, provider, id, version string, impl plugin.ExtensionImplementation, required bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if byID, ok := r.points[provider]; ok {
		if point, ok := byID[id]; ok {
			if !isCompatible(point.decl.Version, version) {
				if required {
					return &plugin.ExtensionPointVersionMismatchError{
						Provider: provider, ExtensionID: id, Required: version, Available: point.decl.Version,
					}
				}
				r.logger.Warn("skipping incompatible optional extension use",
					zap.String("provider", provider), zap.String("id", id),
					zap.String("required", version), zap.String("available", point.decl.Version))
				return nil
			}
			point.register(consumer, impl)
			r.logger.Debug("registered extension use",
				zap.String("provider", provider), zap.String("id", id), zap.String("consumer", consumer))
			return nil
		}
	}

	if required {
		key := pendingKey(provider, id)
		r.pending[key] = append(r.pending[key], pendingUse{
			consumer: consumer, consumerID: consumerID, version: version, required: required, impl: impl,
		})
		r.logger.Debug("extension point not found, queued pending use", zap.String("key", key), zap.String("consumer", consumer))
		return nil
	}

	r.logger.Debug("optional extension point not found, skipping",
		zap.String("provider", provider), zap.String("id", id), zap.String("consumer", consumer))
	return nil
}

// UnregisterExtensionUse removes consumer's implementation from provider.id.
func (r *Registry) UnregisterExtensionUse(consumer, provider, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byID, ok := r.points[provider]; ok {
		if point, ok := byID[id]; ok {
			point.unregister(consumer)
		}
	}
}

// HasPendingUse reports whether a consumer has an outstanding pending use
// for provider.id.
func (r *Registry) HasPendingUse(provider, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[pendingKey(provider, id)]) > 0
}

// clearPendingFor removes every pending entry belonging to consumer across
// all keys (used by UnregisterPluginExtensions).
func (r *Registry) clearPendingFor(consumer string) {
	for key, uses := range r.pending {
		filtered := uses[:0]
		for _, u := range uses {
			if u.consumer != consumer {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) == 0 {
			delete(r.pending, key)
		} else {
			r.pending[key] = filtered
		}
	}
}

// CandidateNames computes the deterministic name-resolution candidates for
// an extension use: "{provider}_{id}", "implement_{provider}_{id}",
// "extension_{provider}_{id}", lowercased with non-identifier characters
// mapped to underscore.
func CandidateNames(provider, id string) []string {
	p := snake(provider)
	i := snake(id)
	return []string{
		fmt.Sprintf("%s_%s", p, i),
		fmt.Sprintf("implement_%s_%s", p, i),
		fmt.Sprintf("extension_%s_%s", p, i),
	}
}

var nonIdentifier = regexp.MustCompile(`[^a-z0-9_]+`)

func snake(s string) string {
	s = strings.ToLower(s)
	return nonIdentifier.ReplaceAllString(s, "_")
}

// RegisterPluginExtensions registers every point the manifest declares, then
// for every declared use looks up an implementation via the plugin's
// ExtensionImplementationProvider map (or, if the provider isn't found yet,
// enqueues a pending use). A required use with no implementation in that map
// is an error, including when the plugin does not implement
// ExtensionImplementationProvider at all.
func (r *Registry) RegisterPluginExtensions(name string, instance any, manifest *plugin.Manifest) error {
	for _, decl := range manifest.ExtensionPoints {
		if errs := r.RegisterExtensionPoint(name, decl, instance); len(errs) > 0 {
			return errors.Join(errs...)
		}
	}

	provider, _ := instance.(plugin.ExtensionImplementationProvider)

	for _, use := range manifest.ExtensionUses {
		var impl plugin.ExtensionImplementation
		if provider != nil {
			impls := provider.ExtensionImplementations()
			for _, candidate := range CandidateNames(use.Provider, use.ID) {
				if fn, ok := impls[candidate]; ok {
					impl = fn
					break
				}
			}
		}

		if impl == nil {
			if use.Required {
				return fmt.Errorf("required extension implementation for %q from provider %q not found in plugin %q",
					use.ID, use.Provider, name)
			}
			continue
		}

		consumerID := fmt.Sprintf("%s.%s.%s", name, use.Provider, use.ID)
		if err := r.RegisterExtensionUse(name, consumerID, use.Provider, use.ID, use.Version, impl, use.Required); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterPluginExtensions removes every point the plugin owns, every
// implementation it installed against other points, and purges its pending uses.
func (r *Registry) UnregisterPluginExtensions(name string) {
	r.mu.Lock()
	if byID, ok := r.points[name]; ok {
		for id := range byID {
			delete(byID, id)
		}
		delete(r.points, name)
	}
	for _, byID := range r.points {
		for _, point := range byID {
			point.unregister(name)
		}
	}
	r.clearPendingFor(name)
	r.mu.Unlock()
}

// Invoke calls every registered implementation of provider.id in
// registration order, returning a mapping consumer name -> result.
func (r *Registry) Invoke(ctx context.Context, provider, id string, args ...any) (map[string]any, error) {
	r.mu.Lock()
	byID, ok := r.points[provider]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q from provider %q", plugin.ErrExtensionNotFound, id, provider)
	}
	point, ok := byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q from provider %q", plugin.ErrExtensionNotFound, id, provider)
	}
	order, impls := point.snapshot()
	r.mu.Unlock()
	return invokeAll(ctx, order, impls, args...), nil
}
