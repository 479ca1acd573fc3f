package plugin

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"time"
)

// Capability is a token from the fixed taxonomy a manifest may declare.
type Capability string

const (
	CapConfigRead      Capability = "config.read"
	CapConfigWrite     Capability = "config.write"
	CapUIExtend        Capability = "ui.extend"
	CapEventSubscribe  Capability = "event.subscribe"
	CapEventPublish    Capability = "event.publish"
	CapFileRead        Capability = "file.read"
	CapFileWrite       Capability = "file.write"
	CapNetworkConnect  Capability = "network.connect"
	CapDatabaseRead    Capability = "database.read"
	CapDatabaseWrite   Capability = "database.write"
	CapSystemExec      Capability = "system.exec"
	CapSystemMonitor   Capability = "system.monitor"
	CapPluginCommunic  Capability = "plugin.communicate"
)

// CapabilityRisk classifies how dangerous a capability grant is, surfaced to
// an embedding application's install-consent UI.
type CapabilityRisk string

const (
	RiskLow    CapabilityRisk = "low"
	RiskMedium CapabilityRisk = "medium"
	RiskHigh   CapabilityRisk = "high"
)

var capabilityRisks = map[Capability]CapabilityRisk{
	CapConfigRead:     RiskLow,
	CapConfigWrite:    RiskMedium,
	CapUIExtend:       RiskLow,
	CapEventSubscribe: RiskLow,
	CapEventPublish:   RiskLow,
	CapFileRead:       RiskMedium,
	CapFileWrite:      RiskHigh,
	CapNetworkConnect: RiskMedium,
	CapDatabaseRead:   RiskMedium,
	CapDatabaseWrite:  RiskHigh,
	CapSystemExec:     RiskHigh,
	CapSystemMonitor:  RiskLow,
	CapPluginCommunic: RiskLow,
}

// CapabilityRiskInfo pairs a declared capability with its risk classification.
type CapabilityRiskInfo struct {
	Capability Capability
	Risk       CapabilityRisk
}

// GetCapabilityRisks returns the risk classification of every capability the
// manifest declares, in declaration order. Unknown tokens are reported as
// RiskHigh -- an unrecognized capability should not be silently trusted.
func GetCapabilityRisks(m *Manifest) []CapabilityRiskInfo {
	out := make([]CapabilityRiskInfo, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		risk, ok := capabilityRisks[c]
		if !ok {
			risk = RiskHigh
		}
		out = append(out, CapabilityRiskInfo{Capability: c, Risk: risk})
	}
	return out
}

// HookKind names a lifecycle-transition hook declared in a manifest.
type HookKind string

const (
	HookPreInstall    HookKind = "pre_install"
	HookPostInstall   HookKind = "post_install"
	HookPreUninstall  HookKind = "pre_uninstall"
	HookPostUninstall HookKind = "post_uninstall"
	HookPreEnable     HookKind = "pre_enable"
	HookPostEnable    HookKind = "post_enable"
	HookPreDisable    HookKind = "pre_disable"
	HookPostDisable   HookKind = "post_disable"
	HookPreUpdate     HookKind = "pre_update"
	HookPostUpdate    HookKind = "post_update"
)

// uiAffectingHooks must run on the main-thread executor when invoked off it.
var uiAffectingHooks = map[HookKind]bool{
	HookPostEnable: true,
	HookPreDisable: true,
}

// IsUIAffecting reports whether a hook kind must be routed to the main thread.
func (h HookKind) IsUIAffecting() bool { return uiAffectingHooks[h] }

// Author identifies a plugin's author.
type Author struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	URL          string `json:"url,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Dependency declares a required (or optional) other plugin.
type Dependency struct {
	Name     string `json:"name"`
	Version  string `json:"version"` // predicate grammar, see ParsePredicate
	Optional bool   `json:"optional,omitempty"`
	URL      string `json:"url,omitempty"` // fetch hint, see dependency URL grammar
}

// ExtensionPointDecl is a manifest-declared extension point a plugin offers.
type ExtensionPointDecl struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Interface   string         `json:"interface"`
	Version     string         `json:"version"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ExtensionUseDecl is a manifest-declared extension point a plugin consumes.
type ExtensionUseDecl struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	Version  string `json:"version"`
	Required bool   `json:"required"`
}

// Manifest is the full plugin manifest: identity, compatibility range,
// dependency/extension declarations, and the supplemental metadata carried
// over from the original project (tags, homepage, config schema, etc.).
type Manifest struct {
	// Required core fields.
	Name           string       `json:"name"`
	DisplayName    string       `json:"display_name"`
	Version        string       `json:"version"`
	Description    string       `json:"description"`
	Author         Author       `json:"author"`
	License        string       `json:"license"`
	EntryPoint     string       `json:"entry_point"`
	MinCoreVersion string       `json:"min_core_version"`
	MaxCoreVersion string       `json:"max_core_version,omitempty"`

	// Optional core fields.
	Dependencies    []Dependency          `json:"dependencies,omitempty"`
	Capabilities    []Capability          `json:"capabilities,omitempty"`
	ExtensionPoints []ExtensionPointDecl  `json:"extension_points,omitempty"`
	ExtensionUses   []ExtensionUseDecl    `json:"extension_uses,omitempty"`
	LifecycleHooks  map[HookKind]string   `json:"lifecycle_hooks,omitempty"`
	Signature       string                `json:"signature,omitempty"`

	// Supplemental fields carried over from the original project.
	UUID          string          `json:"uuid,omitempty"`
	Homepage      string          `json:"homepage,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Icon          string          `json:"icon,omitempty"`
	Readme        string          `json:"readme,omitempty"`
	Changelog     string          `json:"changelog,omitempty"`
	ConfigSchema  json.RawMessage `json:"config_schema,omitempty"`
	DataMigrations []string       `json:"data_migrations,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

var (
	namePattern  = regexp.MustCompile(`^[a-z][a-z0-9_-]{2,63}$`)
	hookRefRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)+$`)
)

// ValidateManifest checks the manifest's structural invariants.
// It does not check cross-manifest invariants (global name/version
// uniqueness); the installer checks those against the installed set.
func ValidateManifest(m *Manifest) error {
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: name %q must be lowercase, start with a letter, 3-64 chars of [a-z0-9_-]", ErrManifestInvalid, m.Name)
	}
	if m.DisplayName == "" {
		return fmt.Errorf("%w: display_name is required", ErrManifestInvalid)
	}
	if !isValidSemver(m.Version) {
		return fmt.Errorf("%w: version %q is not valid semver", ErrManifestInvalid, m.Version)
	}
	if m.Description == "" {
		return fmt.Errorf("%w: description is required", ErrManifestInvalid)
	}
	if m.Author.Name == "" {
		return fmt.Errorf("%w: author.name is required", ErrManifestInvalid)
	}
	if _, err := mail.ParseAddress(m.Author.Email); err != nil {
		return fmt.Errorf("%w: author.email %q is invalid: %v", ErrManifestInvalid, m.Author.Email, err)
	}
	if m.License == "" {
		return fmt.Errorf("%w: license is required", ErrManifestInvalid)
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("%w: entry_point is required", ErrManifestInvalid)
	}
	if !isValidSemver(m.MinCoreVersion) {
		return fmt.Errorf("%w: min_core_version %q is not valid semver", ErrManifestInvalid, m.MinCoreVersion)
	}
	if m.MaxCoreVersion != "" && !isValidSemver(m.MaxCoreVersion) {
		return fmt.Errorf("%w: max_core_version %q is not valid semver", ErrManifestInvalid, m.MaxCoreVersion)
	}

	for _, d := range m.Dependencies {
		if d.Name == m.Name {
			return fmt.Errorf("%w: dependency %q may not be the plugin itself", ErrManifestInvalid, d.Name)
		}
		if _, err := ParsePredicate(d.Version); err != nil {
			return fmt.Errorf("%w: dependency %q has invalid version predicate: %v", ErrManifestInvalid, d.Name, err)
		}
	}

	for hook, ref := range m.LifecycleHooks {
		if !hookRefRegex.MatchString(ref) {
			return fmt.Errorf("%w: lifecycle hook %q target %q must be at least module-qualified", ErrManifestInvalid, hook, ref)
		}
	}

	return nil
}

// IsCompatibleWithCore reports whether the manifest's core-version range
// accepts the given host core version.
func IsCompatibleWithCore(m *Manifest, coreVersion string) (bool, error) {
	minPred, err := ParsePredicate(">=" + m.MinCoreVersion)
	if err != nil {
		return false, err
	}
	ok, err := minPred.Satisfies(coreVersion)
	if err != nil || !ok {
		return false, err
	}
	if m.MaxCoreVersion == "" {
		return true, nil
	}
	maxPred, err := ParsePredicate("<=" + m.MaxCoreVersion)
	if err != nil {
		return false, err
	}
	return maxPred.Satisfies(coreVersion)
}
