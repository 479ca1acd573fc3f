package installer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/internal/depgraph"
	"github.com/sssolid/qorzen-sub001/internal/lifecycle"
	"github.com/sssolid/qorzen-sub001/internal/pkgloader"
	"github.com/sssolid/qorzen-sub001/internal/store"
	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

type fakePlugin struct{ hooks map[plugin.HookKind]plugin.HookFunc }

func (f *fakePlugin) Initialize(ctx context.Context, host plugin.Host) error { return nil }
func (f *fakePlugin) Shutdown(ctx context.Context) error                    { return nil }
func (f *fakePlugin) Hooks() map[plugin.HookKind]plugin.HookFunc            { return f.hooks }

func validManifest(name string) plugin.Manifest {
	return plugin.Manifest{
		Name: name, DisplayName: name, Version: "1.0.0",
		Description: "a plugin long enough", Author: plugin.Author{Name: "A", Email: "a@example.com"},
		License: "MIT", EntryPoint: "main." + name, MinCoreVersion: "1.0.0",
	}
}

func buildPackage(t *testing.T, manifest plugin.Manifest) string {
	t.Helper()
	src := t.TempDir()
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "manifest.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "main.go"), []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), manifest.Name+".zip")
	if _, err := pkgloader.Create(src, out, &manifest, pkgloader.FormatZip); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return out
}

func newTestInstaller(t *testing.T) *Installer {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := zap.NewNop()
	lc := lifecycle.New(logger, nil)
	resolver := depgraph.NewResolver(logger)
	return New(logger, st, resolver, lc, nil, filepath.Join(t.TempDir(), "plugins"), "1.0.0")
}

func TestInstallHappyPath(t *testing.T) {
	in := newTestInstaller(t)
	m := validManifest("widgets")
	in.RegisterFactory(m.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	pkgPath := buildPackage(t, m)

	record, err := in.Install(context.Background(), InstallOptions{PackagePath: pkgPath, Enable: true, SkipVerification: true})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if record.Manifest.Name != "widgets" || !record.Enabled {
		t.Fatalf("unexpected record: %+v", record)
	}
	if _, err := os.Stat(filepath.Join(in.pluginsDir, "widgets", "main.go")); err != nil {
		t.Fatalf("expected installed files on disk: %v", err)
	}

	stored, err := in.store.GetInstalledPlugin(context.Background(), "widgets")
	if err != nil || stored == nil {
		t.Fatalf("GetInstalledPlugin: %v, %v", stored, err)
	}
}

func TestInstallWithoutForceFailsWhenAlreadyInstalled(t *testing.T) {
	in := newTestInstaller(t)
	m := validManifest("widgets")
	in.RegisterFactory(m.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	pkgPath := buildPackage(t, m)

	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: pkgPath, Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	pkgPath2 := buildPackage(t, m)
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: pkgPath2, Enable: true, SkipVerification: true}); err == nil {
		t.Fatal("expected failure reinstalling without force")
	}
}

func TestInstallWithForceReinstalls(t *testing.T) {
	in := newTestInstaller(t)
	m := validManifest("widgets")
	in.RegisterFactory(m.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	pkgPath := buildPackage(t, m)
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: pkgPath, Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("first Install: %v", err)
	}

	m2 := m
	m2.Version = "1.1.0"
	pkgPath2 := buildPackage(t, m2)
	record, err := in.Install(context.Background(), InstallOptions{PackagePath: pkgPath2, Force: true, Enable: true, SkipVerification: true})
	if err != nil {
		t.Fatalf("forced Install: %v", err)
	}
	if record.Manifest.Version != "1.1.0" {
		t.Fatalf("version = %s, want 1.1.0", record.Manifest.Version)
	}
}

func TestUninstallRefusesWhenDependentExists(t *testing.T) {
	in := newTestInstaller(t)
	base := validManifest("base")
	in.RegisterFactory(base.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: buildPackage(t, base), Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("install base: %v", err)
	}

	dependent := validManifest("dependent")
	dependent.Dependencies = []plugin.Dependency{{Name: "base", Version: ">=1.0.0"}}
	in.RegisterFactory(dependent.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: buildPackage(t, dependent), Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("install dependent: %v", err)
	}

	if err := in.Uninstall(context.Background(), UninstallOptions{Name: "base"}); err == nil {
		t.Fatal("expected uninstall to be refused")
	}
}

func TestUninstallRemovesFilesAndRecord(t *testing.T) {
	in := newTestInstaller(t)
	m := validManifest("widgets")
	in.RegisterFactory(m.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: buildPackage(t, m), Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("install: %v", err)
	}

	if err := in.Uninstall(context.Background(), UninstallOptions{Name: "widgets"}); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	if _, err := os.Stat(filepath.Join(in.pluginsDir, "widgets")); !os.IsNotExist(err) {
		t.Fatalf("expected install dir removed, stat err = %v", err)
	}
	stored, err := in.store.GetInstalledPlugin(context.Background(), "widgets")
	if err != nil || stored != nil {
		t.Fatalf("expected no stored record, got %+v, err %v", stored, err)
	}
}

func TestGetLoadingOrderOrdersDependenciesFirst(t *testing.T) {
	in := newTestInstaller(t)
	base := validManifest("base")
	in.RegisterFactory(base.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: buildPackage(t, base), Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("install base: %v", err)
	}

	dependent := validManifest("dependent")
	dependent.Dependencies = []plugin.Dependency{{Name: "base", Version: ">=1.0.0"}}
	in.RegisterFactory(dependent.EntryPoint, func() plugin.Plugin { return &fakePlugin{} })
	if _, err := in.Install(context.Background(), InstallOptions{PackagePath: buildPackage(t, dependent), Enable: true, SkipVerification: true}); err != nil {
		t.Fatalf("install dependent: %v", err)
	}

	order, err := in.GetLoadingOrder(context.Background())
	if err != nil {
		t.Fatalf("GetLoadingOrder: %v", err)
	}
	baseIdx, depIdx := -1, -1
	for i, name := range order {
		switch name {
		case "base":
			baseIdx = i
		case "dependent":
			depIdx = i
		}
	}
	if baseIdx == -1 || depIdx == -1 || baseIdx > depIdx {
		t.Fatalf("order = %v, want base before dependent", order)
	}
}
