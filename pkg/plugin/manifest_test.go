package plugin

import "testing"

func validManifest() *Manifest {
	return &Manifest{
		Name:           "recon",
		DisplayName:    "Recon",
		Version:        "1.0.0",
		Description:    "Network discovery",
		Author:         Author{Name: "Jane Doe", Email: "jane@example.com"},
		License:        "MIT",
		EntryPoint:     "recon.plugin.Recon",
		MinCoreVersion: "1.0.0",
	}
}

func TestValidateManifestAcceptsValid(t *testing.T) {
	if err := ValidateManifest(validManifest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateManifestRejectsBadName(t *testing.T) {
	m := validManifest()
	m.Name = "Recon"
	if err := ValidateManifest(m); err == nil {
		t.Fatal("expected error for uppercase name")
	}

	m2 := validManifest()
	m2.Name = "ab"
	if err := ValidateManifest(m2); err == nil {
		t.Fatal("expected error for too-short name")
	}
}

func TestValidateManifestRejectsSelfDependency(t *testing.T) {
	m := validManifest()
	m.Dependencies = []Dependency{{Name: "recon", Version: ">=1.0.0"}}
	if err := ValidateManifest(m); err == nil {
		t.Fatal("expected error for self-dependency")
	}
}

func TestValidateManifestRejectsBareHookTarget(t *testing.T) {
	m := validManifest()
	m.LifecycleHooks = map[HookKind]string{HookPostInstall: "notmodulequalified"}
	if err := ValidateManifest(m); err == nil {
		t.Fatal("expected error for non-module-qualified hook target")
	}
}

func TestIsCompatibleWithCore(t *testing.T) {
	m := validManifest()
	m.MinCoreVersion = "1.0.0"
	m.MaxCoreVersion = "2.0.0"

	ok, err := IsCompatibleWithCore(m, "1.5.0")
	if err != nil || !ok {
		t.Fatalf("expected compatible, got ok=%v err=%v", ok, err)
	}

	ok, err = IsCompatibleWithCore(m, "2.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incompatible above max_core_version")
	}
}

func TestGetCapabilityRisks(t *testing.T) {
	m := validManifest()
	m.Capabilities = []Capability{CapConfigRead, CapSystemExec, Capability("unknown.token")}

	risks := GetCapabilityRisks(m)
	if len(risks) != 3 {
		t.Fatalf("len(risks) = %d, want 3", len(risks))
	}
	if risks[0].Risk != RiskLow {
		t.Errorf("config.read risk = %v, want low", risks[0].Risk)
	}
	if risks[1].Risk != RiskHigh {
		t.Errorf("system.exec risk = %v, want high", risks[1].Risk)
	}
	if risks[2].Risk != RiskHigh {
		t.Errorf("unknown capability risk = %v, want high (fail closed)", risks[2].Risk)
	}
}
