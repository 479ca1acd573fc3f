package verify

import (
	"testing"
	"time"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

func testManifest() *plugin.Manifest {
	return &plugin.Manifest{
		Name: "widgets", DisplayName: "Widgets", Version: "1.0.0",
		Description: "desc", Author: plugin.Author{Name: "A", Email: "a@example.com"},
		License: "MIT", EntryPoint: "main.Plugin", MinCoreVersion: "1.0.0",
	}
}

func TestSignThenVerifySucceeds(t *testing.T) {
	v := New([]byte("secret"), "qorzen-registry")
	m := testManifest()

	sig, err := v.Sign(m, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Signature = sig

	ok, err := v.Verify("manifest.json", m)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}
}

func TestVerifyRejectsTamperedManifest(t *testing.T) {
	v := New([]byte("secret"), "qorzen-registry")
	m := testManifest()
	sig, err := v.Sign(m, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Signature = sig
	m.Version = "2.0.0"

	ok, err := v.Verify("manifest.json", m)
	if ok || err == nil {
		t.Fatalf("expected tamper detection, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer := New([]byte("secret-a"), "qorzen-registry")
	verifier := New([]byte("secret-b"), "qorzen-registry")
	m := testManifest()
	sig, err := signer.Sign(m, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Signature = sig

	ok, err := verifier.Verify("manifest.json", m)
	if ok || err == nil {
		t.Fatal("expected verification to fail with mismatched key")
	}
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	v := New([]byte("secret"), "qorzen-registry")
	m := testManifest()

	ok, err := v.Verify("manifest.json", m)
	if ok || err == nil {
		t.Fatal("expected failure for unsigned manifest")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	signer := New([]byte("secret"), "other-issuer")
	verifier := New([]byte("secret"), "qorzen-registry")
	m := testManifest()
	sig, err := signer.Sign(m, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Signature = sig

	ok, err := verifier.Verify("manifest.json", m)
	if ok || err == nil {
		t.Fatal("expected issuer mismatch to fail verification")
	}
}
