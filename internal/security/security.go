// Package security implements the Host's Security collaborator (capability
// gating over the manifest capability taxonomy) and protects the Verifier's
// signing key at rest, adapted from internal/vault's Argon2id+AES-GCM
// master-key machinery: the signing key takes the DEK's role, a node
// operator's passphrase takes the KEK's role.
package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sssolid/qorzen-sub001/internal/vault"
	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// CapabilityGuard implements plugin.Security against one plugin's declared
// capability set.
type CapabilityGuard struct {
	granted map[plugin.Capability]bool
}

// NewCapabilityGuard builds a guard scoped to manifest's declared capabilities.
func NewCapabilityGuard(manifest *plugin.Manifest) *CapabilityGuard {
	granted := make(map[plugin.Capability]bool, len(manifest.Capabilities))
	for _, c := range manifest.Capabilities {
		granted[c] = true
	}
	return &CapabilityGuard{granted: granted}
}

// HasCapability implements plugin.Security.
func (g *CapabilityGuard) HasCapability(capability plugin.Capability) bool {
	return g.granted[capability]
}

// SigningKeyProtector seals the core's signing key (the Verifier's HMAC
// secret) behind a passphrase-derived key-encryption-key, so the secret
// never sits on disk in the clear. Its fields round-trip through JSON so the
// sealed form can be persisted between restarts.
type SigningKeyProtector struct {
	Salt         []byte `json:"salt"`
	Wrapped      []byte `json:"wrapped"`
	Verification []byte `json:"verification"`
}

// Seal derives a KEK from passphrase, wraps signingKey with it, and records a
// verification blob used to confirm the passphrase on Unseal.
func Seal(passphrase string, signingKey []byte) (*SigningKeyProtector, error) {
	salt, err := vault.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	kek := vault.DeriveKEK(passphrase, salt)
	defer vault.ZeroBytes(kek)

	wrapped, err := vault.WrapDEK(kek, signingKey)
	if err != nil {
		return nil, fmt.Errorf("wrap signing key: %w", err)
	}
	verification, err := vault.CreateVerificationBlob(kek)
	if err != nil {
		return nil, fmt.Errorf("create verification blob: %w", err)
	}
	return &SigningKeyProtector{Salt: salt, Wrapped: wrapped, Verification: verification}, nil
}

// Unseal recovers the signing key given the original passphrase, failing if
// the passphrase is wrong.
func (p *SigningKeyProtector) Unseal(passphrase string) ([]byte, error) {
	kek := vault.DeriveKEK(passphrase, p.Salt)
	defer vault.ZeroBytes(kek)

	if !vault.VerifyKEK(kek, p.Verification) {
		return nil, fmt.Errorf("incorrect passphrase")
	}
	return vault.UnwrapDEK(kek, p.Wrapped)
}

// ClientTokenValidator authenticates a browser WebSocket client's token by
// parsing an HMAC-signed JWT's subject claim against the shared secret,
// satisfying internal/ws.TokenValidator without that package depending on
// this one.
type ClientTokenValidator struct {
	secret []byte
}

// NewClientTokenValidator builds a validator keyed by secret.
func NewClientTokenValidator(secret []byte) *ClientTokenValidator {
	return &ClientTokenValidator{secret: secret}
}

// ValidateClientToken parses token and returns its subject claim.
func (v *ClientTokenValidator) ValidateClientToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid client token: %w", err)
	}
	return claims.Subject, nil
}
