// Package verify implements the Verifier collaborator: checks a package
// manifest's detached signature. Grounded in
// internal/auth's JWT access-token machinery, adapted from "sign a user
// session" to "sign a manifest's content hash".
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// signatureClaims is the JWT payload carried in a manifest's Signature
// field: a detached signature over the manifest's content hash, not the
// manifest itself.
type signatureClaims struct {
	jwt.RegisteredClaims
	ManifestHash string `json:"mh"`
}

// Verifier checks a manifest's detached signature against a shared HMAC key.
// It implements plugin.Verifier.
type Verifier struct {
	secret []byte
	issuer string
}

// New constructs a Verifier keyed by secret. issuer is checked against the
// signature's "iss" claim.
func New(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Sign produces a detached signature over manifest's content hash, suitable
// for the manifest's Signature field. Used by publishing tooling, not by the
// core itself.
func (v *Verifier) Sign(manifest *plugin.Manifest, ttl time.Duration) (string, error) {
	hash, err := contentHash(manifest)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ManifestHash: hash,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify implements plugin.Verifier. manifestPath is accepted to satisfy the
// narrow contract but is not itself hashed: the signature
// covers the parsed manifest's semantic content, not its on-disk bytes.
func (v *Verifier) Verify(manifestPath string, manifest *plugin.Manifest) (bool, error) {
	if manifest.Signature == "" {
		return false, fmt.Errorf("%w: manifest %q has no signature", plugin.ErrSignatureInvalid, manifest.Name)
	}

	var claims signatureClaims
	token, err := jwt.ParseWithClaims(manifest.Signature, &claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return false, fmt.Errorf("%w: %v", plugin.ErrSignatureInvalid, err)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return false, fmt.Errorf("%w: unexpected issuer %q", plugin.ErrSignatureInvalid, claims.Issuer)
	}

	expected, err := contentHash(manifest)
	if err != nil {
		return false, err
	}
	if claims.ManifestHash != expected {
		return false, fmt.Errorf("%w: manifest content hash mismatch", plugin.ErrSignatureInvalid)
	}
	return true, nil
}

// contentHash hashes the manifest's JSON encoding with Signature cleared, so
// the signature never signs over itself.
func contentHash(manifest *plugin.Manifest) (string, error) {
	unsigned := *manifest
	unsigned.Signature = ""
	data, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
