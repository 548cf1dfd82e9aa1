package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignaturePrefix = "sha256="
)

// Sign returns the X-Hub-Signature-256 value GitHub sends for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is a valid "sha256=<hex>"
// HMAC of payload under secret.
func VerifySignature(payload []byte, signature, secret string) bool {
	digest, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok || digest == "" {
		return false
	}

	received, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// Constant-time comparison
	return hmac.Equal(mac.Sum(nil), received)
}
