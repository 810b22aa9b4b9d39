// internal/webhook/signature.go
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks an HMAC-SHA256 payload signature against every
// configured secret, accepting if any matches. Comparison is constant-time
// per secret; trying all secrets supports rotation and multiple upstream
// webhook configurations pointing at one endpoint.
func VerifySignature(body []byte, header string, secrets []string) bool {
	if header == "" || len(secrets) == 0 {
		return false
	}

	given, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || len(given) == 0 {
		return false
	}

	for _, secret := range secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		if hmac.Equal(given, mac.Sum(nil)) {
			return true
		}
	}
	return false
}
