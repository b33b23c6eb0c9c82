package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureLength is the number of hex characters kept from the keyed hash.
const SignatureLength = 16

// Signer mints QR signatures with a single shared secret. The secret is
// injected at construction; there is no process-wide key state.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignFields computes the signature over a canonical signing-field list as
// produced by qrcodec: the fields joined with "|", HMAC-SHA-256, hex,
// truncated to SignatureLength characters.
func (s *Signer) SignFields(fields []string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(mac.Sum(nil))[:SignatureLength]
}

// PointSignature is the legacy signature over order id and token alone,
// retained for minting tickets issued before the multi-field scheme. The
// signed string embeds the secret, matching the historical format.
func (s *Signer) PointSignature(orderID, token string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%s", orderID, token, s.secret)
	return hex.EncodeToString(mac.Sum(nil))[:SignatureLength]
}

// GenerateToken mints a new opaque QR token: 16 random bytes, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// equalSignatures compares two signatures case-insensitively in constant
// time. Signatures are hex, so ASCII lowering is enough.
func equalSignatures(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}
