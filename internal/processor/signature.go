package processor

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	"github.com/susupay/walletops/internal/domain"
)

// SignatureHeader carries the payload signature on webhook deliveries.
const SignatureHeader = "X-Callback-Signature"

// Verifier checks webhook payload signatures with the shared server key.
type Verifier struct {
	key []byte
}

func NewVerifier(serverKey string) *Verifier {
	return &Verifier{key: []byte(serverKey)}
}

// Verify recomputes the HMAC-SHA512 of the raw payload and compares it in
// constant time against the hex signature from the delivery header.
func (v *Verifier) Verify(payload []byte, signature string) error {
	mac := hmac.New(sha512.New, v.key)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature for a payload. Used by tests and the local
// webhook replay tooling.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, v.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
