// Package signing computes the payload-authenticity signature carried in the
// X-SMS-GATEWAY-Signature header: lowercase hex HMAC-SHA256 over the exact
// body bytes, keyed with the webhook's secret.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
