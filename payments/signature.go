package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// expectedSignature recomputes the gateway checkout signature:
// HMAC-SHA256 over "orderID|paymentID" with the key secret, hex encoded.
func expectedSignature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the client-supplied signature against the
// recomputed one in constant time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	expected := expectedSignature(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
