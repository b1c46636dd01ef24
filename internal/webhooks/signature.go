package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix names the algorithm in the X-Signature header value.
const signaturePrefix = "sha256="

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHMAC returns the X-Signature value for a delivery body: "sha256=" and
// the lowercase hex HMAC-SHA256 of the body under the subscription secret.
func SignHMAC(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(digest(secret, body))
}

// VerifyHMAC is what a receiver runs on an incoming delivery. A bare hex
// digest without the prefix is accepted too.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(provided, signaturePrefix))
	if err != nil {
		return false
	}
	return hmac.Equal(digest(secret, body), got)
}
