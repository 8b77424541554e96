package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignSHA256 returns the hex HMAC-SHA256 of msg.
func SignSHA256(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignSHA512 returns the hex HMAC-SHA512 of msg.
func SignSHA512(secret string, msg []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalSignature compares hex signatures in constant time, ignoring case.
func equalSignature(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(strings.ToLower(want)))
}
