package payment

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
)

// Sign computes the Cryptomus request signature over the exact body bytes:
// md5(base64(body) + apiKey), hex encoded.
func Sign(body []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	sum := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(sum[:])
}
