package images

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the backing service's request signature: credential and
// payload parameters (api_key, file) are excluded, the rest are sorted
// by name, joined as k=v pairs with &, the secret is appended, and the
// SHA-1 digest is rendered as lowercase hex. The parameter set itself is
// the caller's responsibility; it must match what the service verifies.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "api_key" || k == "file" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
