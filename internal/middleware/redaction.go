package middleware

import (
	"net/http"
	"strings"
)

const redactedValue = "[REDACTED]"

// Headers that may carry credentials from the gateway, Vault or AWS clients.
// Keys are canonical; Authorization-style values keep their scheme.
var credentialHeaders = map[string]bool{
	"Authorization":        true,
	"Proxy-Authorization":  true,
	"Cookie":               false,
	"Set-Cookie":           false,
	"X-Api-Key":            false,
	"X-Vault-Token":        false,
	"X-Amz-Security-Token": false,
}

// RedactHeaders returns a copy of h that is safe to log
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}

	out := h.Clone()
	for key, values := range out {
		keepScheme, sensitive := credentialHeaders[http.CanonicalHeaderKey(key)]
		if !sensitive {
			continue
		}
		for i, v := range values {
			values[i] = redactValue(v, keepScheme)
		}
	}
	return out
}

func redactValue(v string, keepScheme bool) string {
	if keepScheme {
		if scheme, _, ok := strings.Cut(strings.TrimSpace(v), " "); ok && scheme != "" {
			return scheme + " " + redactedValue
		}
	}
	return redactedValue
}
