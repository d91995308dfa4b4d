package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces credentials and signatures in bridge logs.
const RedactedValue = "[REDACTED]"

// loggedKeys are the bridge attributes emitted verbatim.
var loggedKeys = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"component":  {},
	"action":     {},
	"sender":     {},
	"player":     {},
	"address":    {},
	"coins":      {},
	"nonce":      {},
	"outcome":    {},
	"code":       {},
	"method":     {},
	"source":     {},
	"chain_id":   {},
	"contract":   {},
	"block_time": {},
	"version":    {},
}

// sensitiveKeys are always masked: oracle and envelope signatures, operator
// bearer tokens and keystore material.
var sensitiveKeys = map[string]struct{}{
	"signature":     {},
	"authorization": {},
	"token":         {},
	"jwt_secret":    {},
	"passphrase":    {},
	"keystore":      {},
	"private_key":   {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	k := normalizeKey(key)
	if _, ok := sensitiveKeys[k]; ok {
		return false
	}
	_, ok := loggedKeys[k]
	return ok
}

// RedactionAllowlist returns the sorted keys logged verbatim.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(loggedKeys))
	for key := range loggedKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue hides non-empty values. An empty value stays empty so a log line
// still shows whether, say, an envelope carried a signature at all.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute for key, masking value unless key is a known
// bridge attribute.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
