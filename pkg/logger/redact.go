package logger

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// exactSensitiveKeys are redacted only on an exact (case-insensitive) match.
var exactSensitiveKeys = map[string]struct{}{
	"auth":    {},
	"cookie":  {},
	"dsn":     {},
	"email":   {},
	"hash":    {},
	"jwt":     {},
	"session": {},
}

// sensitiveFragments are redacted wherever they appear inside a key, so
// "db_password" and "scm_access_token" are both caught.
var sensitiveFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"private_key",
	"encryption_key",
	"credential",
	"database_url",
	"ssh_key",
}

// redactAttr masks sensitive values in log attributes.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	if _, ok := exactSensitiveKeys[key]; ok {
		return slog.String(a.Key, redacted)
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
