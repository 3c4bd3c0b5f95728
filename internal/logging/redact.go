package logging

import (
	"regexp"
	"sort"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b(` + strings.Join(secretKeys(), "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	uriPasswordPattern = regexp.MustCompile(`(\b[a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:)([^@\s]+)(@)`)
)

func secretKeys() []string {
	keys := []string{
		"MONGODB_URI",
		"MONGO_URL",
		"MONGO_INITDB_ROOT_PASSWORD",
		"DATABASE_URL",
		"DATABASE_PASSWORD",
		"DB_PASSWORD",
		"JWT_SECRET",
		"SESSION_SECRET",
		"API_KEY",
		"ACCESS_TOKEN",
		"REFRESH_TOKEN",
		"CLIENT_SECRET",
	}
	escaped := make([]string, len(keys))
	for i, key := range keys {
		escaped[i] = regexp.QuoteMeta(key)
	}
	return escaped
}

// RedactSecrets masks ${VAR} references, known secret key assignments and
// passwords embedded in connection URIs.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(string) string {
		return "${" + redactedPlaceholder + "}"
	})
	redacted = secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
	return uriPasswordPattern.ReplaceAllString(redacted, "${1}"+redactedPlaceholder+"${3}")
}

// RedactEnv renders env as sorted KEY=value pairs with secrets masked.
func RedactEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, RedactSecrets(key+"="+value))
	}
	sort.Strings(out)
	return out
}
