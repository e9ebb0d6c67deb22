// Package logging scrubs credentials from values before they reach a log line.
package logging

import (
	"regexp"

	"go.uber.org/zap"
)

// Redacted replaces every secret the sanitizer finds.
const Redacted = "[REDACTED]"

var (
	// key=value secrets in libpq keyword strings and query strings.
	secretParam = regexp.MustCompile(`(?i)\b(password|pwd|pass|secret|sslpassword)=[^;&\s]+`)

	// user:pass@ in URL-form DSNs.
	urlUserinfo = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)

	bearerToken = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]*`)
)

// SanitizeDSN hides the password in a PostgreSQL DSN in either keyword or URL
// form. Host, port and database stay readable.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	out := secretParam.ReplaceAllString(dsn, "${1}="+Redacted)
	return urlUserinfo.ReplaceAllString(out, "://"+Redacted+"@")
}

// SanitizeError returns err's message with DSN passwords and bearer tokens
// removed. Driver errors may echo the connection string.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	out := SanitizeDSN(err.Error())
	return bearerToken.ReplaceAllString(out, "Bearer "+Redacted)
}

// Error is zap.Error with the message sanitized.
func Error(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", SanitizeError(err))
}
