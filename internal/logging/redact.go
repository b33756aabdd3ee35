package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// secretPattern matches key=value and key: value pairs whose key names a
// credential, including query strings such as "?apiKey=...".
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|password)([=:]\s*)["']?([^\s"'&]+)`)

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credential values in s.
func Redact(s string) string {
	return secretPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := secretPattern.FindStringSubmatch(match)
		return m[1] + m[2] + MaskSecret(m[3])
	})
}

// RedactDSN hides the password of a connection URL. Strings that do not
// parse as URLs are passed through Redact.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return Redact(dsn)
	}
	return u.Redacted()
}

type redactedError struct {
	err error
}

func (e redactedError) Error() string { return Redact(e.err.Error()) }
func (e redactedError) Unwrap() error { return e.err }

// RedactError returns err with credentials masked from its message. The
// wrapped error stays reachable through errors.Is and errors.As.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return redactedError{err: err}
}
