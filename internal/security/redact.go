package security

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

var secretParams = []string{
	"pass", "pwd", "secret", "token", "key", "auth", "bearer",
	"credential", "session", "sid", "private",
}

// RedactURL strips credentials and secret-looking query values from a URL
// before it is logged.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isSecretParam(name) {
				q[name] = []string{redacted}
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func isSecretParam(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range secretParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
