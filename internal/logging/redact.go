// Package logging keeps credentials out of log output. The daemon
// handles a bot token, OAuth client secrets, and short-lived access
// tokens; any of them can end up inside an error string or a logged
// URL, so every record passes through a redactor before it is written.
package logging

import (
	"regexp"
	"strings"
	"sync"
)

// placeholder is the replacement string for redacted secrets.
const placeholder = "***"

// tokenParamPattern matches access tokens embedded in query strings.
var tokenParamPattern = regexp.MustCompile(`(access_token=)[^&\s"']+`)

// Redactor replaces known secret values in strings. Safe for
// concurrent use; tokens rotate at runtime, so literals can be added
// after construction.
type Redactor struct {
	mu       sync.RWMutex
	literals []string
}

// NewRedactor creates a Redactor seeded with the given secrets.
// Empty strings are ignored.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		r.Add(s)
	}
	return r
}

// Add registers another literal secret, typically a freshly issued
// access token.
func (r *Redactor) Add(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	r.literals = append(r.literals, secret)
	r.mu.Unlock()
}

// Redact replaces every known secret in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	s = tokenParamPattern.ReplaceAllString(s, "${1}"+placeholder)

	r.mu.RLock()
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, placeholder)
		}
	}
	return s
}
