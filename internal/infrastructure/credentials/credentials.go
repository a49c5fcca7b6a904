// Package credentials supplies the bearer and CSRF tokens sent with each
// remote submission. Sources are consulted on every call and never cached,
// so a token rotated on disk takes effect on the next submission.
package credentials

import (
	"os"
	"strings"
)

// TokenSource returns the current token, or false when none is available.
type TokenSource interface {
	Token() (string, bool)
}

// Static is a fixed token. The empty string means absent.
type Static string

func (s Static) Token() (string, bool) {
	return string(s), s != ""
}

// File reads the token from a file on every call. Surrounding whitespace is
// trimmed; a missing or blank file means absent.
type File struct {
	Path string
}

func (f File) Token() (string, bool) {
	if f.Path == "" {
		return "", false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(data))
	return tok, tok != ""
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Name string
}

func (e Env) Token() (string, bool) {
	tok := strings.TrimSpace(os.Getenv(e.Name))
	return tok, tok != ""
}

// Chain returns the first available token.
type Chain []TokenSource

func (c Chain) Token() (string, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if tok, ok := src.Token(); ok {
			return tok, true
		}
	}
	return "", false
}

// FromConfig builds a source that prefers the file over the inline value and
// falls back to envName.
func FromConfig(inline, path, envName string) TokenSource {
	var chain Chain
	if path != "" {
		chain = append(chain, File{Path: path})
	}
	if inline != "" {
		chain = append(chain, Static(inline))
	}
	if envName != "" {
		chain = append(chain, Env{Name: envName})
	}
	return chain
}
