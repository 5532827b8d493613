// Package auth provides bearer-token sources for the streaming transports.
//
// Both the audio uplink and the instruction downlink authenticate with a
// token passed as a URL query parameter. Token lookup is synchronous and
// never performs network I/O: an empty token is a hard precondition failure
// for Connect, checked before any dial attempt.
package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// TokenSource returns the current bearer token, or "" when none is available.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Static returns a TokenSource that always yields the given token.
func Static(token string) TokenSource {
	return TokenFunc(func() string { return token })
}

// Env returns a TokenSource that reads the token from an environment
// variable on every lookup.
func Env(name string) TokenSource {
	return TokenFunc(func() string { return os.Getenv(name) })
}

// FileSource reads a token from a file once and caches it. The embedding
// application can call Reload after rotating the file.
type FileSource struct {
	path string

	mu    sync.RWMutex
	token string
}

// LoadFile creates a FileSource and performs the initial read.
func LoadFile(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	s := &FileSource{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the token file.
func (s *FileSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Token returns the cached token.
func (s *FileSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
