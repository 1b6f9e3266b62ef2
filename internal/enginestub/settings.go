package enginestub

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches config.DefaultEngineURL so a fresh project talks to
	// the stub without edits.
	DefaultPort = 8790
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the stub engine.
type Settings struct {
	Host         string
	Port         int
	AuthToken    string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings returns loopback settings with environment overrides
// (DRAFTFLOW_STUB_HOST, DRAFTFLOW_STUB_PORT, DRAFTFLOW_STUB_TOKEN) applied.
func DefaultSettings() Settings {
	s := Settings{Host: DefaultHost, Port: DefaultPort}
	s.applyEnvOverrides()
	s.normalize()
	return s
}

// ParseAddress fills Host and Port from a host:port string. An empty host
// keeps the current one.
func (s *Settings) ParseAddress(addr string) error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	p, err := strconv.Atoi(port)
	if err != nil || !isValidPort(p) && p != 0 {
		return &net.AddrError{Err: "invalid port", Addr: addr}
	}
	if host != "" {
		s.Host = host
	}
	s.Port = p
	return nil
}

func (s *Settings) applyEnvOverrides() {
	if host := strings.TrimSpace(os.Getenv("DRAFTFLOW_STUB_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("DRAFTFLOW_STUB_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
	if token := strings.TrimSpace(os.Getenv("DRAFTFLOW_STUB_TOKEN")); token != "" {
		s.AuthToken = token
	}
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
