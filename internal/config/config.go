// Package config loads the optional sockstun YAML configuration file.
//
// Every field mirrors a command-line flag; flags given explicitly on the
// command line take precedence over file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type File struct {
	// Proxy is the upstream URL, e.g. socks5h://127.0.0.1:1080.
	Proxy string `yaml:"proxy"`

	// Target is the host:port tunneled to in netcat and forward modes.
	Target string `yaml:"target"`

	ForwardListen string `yaml:"forward_listen"`
	TProxyListen  string `yaml:"tproxy_listen"`

	DNSServers []string `yaml:"dns_servers"`

	DialTimeout        time.Duration `yaml:"dial_timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	StrictNegotiation  bool          `yaml:"strict_negotiation"`
	TCPKeepAlive       string        `yaml:"tcp_keepalive"`

	LogLevel string `yaml:"log_level"`
	Verbose  bool   `yaml:"verbose"`
}

// Load reads and decodes the file at path. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func Load(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(buf)
}

// Parse decodes a YAML document. An empty document yields a zero File.
func Parse(buf []byte) (*File, error) {
	f := File{}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if f.DialTimeout < 0 || f.NegotiationTimeout < 0 {
		return nil, errors.New("parse config: timeouts must not be negative")
	}
	return &f, nil
}
