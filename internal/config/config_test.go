package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockstun.yaml")
	doc := `
proxy: socks5://10.0.0.1:9050
target: example.com:22
forward_listen: 127.0.0.1:2222
dns_servers:
  - 1.1.1.1:53
  - 8.8.8.8:53
dial_timeout: 3s
negotiation_timeout: 1m30s
strict_negotiation: true
tcp_keepalive: "30:10:4"
log_level: debug
verbose: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := &File{
		Proxy:              "socks5://10.0.0.1:9050",
		Target:             "example.com:22",
		ForwardListen:      "127.0.0.1:2222",
		DNSServers:         []string{"1.1.1.1:53", "8.8.8.8:53"},
		DialTimeout:        3 * time.Second,
		NegotiationTimeout: 90 * time.Second,
		StrictNegotiation:  true,
		TCPKeepAlive:       "30:10:4",
		LogLevel:           "debug",
		Verbose:            true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: "proxi: socks5://x\n"},
		{name: "bad duration", doc: "dial_timeout: soon\n"},
		{name: "negative timeout", doc: "negotiation_timeout: -1s\n"},
		{name: "wrong type", doc: "dns_servers: 1.1.1.1\nverbose: [x]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, &File{}) {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
