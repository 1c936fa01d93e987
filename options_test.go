package main

import (
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "1:2", wantErr: true},
		{in: "0:1:1", wantErr: true},
		{in: "1:x:1", wantErr: true},
		{in: "1:1:-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultUpstream(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "unset", want: defaultProxy},
		{name: "upper", env: map[string]string{"ALL_PROXY": "socks5://a:1"}, want: "socks5://a:1"},
		{name: "lower", env: map[string]string{"all_proxy": "socks5://b:2"}, want: "socks5://b:2"},
		{name: "upper wins", env: map[string]string{"ALL_PROXY": "socks5://a:1", "all_proxy": "socks5://b:2"}, want: "socks5://a:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultUpstream(func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestParseOptionsConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sockstun.yaml")
	doc := `
proxy: socks5://10.0.0.1:9050
target: example.com:22
forward_listen: 127.0.0.1:2222
dns_servers: [1.1.1.1:53]
dial_timeout: 3s
negotiation_timeout: 4s
strict_negotiation: true
log_level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	o, err := parseOptions([]string{"--config", path, "--proxy", "socks5h://127.0.0.1:1080", "--dial-timeout=7s"}, noEnv, true)
	if err != nil {
		t.Fatal(err)
	}

	// Flags given on the command line win.
	if o.proxy != "socks5h://127.0.0.1:1080" || o.dialTimeout != 7*time.Second {
		t.Fatalf("flags overridden by file: %+v", o)
	}
	// Everything else comes from the file.
	if o.target != "example.com:22" || o.forwardListen != "127.0.0.1:2222" || o.negotiationTimeout != 4*time.Second || o.logLevel != "debug" {
		t.Fatalf("file values not applied: %+v", o)
	}
	if !o.strictNegotiation {
		t.Fatal("strict_negotiation not applied")
	}
	if !reflect.DeepEqual(o.dnsServers, []string{"1.1.1.1:53"}) {
		t.Fatalf("dns servers %v", o.dnsServers)
	}
	if o.keepAlive != (net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}) {
		t.Fatalf("keepalive %+v", o.keepAlive)
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(*options) bool
		wantErr bool
	}{
		{
			name:  "netcat target",
			args:  []string{"example.com:80"},
			check: func(o *options) bool { return o.target == "example.com:80" && o.proxy == defaultProxy },
		},
		{
			name:  "repeatable dns server",
			args:  []string{"--dns-server", "1.1.1.1:53", "--dns-server", "9.9.9.9:53", "example.com:80"},
			check: func(o *options) bool { return reflect.DeepEqual(o.dnsServers, []string{"1.1.1.1:53", "9.9.9.9:53"}) },
		},
		{
			name:  "tproxy without target",
			args:  []string{"--tproxy-listen", "127.0.0.1:1234"},
			check: func(o *options) bool { return o.tproxyListen == "127.0.0.1:1234" },
		},
		{name: "nothing to do", args: nil, wantErr: true},
		{name: "forward without target", args: []string{"--forward-listen", "127.0.0.1:2222", "--tproxy-listen", "127.0.0.1:1234"}, wantErr: true},
		{name: "two targets", args: []string{"a:1", "b:2"}, wantErr: true},
		{name: "bad keepalive", args: []string{"--tcp-keepalive", "sometimes", "a:1"}, wantErr: true},
		{name: "unknown flag", args: []string{"--upstream", "x", "a:1"}, wantErr: true},
		{name: "missing config", args: []string{"--config", "/nonexistent/sockstun.yaml", "a:1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(tt.args, noEnv, true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && !tt.check(o) {
				t.Fatalf("unexpected options %+v", o)
			}
		})
	}
}
