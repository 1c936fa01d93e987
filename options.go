package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/die-net/sockstun/internal/config"
)

const defaultProxy = "socks5h://127.0.0.1:1080"

type options struct {
	proxy              string
	configPath         string
	target             string
	forwardListen      string
	tproxyListen       string
	dnsServers         []string
	dialTimeout        time.Duration
	negotiationTimeout time.Duration
	strictNegotiation  bool
	tcpKeepAlive       string
	logLevel           string
	verbose            bool

	keepAlive net.KeepAliveConfig
}

// parseOptions parses args (without the program name), overlaying the
// config file named by --config beneath any flags set explicitly.
func parseOptions(args []string, getenv func(string) string, tproxySupported bool) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("sockstun", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&o.proxy, "proxy", defaultUpstream(getenv), "SOCKS5 proxy URL: socks5://host[:port] (resolve names locally) | socks5h://host[:port] (proxy resolves names) | direct://")
	fs.StringVar(&o.configPath, "config", "", "YAML config file; flags given on the command line override its values")
	fs.StringVar(&o.forwardListen, "forward-listen", "", "Listen address whose connections are tunneled to the target (e.g. 127.0.0.1:2222). Empty disables.")
	fs.StringVar(&o.tproxyListen, "tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")
	fs.StringArrayVar(&o.dnsServers, "dns-server", nil, "DNS server host:port for socks5:// name resolution; repeatable. Default is the system resolver.")
	fs.DurationVar(&o.dialTimeout, "dial-timeout", 10*time.Second, "Timeout for the TCP connect to the proxy")
	fs.DurationVar(&o.negotiationTimeout, "negotiation-timeout", 10*time.Second, "Timeout for SOCKS5 negotiation")
	fs.BoolVar(&o.strictNegotiation, "strict-negotiation", false, "Require each SOCKS5 reply in a single read instead of reassembling split replies")
	fs.StringVar(&o.tcpKeepAlive, "tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable per-connection error logging")

	if !tproxySupported {
		_ = fs.MarkHidden("tproxy-listen")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		o.target = fs.Arg(0)
	default:
		return nil, errors.New("at most one target host:port may be given")
	}

	if o.configPath != "" {
		f, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		o.overlay(fs, f)
	}

	ka, err := parseTCPKeepAlive(o.tcpKeepAlive)
	if err != nil {
		return nil, fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}
	o.keepAlive = ka

	if o.target == "" && o.tproxyListen == "" {
		return nil, errors.New("nothing to do (give a target host:port or set --tproxy-listen)")
	}
	if o.forwardListen != "" && o.target == "" {
		return nil, errors.New("--forward-listen needs a target host:port")
	}

	return o, nil
}

// overlay copies file values into o for every flag the user did not set.
func (o *options) overlay(fs *pflag.FlagSet, f *config.File) {
	set := func(name string, apply func()) {
		if !fs.Changed(name) {
			apply()
		}
	}

	if f.Proxy != "" {
		set("proxy", func() { o.proxy = f.Proxy })
	}
	if f.Target != "" && o.target == "" {
		o.target = f.Target
	}
	if f.ForwardListen != "" {
		set("forward-listen", func() { o.forwardListen = f.ForwardListen })
	}
	if f.TProxyListen != "" {
		set("tproxy-listen", func() { o.tproxyListen = f.TProxyListen })
	}
	if len(f.DNSServers) > 0 {
		set("dns-server", func() { o.dnsServers = f.DNSServers })
	}
	if f.DialTimeout > 0 {
		set("dial-timeout", func() { o.dialTimeout = f.DialTimeout })
	}
	if f.NegotiationTimeout > 0 {
		set("negotiation-timeout", func() { o.negotiationTimeout = f.NegotiationTimeout })
	}
	if f.StrictNegotiation {
		set("strict-negotiation", func() { o.strictNegotiation = true })
	}
	if f.TCPKeepAlive != "" {
		set("tcp-keepalive", func() { o.tcpKeepAlive = f.TCPKeepAlive })
	}
	if f.LogLevel != "" {
		set("log-level", func() { o.logLevel = f.LogLevel })
	}
	if f.Verbose {
		set("verbose", func() { o.verbose = true })
	}
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream(getenv func(string) string) string {
	if p := getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := getenv("all_proxy"); p != "" {
		return p
	}

	return defaultProxy
}
