package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sockstun/internal/dialer"
	"github.com/die-net/sockstun/internal/logging"
	"github.com/die-net/sockstun/internal/proxy"
	"github.com/die-net/sockstun/internal/resolve"
	"github.com/die-net/sockstun/internal/tproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	o, err := parseOptions(os.Args[1:], os.Getenv, tproxy.IsSupported)
	if err != nil {
		return err
	}

	logger, err := logging.New(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := proxy.Config{
		NegotiationTimeout: o.negotiationTimeout,
		KeepAlive:          o.keepAlive,
		Logger:             logger,
		Verbose:            o.verbose,
	}

	dialCfg := dialer.Config{
		DialTimeout:        o.dialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          cfg.KeepAlive,
		StrictNegotiation:  o.strictNegotiation,
	}
	if len(o.dnsServers) > 0 {
		dialCfg.Resolver = resolve.New(resolve.Config{Servers: o.dnsServers})
	}

	cfg.Dialer, err = dialer.New(dialCfg, o.proxy)
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.forwardListen == "" && o.tproxyListen == "" {
		return runNetcat(ctx, cfg.Dialer, o.negotiationTimeout, o.target, os.Stdin, os.Stdout)
	}

	g, ctx := errgroup.WithContext(ctx)

	if o.forwardListen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", o.forwardListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("forward listen: %w", err)
		}
		fwd := proxy.NewForwarder(ctx, cfg, o.target)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := fwd.Serve(ln); err != nil {
				return fmt.Errorf("forward serve: %w", err)
			}
			return nil
		})
		logger.Info("forwarding", zap.String("listen", o.forwardListen), zap.String("target", o.target), zap.String("proxy", o.proxy))
	}

	if o.tproxyListen != "" {
		ln, err := tproxy.ListenTransparentTCP(ctx, o.tproxyListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		logger.Info("tproxy listening", zap.String("listen", o.tproxyListen), zap.String("proxy", o.proxy))
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}
