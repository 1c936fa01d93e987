package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/sockstun/internal/dialer"
)

type Config struct {
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer

	// Logger receives listener and per-connection messages. Nil discards
	// them.
	Logger *zap.Logger

	// Verbose raises per-connection errors from debug to info.
	Verbose bool
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
