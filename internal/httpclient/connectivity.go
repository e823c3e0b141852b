package httpclient

import (
	"context"
	"net"
	"time"

	"github.com/vrsandeep/mango-pages/internal/config"
)

// Checker is the connectivity preflight run before every transfer.
type Checker interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline skips the preflight.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// DialChecker reports online when a TCP connection to Address succeeds.
type DialChecker struct {
	Address string
	Timeout time.Duration
}

func (c DialChecker) Online(ctx context.Context) bool {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// NewChecker returns a DialChecker for the configured probe address, or
// AlwaysOnline when none is set.
func NewChecker(cfg config.NetworkConfig) Checker {
	if cfg.ProbeAddress == "" {
		return AlwaysOnline{}
	}
	return DialChecker{Address: cfg.ProbeAddress, Timeout: cfg.ProbeTimeout}
}
