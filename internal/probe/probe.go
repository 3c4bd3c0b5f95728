package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Prober checks whether an endpoint currently accepts connections.
type Prober interface {
	Probe(ctx context.Context) error
}

// ForURL returns a TCP prober for the host and port of rawURL. A URL without
// an explicit port uses the scheme's default.
func ForURL(rawURL string) (Prober, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http", "":
			port = "80"
		default:
			return nil, fmt.Errorf("url %q has no port", rawURL)
		}
	}
	return NewTCP(net.JoinHostPort(host, port)), nil
}

// Check runs p once, bounded by timeout.
func Check(ctx context.Context, p Prober, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.Probe(ctx)
}

// Reachable reports whether rawURL accepts a TCP connection within timeout.
func Reachable(ctx context.Context, rawURL string, timeout time.Duration) bool {
	p, err := ForURL(rawURL)
	if err != nil {
		return false
	}
	return Check(ctx, p, timeout) == nil
}
