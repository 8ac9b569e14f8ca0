// Package discovery advertises and locates regsync instances with mDNS.
//
// The camera firmware reaches its peer as "<hostname>.local". regsync keeps
// that convention: each instance registers an "_http._tcp" service under its
// instance name, and a Primary without a configured Secondary URL browses for
// the Secondary's instance name to find its address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service constants.
const (
	// ServiceType is the DNS-SD service advertised by every instance.
	ServiceType = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultBrowseTimeout bounds a Resolve call when the context has no deadline.
	DefaultBrowseTimeout = 5 * time.Second
)

// ErrNotFound is returned when no instance with the requested name answered.
var ErrNotFound = errors.New("discovery: instance not found")

// Config configures advertising and browsing.
type Config struct {
	// Instance is the DNS-SD instance name to advertise.
	Instance string

	// Port is the HTTP port to advertise.
	Port int

	// Interface restricts mDNS to one network interface. Empty means all.
	Interface string

	// BrowseTimeout bounds Resolve. Default: 5s.
	BrowseTimeout time.Duration

	// Text is the TXT record content (e.g. "role=primary").
	Text []string
}

// Advertiser publishes this instance on the local network.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise registers the instance. Call Shutdown to withdraw it.
func Advertise(cfg Config) (*Advertiser, error) {
	if cfg.Instance == "" {
		return nil, errors.New("discovery: instance name is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", cfg.Port)
	}

	ifaces, err := interfaces(cfg.Interface)
	if err != nil {
		return nil, err
	}

	server, err := zeroconf.Register(cfg.Instance, ServiceType, Domain, cfg.Port, cfg.Text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("discovery: registering %q: %w", cfg.Instance, err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement. Safe to call more than once.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Browser finds peers by instance name.
type Browser struct {
	cfg Config
}

// NewBrowser creates a browser.
func NewBrowser(cfg Config) *Browser {
	if cfg.BrowseTimeout <= 0 {
		cfg.BrowseTimeout = DefaultBrowseTimeout
	}
	return &Browser{cfg: cfg}
}

// Resolve browses for instance and returns its base URL ("http://ip:port").
func (b *Browser) Resolve(ctx context.Context, instance string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.BrowseTimeout)
	defer cancel()

	var opts []zeroconf.ClientOption
	if b.cfg.Interface != "" {
		iface, err := net.InterfaceByName(b.cfg.Interface)
		if err != nil {
			return "", fmt.Errorf("discovery: interface %q: %w", b.cfg.Interface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrNotFound, instance)
			}
			if entry == nil || entry.Instance != instance {
				continue
			}
			if u, ok := entryURL(entry.HostName, entry.Port, entry.AddrIPv4, entry.AddrIPv6); ok {
				return u, nil
			}
		case <-removed:
		case err := <-browseErr:
			if err != nil {
				return "", fmt.Errorf("discovery: browsing: %w", err)
			}
			browseErr = nil
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %q: %w", ErrNotFound, instance, ctx.Err())
		}
	}
}

// ResolverFor returns a function suitable for link.HTTPConfig.Resolver.
func (b *Browser) ResolverFor(instance string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return b.Resolve(ctx, instance)
	}
}

// entryURL builds a base URL, preferring IPv4, then IPv6, then the host name.
func entryURL(host string, port int, v4, v6 []net.IP) (string, bool) {
	if port <= 0 {
		return "", false
	}
	p := strconv.Itoa(port)
	switch {
	case len(v4) > 0:
		return "http://" + net.JoinHostPort(v4[0].String(), p), true
	case len(v6) > 0:
		return "http://" + net.JoinHostPort(v6[0].String(), p), true
	case host != "":
		return "http://" + net.JoinHostPort(trimDot(host), p), true
	}
	return "", false
}

func trimDot(host string) string {
	if n := len(host); n > 0 && host[n-1] == '.' {
		return host[:n-1]
	}
	return host
}

// interfaces returns nil (all interfaces) or the named interface.
func interfaces(name string) ([]net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("discovery: interface %q: %w", name, err)
	}
	return []net.Interface{*iface}, nil
}
