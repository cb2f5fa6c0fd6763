package context

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/dtroode/authkeeper-server/internal/model"
)

// Metadata keys describing the calling client.
const (
	clientNameKey   = "x-client-name"
	clientTypeKey   = "x-client-type"
	userAgentKey    = "user-agent"
	forwardedForKey = "x-forwarded-for"

	maxClientField = 128
)

type principalKey struct{}

// Manager stores the authorized principal in the request context and
// reads client details from gRPC metadata.
type Manager struct {
	trustedProxies []netip.Prefix
}

// NewManager creates a Manager. X-Forwarded-For is honoured only when the
// direct peer is inside one of trustedProxies.
func NewManager(trustedProxies []netip.Prefix) *Manager {
	return &Manager{trustedProxies: trustedProxies}
}

var _ model.ContextManager = (*Manager)(nil)

// SetPrincipalToContext returns ctx carrying principal.
func (m *Manager) SetPrincipalToContext(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipalFromContext returns the principal set by the authenticate
// middleware.
func (m *Manager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}

// ClientFromContext describes the caller for display on its session.
func (m *Manager) ClientFromContext(ctx context.Context) model.ClientInfo {
	var info model.ClientInfo

	md, _ := metadata.FromIncomingContext(ctx)
	info.Name = first(md, clientNameKey)
	info.Type = first(md, clientTypeKey)
	info.UserAgent = first(md, userAgentKey)

	ip, ok := PeerIP(ctx)
	if !ok {
		return info
	}
	if m.trusted(ip) {
		if fwd := first(md, forwardedForKey); fwd != "" {
			candidate := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if addr, err := netip.ParseAddr(candidate); err == nil {
				ip = addr
			}
		}
	}
	info.IP = ip.String()

	return info
}

func (m *Manager) trusted(ip netip.Addr) bool {
	for _, p := range m.trustedProxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// PeerIP returns the address of the directly connected peer.
func PeerIP(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}

	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func first(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	v := strings.TrimSpace(values[0])
	if len(v) > maxClientField {
		v = v[:maxClientField]
	}
	return v
}
