package visitors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultLookupEndpoints are tried in order until one yields an address.
var DefaultLookupEndpoints = []string{
	"https://api.ipify.org?format=json",
	"https://ipapi.co/json/",
	"https://api.ip.sb/ip",
}

// DefaultLookupTimeout bounds a single lookup request.
const DefaultLookupTimeout = 10 * time.Second

const maxLookupBody = 64 << 10

// Resolver resolves the visitor's public address. It never fails: UnknownIP
// is returned when nothing could be resolved.
type Resolver interface {
	Resolve(ctx context.Context) string
}

// LookupObserver is notified of each lookup attempt.
type LookupObserver func(endpoint string, err error)

// LookupResolver asks external lookup services for the caller's public address.
type LookupResolver struct {
	endpoints []string
	client    *http.Client
	logger    *slog.Logger
	observe   LookupObserver
}

// NewLookupResolver creates a resolver over endpoints (DefaultLookupEndpoints when empty).
func NewLookupResolver(endpoints []string, timeout time.Duration, logger *slog.Logger) *LookupResolver {
	if len(endpoints) == 0 {
		endpoints = DefaultLookupEndpoints
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupResolver{
		endpoints: append([]string(nil), endpoints...),
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// WithClient replaces the HTTP client.
func (r *LookupResolver) WithClient(client *http.Client) *LookupResolver {
	r.client = client
	return r
}

// WithObserver registers a callback invoked after every attempt.
func (r *LookupResolver) WithObserver(observe LookupObserver) *LookupResolver {
	r.observe = observe
	return r
}

// Endpoints returns the configured endpoint list.
func (r *LookupResolver) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Resolve returns the first address found, trying endpoints in order.
func (r *LookupResolver) Resolve(ctx context.Context) string {
	for _, endpoint := range r.endpoints {
		if ctx.Err() != nil {
			break
		}

		ip, err := r.lookup(ctx, endpoint)
		if r.observe != nil {
			r.observe(endpoint, err)
		}
		if err != nil {
			r.logger.Debug("IP lookup failed, trying next service",
				"endpoint", endpoint,
				"error", err,
			)
			continue
		}
		return ip
	}
	return UnknownIP
}

func (r *LookupResolver) lookup(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return "", err
	}
	return parseLookupBody(body)
}

// parseLookupBody accepts {"ip": ...}, {"query": ...}, a JSON string or a bare address.
func parseLookupBody(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ErrNoAddress
	}

	var shaped struct {
		IP    string `json:"ip"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(trimmed), &shaped); err == nil {
		switch {
		case strings.TrimSpace(shaped.IP) != "":
			return strings.TrimSpace(shaped.IP), nil
		case strings.TrimSpace(shaped.Query) != "":
			return strings.TrimSpace(shaped.Query), nil
		}
		return "", ErrNoAddress
	}

	var quoted string
	if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil {
		trimmed = strings.TrimSpace(quoted)
	}
	if net.ParseIP(trimmed) == nil {
		return "", ErrNoAddress
	}
	return trimmed, nil
}

// RequestResolver resolves the address a visitor's request came from.
//
// A public address is used as is. A missing or loopback address means the
// visitor shares the server's host, so the fallback resolver is asked. Any
// other non-public address is a peer on the server's network, typically a
// reverse proxy that did not forward the client address, and resolves to
// UnknownIP rather than the server's own public address.
type RequestResolver struct {
	addr     string
	fallback Resolver
}

// NewRequestResolver creates a resolver for the request address addr, as
// reported by core.RequestEvent.RealIP. fallback may be nil.
func NewRequestResolver(addr string, fallback Resolver) *RequestResolver {
	return &RequestResolver{addr: strings.TrimSpace(addr), fallback: fallback}
}

func (r *RequestResolver) Resolve(ctx context.Context) string {
	ip := net.ParseIP(r.addr)
	switch {
	case ip != nil && isPublic(ip):
		return r.addr
	case ip == nil || ip.IsLoopback() || ip.IsUnspecified():
		if r.fallback != nil {
			return r.fallback.Resolve(ctx)
		}
	}
	return UnknownIP
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast())
}
