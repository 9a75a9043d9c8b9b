package visitors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver string

func (s staticResolver) Resolve(context.Context) string { return string(s) }

func lookupServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseLookupBody(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
		wantErr  bool
	}{
		{"ip field", `{"ip":"203.0.113.5"}`, "203.0.113.5", false},
		{"query field", `{"query":"198.51.100.7","status":"success"}`, "198.51.100.7", false},
		{"ip preferred over query", `{"ip":"203.0.113.5","query":"198.51.100.7"}`, "203.0.113.5", false},
		{"bare address", "203.0.113.9\n", "203.0.113.9", false},
		{"bare ipv6", "2001:db8::1", "2001:db8::1", false},
		{"json string", `"203.0.113.10"`, "203.0.113.10", false},
		{"object without address", `{"country":"SA"}`, "", true},
		{"empty", "   ", "", true},
		{"garbage", "<html>rate limited</html>", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := parseLookupBody([]byte(tc.body))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNoAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ip)
		})
	}
}

func TestLookupResolverFallsThrough(t *testing.T) {
	failing := lookupServer(t, http.StatusInternalServerError, "oops")
	empty := lookupServer(t, http.StatusOK, `{}`)
	working := lookupServer(t, http.StatusOK, `{"ip":"203.0.113.5"}`)

	var (
		mu       sync.Mutex
		attempts []string
	)
	resolver := NewLookupResolver([]string{failing.URL, empty.URL, working.URL}, time.Second, nil).
		WithObserver(func(endpoint string, err error) {
			mu.Lock()
			defer mu.Unlock()
			attempts = append(attempts, endpoint)
		})

	assert.Equal(t, "203.0.113.5", resolver.Resolve(context.Background()))
	assert.Equal(t, []string{failing.URL, empty.URL, working.URL}, attempts)
}

func TestLookupResolverStopsAtFirstSuccess(t *testing.T) {
	first := lookupServer(t, http.StatusOK, "198.51.100.1")

	hit := false
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer second.Close()

	resolver := NewLookupResolver([]string{first.URL, second.URL}, time.Second, nil)
	assert.Equal(t, "198.51.100.1", resolver.Resolve(context.Background()))
	assert.False(t, hit)
}

func TestLookupResolverAllFail(t *testing.T) {
	a := lookupServer(t, http.StatusServiceUnavailable, "")
	b := lookupServer(t, http.StatusOK, "not an address")

	resolver := NewLookupResolver([]string{a.URL, b.URL, "http://127.0.0.1:1/unreachable"}, time.Second, nil)
	assert.Equal(t, UnknownIP, resolver.Resolve(context.Background()))
}

func TestLookupResolverTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	resolver := NewLookupResolver([]string{slow.URL}, 50*time.Millisecond, nil)

	start := time.Now()
	assert.Equal(t, UnknownIP, resolver.Resolve(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLookupResolverDefaults(t *testing.T) {
	resolver := NewLookupResolver(nil, 0, nil)
	assert.Equal(t, DefaultLookupEndpoints, resolver.Endpoints())
}

func TestRequestResolver(t *testing.T) {
	server := staticResolver("198.51.100.1")

	testCases := []struct {
		name     string
		addr     string
		fallback Resolver
		expected string
	}{
		{"public address", "203.0.113.20", server, "203.0.113.20"},
		{"public ipv6 address", "2001:db8::7", server, "2001:db8::7"},
		{"loopback asks the fallback", "127.0.0.1", server, "198.51.100.1"},
		{"missing address asks the fallback", "", server, "198.51.100.1"},
		{"loopback without fallback", "::1", nil, UnknownIP},
		{"private proxy peer", "10.0.0.2", server, UnknownIP},
		{"private lan address", "192.168.1.10", nil, UnknownIP},
		{"link local address", "169.254.10.1", server, UnknownIP},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewRequestResolver(tc.addr, tc.fallback).Resolve(context.Background())
			assert.Equal(t, tc.expected, got)
		})
	}
}
