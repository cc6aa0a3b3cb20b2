package client

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// authStub is a minimal server side: a protected route that wants a fresh
// access cookie and a refresh route that grants one.
// TLS matters here: the session cookies are Secure and the jar won't replay
// them over plain http
type authStub struct {
	mu           sync.Mutex
	refreshDelay time.Duration
	refreshFails bool
	uselessGrant bool // refresh succeeds but the cookie it hands out never validates

	refreshCalls   atomic.Int64
	protectedCalls atomic.Int64
	validCookies   map[string]bool
}

func newAuthStub() *authStub {
	return &authStub{validCookies: map[string]bool{}}
}

func (s *authStub) issueCookie(w http.ResponseWriter, value string) {
	s.mu.Lock()
	if !s.uselessGrant {
		s.validCookies[value] = true
	}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    value,
		Path:     "/",
		MaxAge:   900,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (s *authStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		calls := s.refreshCalls.Add(1)
		time.Sleep(s.refreshDelay)

		if s.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.issueCookie(w, fmt.Sprintf("token-%d", calls))
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/bearer", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		valid := token != "" && s.validCookies[token]
		s.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		s.protectedCalls.Add(1)

		cookie, err := r.Cookie("accessToken")
		s.mu.Lock()
		valid := err == nil && s.validCookies[cookie.Value]
		s.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func startStub(t *testing.T, stub *authStub) (*httptest.Server, *SessionManager) {
	t.Helper()

	srv := httptest.NewTLSServer(stub.handler())
	t.Cleanup(srv.Close)

	httpClient := srv.Client()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	httpClient.Jar = jar

	m, err := NewSessionManager(Config{BaseURL: srv.URL, HTTPClient: httpClient})
	require.NoError(t, err, "session manager should be created without errors")

	return srv, m
}

func Test_SessionManager(t *testing.T) {
	t.Parallel()

	t.Run("base url required", func(t *testing.T) {
		_, err := NewSessionManager(Config{})
		require.Error(t, err)
	})

	t.Run("recovers from expired session", func(t *testing.T) {
		stub := newAuthStub()
		srv, m := startStub(t, stub)

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/protected", nil)
		require.NoError(t, err)

		resp, err := m.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode, "request should succeed after silent refresh")
		require.Equal(t, "ok", string(body))
		require.Equal(t, int64(1), stub.refreshCalls.Load(), "expired session should trigger one refresh")
		require.Equal(t, int64(2), stub.protectedCalls.Load(), "original request should be replayed once")
	})

	t.Run("concurrent expiries share one refresh", func(t *testing.T) {
		const parallel = 10

		stub := newAuthStub()
		stub.refreshDelay = 300 * time.Millisecond
		srv, m := startStub(t, stub)

		var wg sync.WaitGroup
		var okCount atomic.Int64
		start := make(chan struct{})

		for range parallel {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/protected", nil)
				require.NoError(t, err)

				resp, err := m.Do(req)
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				if resp.StatusCode == http.StatusOK {
					okCount.Add(1)
				}
			}()
		}

		close(start)
		wg.Wait()

		require.Equal(t, int64(parallel), okCount.Load(), "every request should succeed after the shared refresh")
		require.Equal(t, int64(1), stub.refreshCalls.Load(), "concurrent 401s should collapse into one refresh call")
	})

	t.Run("attaches bearer header once a token is held", func(t *testing.T) {
		stub := newAuthStub()
		srv, m := startStub(t, stub)

		// Pick the access token up from the refresh response cookies
		m.Bootstrap(t.Context())
		require.True(t, m.Authenticated())

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/bearer", nil)
		require.NoError(t, err)

		resp, err := m.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode, "held token should travel as Authorization header")
	})

	t.Run("never replays more than once", func(t *testing.T) {
		stub := newAuthStub()
		stub.uselessGrant = true
		srv, m := startStub(t, stub)

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/protected", nil)
		require.NoError(t, err)

		resp, err := m.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, int64(1), stub.refreshCalls.Load(), "failed replay should not trigger another refresh")
		require.Equal(t, int64(2), stub.protectedCalls.Load(), "request should be replayed exactly once")
	})

	t.Run("refresh endpoint 401 is returned as is", func(t *testing.T) {
		stub := newAuthStub()
		stub.refreshFails = true
		srv, m := startStub(t, stub)

		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/api/v1/auth/refresh", nil)
		require.NoError(t, err)

		resp, err := m.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, int64(1), stub.refreshCalls.Load(), "manager should never refresh on behalf of the refresh endpoint")
	})

	t.Run("replays the request body", func(t *testing.T) {
		var gotBodies []string
		var mu sync.Mutex
		calls := 0

		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/auth/refresh" {
				w.WriteHeader(http.StatusOK)
				return
			}

			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			gotBodies = append(gotBodies, string(body))
			calls++
			first := calls == 1
			mu.Unlock()

			if first {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		m, err := NewSessionManager(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
		require.NoError(t, err)

		// http.NewRequest sets GetBody for a strings.Reader, so the
		// manager can recreate the body for the replay
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.URL+"/things", strings.NewReader(`{"title": "replayed"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, []string{`{"title": "replayed"}`, `{"title": "replayed"}`}, gotBodies, "replay should carry the same body")
	})

	t.Run("session expiry hook", func(t *testing.T) {
		stub := newAuthStub()
		srv := httptest.NewTLSServer(stub.handler())
		t.Cleanup(srv.Close)

		expired := 0
		httpClient := srv.Client()
		jar, err := cookiejar.New(nil)
		require.NoError(t, err)
		httpClient.Jar = jar

		m, err := NewSessionManager(Config{
			BaseURL:          srv.URL,
			HTTPClient:       httpClient,
			OnSessionExpired: func() { expired++ },
		})
		require.NoError(t, err)

		// Establish belief in the session first
		m.Bootstrap(t.Context())
		require.True(t, m.Authenticated(), "bootstrap against a live session should authenticate")

		stub.refreshFails = true
		err = m.refresh(t.Context())

		require.Error(t, err)
		require.False(t, m.Authenticated(), "failed refresh should clear the authenticated flag")
		require.Equal(t, 1, expired, "hook should fire once on session loss")

		// Another failed refresh on an already dead session stays quiet
		err = m.refresh(t.Context())
		require.Error(t, err)
		require.Equal(t, 1, expired, "hook should not fire for an already terminated session")
	})

	t.Run("cold bootstrap is benign", func(t *testing.T) {
		stub := newAuthStub()
		stub.refreshFails = true
		_, m := startStub(t, stub)

		m.Bootstrap(t.Context())

		require.False(t, m.Authenticated())
	})
}
