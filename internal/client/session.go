package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const refreshPath = "/api/v1/auth/refresh"

// retriedKey marks a request that already went through one refresh-and-replay
type retriedKey struct{}

type Config struct {
	// BaseURL of the API, e.g. "https://tasks.example.com"
	BaseURL string

	// HTTPClient to use for requests. A cookie jar is attached if the
	// client has none, session cookies don't survive without one
	HTTPClient *http.Client

	// OnSessionExpired runs after a failed refresh, when the session can't
	// be recovered silently. Login redirect is the usual choice
	OnSessionExpired func()
}

// SessionManager is the client-side half of the session: it keeps session
// cookies in a jar, watches responses for authentication failures and
// recovers from access token expiry with one coordinated silent refresh.
//
// Concurrent requests that hit a 401 at the same time share a single
// refresh round-trip. Independent refreshes would each rotate the refresh
// token and knock each other out of the session
type SessionManager struct {
	baseURL    string
	httpClient *http.Client

	onSessionExpired func()

	refreshGroup singleflight.Group

	mu            sync.Mutex
	accessToken   string
	authenticated bool
}

func NewSessionManager(cfg Config) (*SessionManager, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url must be set")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("can't create cookie jar. Err: %w", err)
		}
		httpClient.Jar = jar
	}

	return &SessionManager{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:       httpClient,
		onSessionExpired: cfg.OnSessionExpired,
	}, nil
}

// Authenticated reports the client's belief about the session. UI gating
// only, the server re-checks every request anyway
func (m *SessionManager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// Bootstrap silently tries to re-establish a session from cookies left by a
// previous run. Failure is the normal cold-start outcome and is not an error
func (m *SessionManager) Bootstrap(ctx context.Context) {
	_ = m.refresh(ctx)
}

// Do sends the request and transparently recovers from access token expiry:
// on a 401 for anything but the refresh endpoint it performs one shared
// refresh and replays the request once. The replay needs req.GetBody when a
// body is present; requests built with http.NewRequest have it set
func (m *SessionManager) Do(req *http.Request) (*http.Response, error) {
	m.attachBearer(req)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	m.captureTokens(resp)

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if strings.HasSuffix(req.URL.Path, refreshPath) {
		return resp, nil
	}
	if req.Context().Value(retriedKey{}) != nil {
		// Already replayed once, don't loop on a dead session
		return resp, nil
	}

	if err := m.sharedRefresh(req.Context()); err != nil {
		// Session is over, hand back the original 401
		return resp, nil
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return resp, nil
	}
	// The refresh rotated the token, the replay must carry the new one
	retry.Header.Del("Authorization")
	m.attachBearer(retry)

	// The first response is done for, release its connection
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return m.httpClient.Do(retry)
}

// attachBearer mirrors the cookies with an Authorization header, the way a
// non-browser API consumer would authenticate. Headers set by the caller win
func (m *SessionManager) attachBearer(req *http.Request) {
	if req.Header.Get("Authorization") != "" {
		return
	}

	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// captureTokens remembers the access token the server handed out in cookies,
// so it can also travel as a bearer header
func (m *SessionManager) captureTokens(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "accessToken" {
			m.mu.Lock()
			m.accessToken = cookie.Value
			m.mu.Unlock()
		}
	}
}

// sharedRefresh collapses concurrent refresh attempts into one round-trip.
// A caller whose context dies stops waiting, the refresh itself finishes in
// the background and its outcome still settles the shared session state
func (m *SessionManager) sharedRefresh(ctx context.Context) error {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionManager) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+refreshPath, nil)
	if err != nil {
		return fmt.Errorf("can't build refresh request. Err: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.endSession()
		return fmt.Errorf("refresh request failed. Err: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		m.endSession()
		return fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}
	m.captureTokens(resp)

	m.mu.Lock()
	m.authenticated = true
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) endSession() {
	m.mu.Lock()
	wasAuthenticated := m.authenticated
	m.authenticated = false
	m.accessToken = ""
	m.mu.Unlock()

	if wasAuthenticated && m.onSessionExpired != nil {
		m.onSessionExpired()
	}
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(context.WithValue(req.Context(), retriedKey{}, true))

	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body can't be replayed")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("can't recreate request body. Err: %w", err)
	}
	retry.Body = body

	return retry, nil
}

// User is the profile the auth endpoints respond with
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register creates an account and starts a session
func (m *SessionManager) Register(ctx context.Context, name string, email string, password string) (User, error) {
	return m.startSession(ctx, "/api/v1/auth/register", http.StatusCreated, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Login starts a session with existing credentials
func (m *SessionManager) Login(ctx context.Context, email string, password string) (User, error) {
	return m.startSession(ctx, "/api/v1/auth/login", http.StatusOK, map[string]string{
		"email":    email,
		"password": password,
	})
}

// Logout drops the session on both sides: the server overwrites the
// cookies, the jar picks the poisoned ones up
func (m *SessionManager) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/v1/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("can't build logout request. Err: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed. Err: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	m.mu.Lock()
	m.authenticated = false
	m.accessToken = ""
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) startSession(ctx context.Context, path string, wantStatus int, payload map[string]string) (User, error) {
	var user User

	body, err := json.Marshal(payload)
	if err != nil {
		return user, fmt.Errorf("can't encode request. Err: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return user, fmt.Errorf("can't build request. Err: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return user, fmt.Errorf("request failed. Err: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != wantStatus {
		return user, fmt.Errorf("rejected with status %d", resp.StatusCode)
	}
	m.captureTokens(resp)
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return user, fmt.Errorf("can't decode response. Err: %w", err)
	}

	m.mu.Lock()
	m.authenticated = true
	m.mu.Unlock()
	return user, nil
}
