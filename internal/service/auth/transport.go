package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
)

const (
	defaultAccessCookieName  = "accessToken"
	defaultRefreshCookieName = "refreshToken"
	defaultCookiePath        = "/"

	// Lifetime of the poisoned cookies set on logout
	logoutCookieTTL = 10 * time.Second

	bearerScheme = "Bearer "
)

// SessionTransport moves the token pair between the server and the client.
// Cookies are the primary channel: HttpOnly keeps tokens away from page
// scripts, Secure + SameSite=None lets the API origin differ from the page
// origin. The Authorization header is accepted as a fallback for non-browser
// clients.
type SessionTransport struct {
	accessCookieName  string
	refreshCookieName string
	cookiePath        string
}

func NewSessionTransport() *SessionTransport {
	return &SessionTransport{
		accessCookieName:  defaultAccessCookieName,
		refreshCookieName: defaultRefreshCookieName,
		cookiePath:        defaultCookiePath,
	}
}

// Set both token cookies on the response
func (t *SessionTransport) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, t.cookie(t.accessCookieName, pair.Access))
	http.SetCookie(w, t.cookie(t.refreshCookieName, pair.Refresh))
}

// Set token pair to an outgoing request
// Mirrors SetTokenPairToResponse, mostly useful in tests and the client
func (t *SessionTransport) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.AddCookie(&http.Cookie{Name: t.accessCookieName, Value: pair.Access.Value})
	r.AddCookie(&http.Cookie{Name: t.refreshCookieName, Value: pair.Refresh.Value})
}

// Read access token from request: cookie first, then bearer header
func (t *SessionTransport) GetAccessString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(t.accessCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerScheme) {
		if token := strings.TrimPrefix(header, bearerScheme); token != "" {
			return token, nil
		}
	}

	return "", apperrors.ErrNoToken
}

// Read refresh token from request cookie
func (t *SessionTransport) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(t.refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrNoToken
	}
	return cookie.Value, nil
}

// Overwrite both cookies with empty near-expired placeholders (logout)
func (t *SessionTransport) ClearTokens(w http.ResponseWriter) {
	expires := time.Now().Add(logoutCookieTTL)

	for _, name := range []string{t.accessCookieName, t.refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     t.cookiePath,
			Expires:  expires,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func (t *SessionTransport) cookie(name string, token models.IssuedToken) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    token.Value,
		Path:     t.cookiePath,
		MaxAge:   int(time.Until(token.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}
