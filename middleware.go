package accountlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type actingUserKey struct{}

// WithActingUser returns a context carrying the id of the authenticated
// user the request acts as.
func WithActingUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actingUserKey{}, userID)
}

// ActingUser returns the id stored by WithActingUser, or "".
func ActingUser(ctx context.Context) string {
	v, _ := ctx.Value(actingUserKey{}).(string)
	return v
}

// Middleware resolves the acting user of a request from the session, an
// Authorization bearer token or the auth token cookie.
type Middleware struct {
	AuthTokenHeaderName string
	AuthTokenCookieName string
	UserParamName       string
	CallbackURLParam    string
	SessionGetter       func(r *http.Request, param string) any
	GetRedirURL         func(r *http.Request) string
	VerifyToken         func(tokenString string) (loggedInUserId string, err error)
}

// EnsureReasonableDefaults fills unset names.
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = "loggedInUserId"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInUserId returns the acting user id for r, or "".
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	if id := ActingUser(r.Context()); id != "" {
		return id
	}

	if a.SessionGetter != nil {
		if userParam, ok := a.SessionGetter(r, a.UserParamName).(string); ok && userParam != "" {
			return userParam
		}
	}

	if a.VerifyToken == nil {
		return ""
	}

	var authTokens []string
	for _, h := range r.Header.Values(a.AuthTokenHeaderName) {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			h = token
		}
		if h = strings.TrimSpace(h); h != "" {
			authTokens = append(authTokens, h)
		}
	}
	if a.AuthTokenCookieName != "" {
		for _, cookie := range r.CookiesNamed(a.AuthTokenCookieName) {
			if len(cookie.Value) > 0 {
				authTokens = append(authTokens, cookie.Value)
			}
		}
	}

	for _, authToken := range authTokens {
		loggedInUserId, err := a.VerifyToken(authToken)
		if err == nil && loggedInUserId != "" {
			return loggedInUserId
		} else if err != nil {
			slog.Warn("error verifying token", "error", err)
		}
	}
	return ""
}

// ExtractUser makes the acting user (if any) available through ActingUser
// without enforcing a login.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := a.GetLoggedInUserId(r)
		if userID != "" {
			r = r.WithContext(WithActingUser(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser rejects requests without an acting user: a redirect to the
// login page when GetRedirURL is set, a 401 otherwise.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := a.GetLoggedInUserId(r)
		if userID != "" {
			next.ServeHTTP(w, r.WithContext(WithActingUser(r.Context(), userID)))
			return
		}

		redirURL := ""
		if a.GetRedirURL != nil {
			redirURL = a.GetRedirURL(r)
		}
		if redirURL == "" {
			http.Error(w, "Login Failed", http.StatusUnauthorized)
			return
		}
		encodedURL := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
		http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, a.CallbackURLParam, encodedURL), http.StatusFound)
	})
}
