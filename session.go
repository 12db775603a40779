package accountlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
)

const flashKeyPrefix = "flash:"

// SessionGateway delivers AuthOutcomes: it establishes or tears down the
// session, sets the auth token cookies and queues flash notices.  It never
// touches the session on a failed outcome beyond queueing the notice.
type SessionGateway struct {
	Session *scs.SessionManager

	// Issues the auth token cookie.  When nil only the session carries the
	// logged in user.
	Tokens *TokenIssuer

	// Fallback redirect targets
	Routes Routes

	// Query or form parameter, and cookie, naming where to go after a
	// successful login.  Only same-origin paths are honoured.
	CallbackURLParam      string
	CallbackURLCookieName string

	// Optional name that can be used as a prefix for all required vars
	AppName string

	// Session key and cookie name holding the auth token
	AuthTokenSessionVar string

	// Session key holding the logged in user id
	UserParamName string

	// All the domains where the auth token cookies will be set on a login success or logout
	CookieDomains []string

	// How long is a session cookie valid for.  Defaults to 1 day
	SessionTimeoutInSeconds int

	Logger *slog.Logger
}

func (g *SessionGateway) EnsureDefaults() *SessionGateway {
	if g.AppName == "" {
		g.AppName = "AccountLink"
	}
	if g.SessionTimeoutInSeconds <= 0 {
		g.SessionTimeoutInSeconds = 86400
	}
	if g.AuthTokenSessionVar == "" {
		g.AuthTokenSessionVar = fmt.Sprintf("%sAuthToken", g.AppName)
	}
	if g.UserParamName == "" {
		g.UserParamName = "loggedInUserId"
	}
	if g.CallbackURLParam == "" {
		g.CallbackURLParam = "callbackURL"
	}
	if g.CallbackURLCookieName == "" {
		g.CallbackURLCookieName = "oauthCallbackURL"
	}
	g.Routes = g.Routes.EnsureDefaults()
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return g
}

// Deliver applies outcome to the response: session and cookies on a
// successful login, a flash notice either way, then a redirect.  A login
// goes to the requested callback URL when one was given.
func (g *SessionGateway) Deliver(w http.ResponseWriter, r *http.Request, outcome AuthOutcome) {
	g.EnsureDefaults()
	ctx := r.Context()
	redirect := outcome.RedirectTo
	if outcome.Success && outcome.StartSession {
		if err := g.startSession(w, r, outcome.UserID); err != nil {
			g.Logger.ErrorContext(ctx, "could not start session", "user_id", outcome.UserID, "error", err)
			g.AddNotice(ctx, NoticeGenericFailure)
			http.Redirect(w, r, g.Routes.Login, http.StatusFound)
			return
		}
		if callbackURL := g.callbackURL(w, r); callbackURL != "" {
			redirect = callbackURL
		}
	}
	g.AddNotice(ctx, outcome.Notice)
	if redirect == "" {
		redirect = g.Routes.Home
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Logout destroys the session, clears the auth cookies and queues
// outcome's notice in the fresh session.
func (g *SessionGateway) Logout(w http.ResponseWriter, r *http.Request, outcome AuthOutcome) {
	g.EnsureDefaults()
	ctx := r.Context()
	if err := g.Session.Destroy(ctx); err != nil {
		g.Logger.WarnContext(ctx, "error destroying session", "error", err)
	}
	for _, domain := range g.cookieDomains() {
		g.clearCookie(w, g.UserParamName, domain)
		g.clearCookie(w, g.AuthTokenSessionVar, domain)
	}
	g.AddNotice(ctx, outcome.Notice)
	redirect := outcome.RedirectTo
	if redirect == "" {
		redirect = g.Routes.Home
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// LoggedInUserID returns the user id stored in the session, if any.
func (g *SessionGateway) LoggedInUserID(ctx context.Context) string {
	g.EnsureDefaults()
	return g.Session.GetString(ctx, g.UserParamName)
}

// SessionGetter adapts the gateway for Middleware.SessionGetter.
func (g *SessionGateway) SessionGetter(r *http.Request, param string) any {
	return g.Session.GetString(r.Context(), param)
}

// AddNotice queues a flash notice for the next page view.
func (g *SessionGateway) AddNotice(ctx context.Context, notice Notice) {
	if notice.IsZero() {
		return
	}
	key := flashKeyPrefix + string(notice.Level)
	existing, _ := g.Session.Get(ctx, key).([]string)
	g.Session.Put(ctx, key, append(existing, notice.Message))
}

// PopNotices removes and returns all queued notices, errors first.
func (g *SessionGateway) PopNotices(ctx context.Context) []Notice {
	var out []Notice
	for _, level := range []NoticeLevel{NoticeError, NoticeSuccess, NoticeInfo} {
		messages, _ := g.Session.Pop(ctx, flashKeyPrefix+string(level)).([]string)
		for _, m := range messages {
			out = append(out, Notice{Level: level, Message: m})
		}
	}
	return out
}

func (g *SessionGateway) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	ctx := r.Context()
	if err := g.Session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	if g.Tokens == nil {
		g.Session.Put(ctx, g.UserParamName, userID)
		return nil
	}
	tokenString, err := g.Tokens.Issue(userID)
	if err != nil {
		return err
	}
	g.Session.Put(ctx, g.UserParamName, userID)
	g.Session.Put(ctx, g.AuthTokenSessionVar, tokenString)

	expires := time.Now().Add(time.Second * time.Duration(g.SessionTimeoutInSeconds))
	for _, domain := range g.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     g.AuthTokenSessionVar,
			Value:    tokenString,
			Domain:   domain,
			Path:     "/",
			Expires:  expires,
			MaxAge:   g.SessionTimeoutInSeconds,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return nil
}

// callbackURL returns the post-login target from the query, the form or the
// callback cookie, in that order, and clears the cookie.
func (g *SessionGateway) callbackURL(w http.ResponseWriter, r *http.Request) string {
	target := r.URL.Query().Get(g.CallbackURLParam)
	if target == "" {
		target = r.PostForm.Get(g.CallbackURLParam)
	}
	if cookie, err := r.Cookie(g.CallbackURLCookieName); err == nil {
		g.clearCookie(w, g.CallbackURLCookieName, "")
		if target == "" {
			target = cookie.Value
		}
	}
	if !isLocalPath(target) {
		return ""
	}
	return target
}

func isLocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (g *SessionGateway) cookieDomains() []string {
	domains := slices.Clone(g.CookieDomains)
	if !slices.Contains(domains, "") {
		domains = append(domains, "")
	}
	return domains
}

func (g *SessionGateway) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Domain:  domain,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}
