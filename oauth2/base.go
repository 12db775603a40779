package oauth2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// HandleProfileFunc receives the raw profile body fetched from a provider's
// user info endpoint after a successful code exchange.
type HandleProfileFunc func(provider string, token *oauth2.Token, rawProfile []byte, w http.ResponseWriter, r *http.Request)

const maxProfileBytes = 1 << 20

// BaseOAuth2 runs the authorization code flow for one provider: "/" redirects
// to the provider, "/callback" (with or without trailing slash) exchanges the
// code, fetches the profile and hands it to HandleProfile.
type BaseOAuth2 struct {
	Provider     string
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// UserInfoURL is where the profile is fetched from.  Can be overridden
	// for testing.
	UserInfoURL string

	// Where the browser is sent when the exchange or profile fetch fails.
	// Defaults to "/login".
	AuthFailureURL string

	HandleProfile HandleProfileFunc

	oauthConfig oauth2.Config
	mux         *http.ServeMux
	httpClient  *http.Client
}

func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes []string, userInfoURL string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		Provider:       provider,
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		UserInfoURL:    userInfoURL,
		AuthFailureURL: "/login",
		HandleProfile:  handleProfile,
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	out.mux.HandleFunc("/", OauthRedirector(&out.oauthConfig))
	out.mux.HandleFunc("/callback", out.handleCallback)
	out.mux.HandleFunc("/callback/", out.handleCallback)
	return out
}

func (b *BaseOAuth2) Handler() http.Handler { return b.mux }

// SetHTTPClient sets the client used for the token exchange and the profile
// fetch.
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) { b.httpClient = client }

// SetOAuthEndpoint overrides the provider's authorization and token URLs.
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) { b.oauthConfig.Endpoint = endpoint }

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.httpClient != nil {
		return b.httpClient
	}
	return http.DefaultClient
}

func (b *BaseOAuth2) exchangeContext(ctx context.Context) context.Context {
	if b.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return ctx
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie("oauthstate")
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauthstate", Path: "/", MaxAge: -1})
	if r.FormValue("state") != oauthState.Value {
		http.Error(w, fmt.Sprintf("invalid oauth %s state", b.Provider), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if errParam := r.FormValue("error"); errParam != "" {
		slog.InfoContext(ctx, "provider denied authorization", "provider", b.Provider, "error", errParam)
		http.Redirect(w, r, b.AuthFailureURL, http.StatusFound)
		return
	}

	token, err := b.oauthConfig.Exchange(b.exchangeContext(ctx), r.FormValue("code"))
	if err != nil {
		slog.InfoContext(ctx, "invalid code exchange", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureURL, http.StatusFound)
		return
	}
	raw, err := b.fetchProfile(ctx, token)
	if err != nil {
		slog.InfoContext(ctx, "error fetching profile", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureURL, http.StatusFound)
		return
	}
	b.HandleProfile(b.Provider, token, raw, w, r)
}

func (b *BaseOAuth2) fetchProfile(ctx context.Context, token *oauth2.Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from %s: %w", b.Provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request to %s returned %d", b.Provider, resp.StatusCode)
	}

	contents, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if len(contents) == 0 {
		return nil, errors.New("empty user info response")
	}
	return contents, nil
}
