package accountlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// Handlers exposes the Authenticator over HTTP.  Form and JSON bodies are
// both accepted; every outcome is delivered through the Gateway.
type Handlers struct {
	Auth       *Authenticator
	Gateway    *SessionGateway
	Middleware *Middleware

	// Form field names
	NameField            string
	EmailField           string
	PasswordField        string
	ConfirmPasswordField string
	CurrentPasswordField string
}

func (h *Handlers) field(name, def string) string {
	if name != "" {
		return name
	}
	return def
}

// HandleJoin registers a local account and logs it in.
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	form, err := parseBody(r)
	if err != nil {
		h.Gateway.Deliver(w, r, Failed(ReasonValidation, "parse_error", Notice{Level: NoticeError, Message: err.Error()}, h.Auth.routes().Join))
		return
	}
	reg := Registration{
		Name:                 form[h.field(h.NameField, "name")],
		Password:             form[h.field(h.PasswordField, "password")],
		PasswordConfirmation: form[h.field(h.ConfirmPasswordField, "password2")],
	}
	if email := form[h.field(h.EmailField, "email")]; email != "" {
		reg.Email = &email
	}
	h.Gateway.Deliver(w, r, h.Auth.Register(r.Context(), reg))
}

// HandleLogin verifies a local credential.  The identifier is read from the
// email field, falling back to "identifier".
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := parseBody(r)
	if err != nil {
		h.Gateway.Deliver(w, r, Failed(ReasonValidation, "parse_error", NoticeLoginFailed, h.Auth.routes().Login))
		return
	}
	identifier := form[h.field(h.EmailField, "email")]
	if identifier == "" {
		identifier = form["identifier"]
	}
	h.Gateway.Deliver(w, r, h.Auth.Login(r.Context(), identifier, form[h.field(h.PasswordField, "password")]))
}

func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Gateway.Logout(w, r, h.Auth.LoggedOut())
}

// HandleChangePassword must run behind Middleware.EnsureUser.
func (h *Handlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	form, err := parseBody(r)
	if err != nil {
		h.Gateway.Deliver(w, r, Failed(ReasonValidation, "parse_error", NoticeGenericFailure, h.Auth.routes().ChangePassword))
		return
	}
	change := PasswordChange{
		CurrentPassword:         form[h.field(h.CurrentPasswordField, "curPassword")],
		NewPassword:             form[h.field(h.PasswordField, "password")],
		NewPasswordConfirmation: form[h.field(h.ConfirmPasswordField, "password2")],
	}
	h.Gateway.Deliver(w, r, h.Auth.ChangePassword(r.Context(), ActingUser(r.Context()), change))
}

// HandleMe returns the acting user's profile as JSON.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, ActingUser(r.Context()))
}

// HandleUserDetail returns the profile of the user named in the {id} path
// variable.  Only the user themselves sees email and provider links; others
// get the PublicUserView.  Unknown users redirect home with a notice.
func (h *Handlers) HandleUserDetail(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, mux.Vars(r)["id"])
}

func (h *Handlers) writeProfile(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.Auth.Profile(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		h.Gateway.Deliver(w, r, Failed(ReasonValidation, "user_not_found", NoticeUserNotFound, h.Auth.routes().Home))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": NoticeGenericFailure.Message})
		return
	}
	if ActingUser(r.Context()) != view.ID {
		writeJSON(w, http.StatusOK, view.Public())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleNotices pops the queued flash notices.  Pages call this to render
// them.
func (h *Handlers) HandleNotices(w http.ResponseWriter, r *http.Request) {
	notices := h.Gateway.PopNotices(r.Context())
	if notices == nil {
		notices = []Notice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

// HandleProviderProfile is called by the oauth2 package once a provider has
// authenticated the user and returned the raw profile body.
func (h *Handlers) HandleProviderProfile(provider string, token *oauth2.Token, rawProfile []byte, w http.ResponseWriter, r *http.Request) {
	h.Gateway.Deliver(w, r, h.Auth.ProviderCallback(r.Context(), provider, rawProfile))
}

// parseBody reads a urlencoded, multipart or JSON body into a flat map.
func parseBody(r *http.Request) (map[string]string, error) {
	contentType := r.Header.Get("Content-Type")
	out := map[string]string{}
	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, fmt.Errorf("invalid post body")
		}
		for k, v := range data {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out, nil
	}

	var err error
	if strings.HasPrefix(contentType, "multipart/form-data") {
		err = r.ParseMultipartForm(1 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing form")
	}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
