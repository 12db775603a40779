package accountlink

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
)

// Authenticator is the boundary between the core and its callers.  Every
// operation returns an AuthOutcome; errors from the resolver and the local
// credential manager are logged here, once, and replaced by user-safe
// notices.
type Authenticator struct {
	Local    *LocalCredentials
	Resolver *Resolver
	Routes   Routes
	Logger   *slog.Logger
}

// NewAuthenticator wires a LocalCredentials and a Resolver over the same
// directory with default settings.
func NewAuthenticator(directory UserDirectory) *Authenticator {
	return &Authenticator{
		Local:    NewLocalCredentials(directory),
		Resolver: NewResolver(directory),
		Routes:   DefaultRoutes(),
	}
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Authenticator) routes() Routes {
	return a.Routes.EnsureDefaults()
}

// Register creates a local account and, on success, asks the gateway to log
// the new user in.
func (a *Authenticator) Register(ctx context.Context, reg Registration) AuthOutcome {
	user, err := a.Local.Register(ctx, reg)
	if err != nil {
		return a.fail(ctx, "register", err, a.routes().Join, a.registerNotice(err))
	}
	a.logger().InfoContext(ctx, "user registered", "op", "register", "user_id", user.ID)
	return Succeeded(user.ID, NoticeWelcome, a.routes().Home)
}

func (a *Authenticator) registerNotice(err error) Notice {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindValidation {
		return NoticeGenericFailure
	}
	if e.Code == ErrCodePasswordMismatch {
		return NoticePasswordMismatch
	}
	return Notice{Level: NoticeError, Message: e.Message}
}

func (a *Authenticator) Login(ctx context.Context, identifier, password string) AuthOutcome {
	user, err := a.Local.Login(ctx, identifier, password)
	if err != nil {
		notice := NoticeLoginFailed
		if KindOf(err) == KindStorage {
			notice = NoticeGenericFailure
		}
		return a.fail(ctx, "login", err, a.routes().Login, notice)
	}
	a.logger().InfoContext(ctx, "user logged in", "op", "login", "user_id", user.ID)
	return Succeeded(user.ID, NoticeWelcome, a.routes().Home)
}

// ChangePassword replaces the password of actingUserID.  The session is kept
// as is on success.
func (a *Authenticator) ChangePassword(ctx context.Context, actingUserID string, change PasswordChange) AuthOutcome {
	if err := a.Local.ChangePassword(ctx, actingUserID, change); err != nil {
		redirect := a.routes().ChangePassword
		if CodeOf(err) == ErrCodeNotAuthenticated {
			redirect = a.routes().Login
		}
		return a.fail(ctx, "change_password", err, redirect, a.changePasswordNotice(err))
	}
	a.logger().InfoContext(ctx, "password changed", "op", "change_password", "user_id", actingUserID)
	out := Succeeded(actingUserID, NoticePasswordChanged, a.routes().Me)
	out.StartSession = false
	return out
}

func (a *Authenticator) changePasswordNotice(err error) Notice {
	var e *Error
	if !errors.As(err, &e) {
		return NoticeGenericFailure
	}
	switch {
	case e.Code == ErrCodePasswordMismatch:
		return NoticePasswordMismatch
	case e.Code == ErrCodeInvalidCreds:
		return NoticeWrongPassword
	case e.Code == ErrCodeNotAuthenticated:
		return NoticeLoginFailed
	case e.Kind == KindValidation:
		return Notice{Level: NoticeError, Message: e.Message}
	case e.Kind == KindAuth:
		return Notice{Level: NoticeError, Message: "This account has no password to change."}
	}
	return NoticeGenericFailure
}

// ProviderCallback normalizes a raw provider profile and resolves it to a
// user.
func (a *Authenticator) ProviderCallback(ctx context.Context, provider string, raw []byte) AuthOutcome {
	profile, err := Normalize(provider, raw)
	if err != nil {
		return a.fail(ctx, "provider_callback", err, a.routes().Login, NoticeLoginFailed, "provider", provider)
	}
	return a.ResolveProfile(ctx, profile)
}

// ResolveProfile resolves an already normalized profile.
func (a *Authenticator) ResolveProfile(ctx context.Context, profile NormalizedProfile) AuthOutcome {
	user, err := a.Resolver.Resolve(ctx, profile)
	if err != nil {
		notice := NoticeGenericFailure
		switch KindOf(err) {
		case KindConflict:
			notice = NoticeLinkConflict
		case KindValidation, KindAuth:
			notice = NoticeLoginFailed
		}
		return a.fail(ctx, "provider_callback", err, a.routes().Login, notice, "provider", profile.Provider)
	}
	a.logger().InfoContext(ctx, "provider login resolved", "op", "provider_callback", "provider", profile.Provider, "user_id", user.ID)
	return Succeeded(user.ID, NoticeWelcome, a.routes().Home)
}

// LoggedOut is the outcome of ending a session.
func (a *Authenticator) LoggedOut() AuthOutcome {
	return AuthOutcome{Success: true, Notice: NoticeLoggedOut, RedirectTo: a.routes().Home}
}

func (a *Authenticator) fail(ctx context.Context, op string, err error, redirect string, notice Notice, attrs ...any) AuthOutcome {
	reason := ReasonFor(err)
	args := append([]any{"op", op, "reason", string(reason), "code", CodeOf(err), "error", err}, attrs...)
	switch reason {
	case ReasonStorage, ReasonResolutionConflict:
		a.logger().ErrorContext(ctx, "authentication failed", args...)
	default:
		a.logger().WarnContext(ctx, "authentication failed", args...)
	}
	return Failed(reason, CodeOf(err), notice, redirect)
}

// UserView is the owner's projection of a User.  It never carries password
// material.
type UserView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email,omitempty"`
	AvatarURL   string            `json:"avatar_url"`
	HasPassword bool              `json:"has_password"`
	Providers   map[string]string `json:"providers"`
	VideoIDs    []string          `json:"video_ids"`
}

func NewUserView(u *User) UserView {
	links := maps.Clone(u.ProviderLinks)
	if links == nil {
		links = map[string]string{}
	}
	videos := slices.Clone(u.VideoIDs)
	if videos == nil {
		videos = []string{}
	}
	return UserView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.EmailValue(),
		AvatarURL:   u.AvatarURL,
		HasPassword: u.HasPassword(),
		Providers:   links,
		VideoIDs:    videos,
	}
}

// PublicUserView is what any visitor may see of a user: no email, no
// provider ids and no credential state.
type PublicUserView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatar_url"`
	VideoIDs  []string `json:"video_ids"`
}

func (v UserView) Public() PublicUserView {
	return PublicUserView{ID: v.ID, Name: v.Name, AvatarURL: v.AvatarURL, VideoIDs: v.VideoIDs}
}

// Profile loads the full view of a user together with the ids of the
// content they own.
func (a *Authenticator) Profile(ctx context.Context, userID string) (UserView, error) {
	user, err := a.Local.Directory.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return UserView{}, err
	}
	if err != nil {
		a.logger().ErrorContext(ctx, "profile lookup failed", "user_id", userID, "error", err)
		return UserView{}, NewStorageError("find user", err)
	}
	return NewUserView(user), nil
}
