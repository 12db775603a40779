package accountlink

// ReasonCode tells the caller which kind of failure an AuthOutcome reports.
type ReasonCode string

const (
	ReasonNone               ReasonCode = ""
	ReasonValidation         ReasonCode = "validation_error"
	ReasonAuth               ReasonCode = "auth_error"
	ReasonStorage            ReasonCode = "storage_error"
	ReasonResolutionConflict ReasonCode = "resolution_conflict"
)

// ReasonFor maps an error to the ReasonCode surfaced to callers.  Errors that
// are not *Error count as storage failures.
func ReasonFor(err error) ReasonCode {
	switch KindOf(err) {
	case KindValidation:
		return ReasonValidation
	case KindAuth:
		return ReasonAuth
	case KindConflict:
		return ReasonResolutionConflict
	}
	return ReasonStorage
}

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short user-facing message.  It never carries internal detail.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

func (n Notice) IsZero() bool { return n.Message == "" }

// Notices shown to end users.
var (
	NoticeWelcome          = Notice{Level: NoticeSuccess, Message: "Welcome!"}
	NoticeLoginFailed      = Notice{Level: NoticeError, Message: "Login failed."}
	NoticeLoggedOut        = Notice{Level: NoticeInfo, Message: "You have been logged out."}
	NoticePasswordMismatch = Notice{Level: NoticeError, Message: "Passwords do not match."}
	NoticePasswordChanged  = Notice{Level: NoticeSuccess, Message: "Your password has been changed."}
	NoticeWrongPassword    = Notice{Level: NoticeError, Message: "Current password is incorrect."}
	NoticeLinkConflict     = Notice{Level: NoticeError, Message: "This sign-in is already connected to a different account."}
	NoticeGenericFailure   = Notice{Level: NoticeError, Message: "Something went wrong. Please try again."}
	NoticeUserNotFound     = Notice{Level: NoticeError, Message: "User not found."}
)

// Routes are the redirect targets an AuthOutcome can point at.
type Routes struct {
	Home           string
	Join           string
	Login          string
	ChangePassword string
	Me             string
}

func DefaultRoutes() Routes {
	return Routes{
		Home:           "/",
		Join:           "/join",
		Login:          "/login",
		ChangePassword: "/users/change-password",
		Me:             "/users/me",
	}
}

// EnsureDefaults fills empty routes with DefaultRoutes values.
func (r Routes) EnsureDefaults() Routes {
	d := DefaultRoutes()
	if r.Home == "" {
		r.Home = d.Home
	}
	if r.Join == "" {
		r.Join = d.Join
	}
	if r.Login == "" {
		r.Login = d.Login
	}
	if r.ChangePassword == "" {
		r.ChangePassword = d.ChangePassword
	}
	if r.Me == "" {
		r.Me = d.Me
	}
	return r
}

// AuthOutcome is the single result every authentication operation hands to
// the session gateway: either Success with the resolved user id, or Failure
// with a reason.  Both carry the notice to show and where to send the user.
type AuthOutcome struct {
	Success    bool       `json:"success"`
	UserID     string     `json:"user_id,omitempty"`
	Reason     ReasonCode `json:"reason,omitempty"`
	Code       string     `json:"code,omitempty"`
	Notice     Notice     `json:"notice"`
	RedirectTo string     `json:"redirect_to,omitempty"`

	// Establish a session for UserID.  False for successes that only
	// update an existing session (password change).
	StartSession bool `json:"-"`
}

func Succeeded(userID string, notice Notice, redirectTo string) AuthOutcome {
	return AuthOutcome{Success: true, UserID: userID, Notice: notice, RedirectTo: redirectTo, StartSession: true}
}

func Failed(reason ReasonCode, code string, notice Notice, redirectTo string) AuthOutcome {
	return AuthOutcome{Reason: reason, Code: code, Notice: notice, RedirectTo: redirectTo}
}
