package accountlink_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	al "github.com/panyam/accountlink"
)

func newLoggedAuthenticator(t *testing.T) (*al.Authenticator, *recordingDirectory, *bytes.Buffer) {
	t.Helper()
	dir := newTestDirectory(t)
	auth := newTestAuthenticator(dir)
	var logs bytes.Buffer
	auth.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	return auth, dir, &logs
}

func TestAuthenticator_Register(t *testing.T) {
	auth, _, logs := newLoggedAuthenticator(t)
	ctx := context.Background()

	out := auth.Register(ctx, al.Registration{Name: "Ann", Email: strPtr("ann@x.com"), Password: "p1", PasswordConfirmation: "p1"})
	if !out.Success || !out.StartSession || out.UserID == "" {
		t.Fatalf("Expected a successful outcome, got %+v", out)
	}
	if out.Notice != al.NoticeWelcome || out.RedirectTo != "/" {
		t.Errorf("Unexpected notice/redirect: %+v", out)
	}

	out = auth.Register(ctx, al.Registration{Name: "Bob", Password: "p1", PasswordConfirmation: "p2"})
	if out.Success {
		t.Fatal("Expected failure for mismatched passwords")
	}
	if out.Reason != al.ReasonValidation || out.Code != al.ErrCodePasswordMismatch {
		t.Errorf("Unexpected reason %q code %q", out.Reason, out.Code)
	}
	if out.Notice != al.NoticePasswordMismatch || out.RedirectTo != "/join" {
		t.Errorf("Unexpected notice/redirect: %+v", out)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "code=password_mismatch") {
		t.Errorf("Expected a warning log for the failure, got:\n%s", logs.String())
	}

	out = auth.Register(ctx, al.Registration{Name: "Ann 2", Email: strPtr("ann@x.com"), Password: "p1", PasswordConfirmation: "p1"})
	if out.Code != al.ErrCodeEmailExists || out.Notice.Message != "Email is already registered" {
		t.Errorf("Expected email_exists with its message, got %+v", out)
	}
}

func TestAuthenticator_Login(t *testing.T) {
	auth, dir, logs := newLoggedAuthenticator(t)
	ctx := context.Background()
	ann := mustRegister(t, auth.Local, "Ann", "ann@x.com", "p1")

	out := auth.Login(ctx, "ann@x.com", "p1")
	if !out.Success || out.UserID != ann.ID || !out.StartSession {
		t.Fatalf("Expected login success, got %+v", out)
	}

	out = auth.Login(ctx, "ann@x.com", "wrong")
	if out.Success || out.Reason != al.ReasonAuth || out.Notice != al.NoticeLoginFailed || out.RedirectTo != "/login" {
		t.Errorf("Unexpected failure outcome %+v", out)
	}

	dir.failWith = errBackendDown
	out = auth.Login(ctx, "ann@x.com", "p1")
	if out.Reason != al.ReasonStorage || out.Notice != al.NoticeGenericFailure {
		t.Errorf("Expected storage failure outcome, got %+v", out)
	}
	if strings.Contains(out.Notice.Message, "backend down") {
		t.Error("Notices must not leak internal errors")
	}
	if !strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("Storage failures should log at error level:\n%s", logs.String())
	}
}

func TestAuthenticator_ChangePassword(t *testing.T) {
	auth, _, _ := newLoggedAuthenticator(t)
	ctx := context.Background()
	ann := mustRegister(t, auth.Local, "Ann", "ann@x.com", "p1")

	out := auth.ChangePassword(ctx, ann.ID, al.PasswordChange{CurrentPassword: "p1", NewPassword: "p2", NewPasswordConfirmation: "p2"})
	if !out.Success || out.StartSession {
		t.Errorf("Expected success without a new session, got %+v", out)
	}
	if out.RedirectTo != "/users/me" || out.Notice != al.NoticePasswordChanged {
		t.Errorf("Unexpected outcome %+v", out)
	}

	tests := []struct {
		name     string
		acting   string
		change   al.PasswordChange
		notice   al.Notice
		redirect string
	}{
		{"wrong current", ann.ID, al.PasswordChange{CurrentPassword: "bad", NewPassword: "p3", NewPasswordConfirmation: "p3"}, al.NoticeWrongPassword, "/users/change-password"},
		{"mismatch", ann.ID, al.PasswordChange{CurrentPassword: "p2", NewPassword: "p3", NewPasswordConfirmation: "p4"}, al.NoticePasswordMismatch, "/users/change-password"},
		{"not logged in", "", al.PasswordChange{CurrentPassword: "p2", NewPassword: "p3", NewPasswordConfirmation: "p3"}, al.NoticeLoginFailed, "/login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := auth.ChangePassword(ctx, tt.acting, tt.change)
			if out.Success {
				t.Fatal("Expected failure")
			}
			if out.Notice != tt.notice || out.RedirectTo != tt.redirect {
				t.Errorf("Expected %v -> %s, got %+v", tt.notice, tt.redirect, out)
			}
		})
	}
}

func TestAuthenticator_ProviderCallback(t *testing.T) {
	auth, dir, logs := newLoggedAuthenticator(t)
	ctx := context.Background()

	out := auth.ProviderCallback(ctx, "github", []byte(`{"id": 42, "login": "ann", "email": "ann@x.com"}`))
	if !out.Success || out.UserID == "" {
		t.Fatalf("Expected success, got %+v", out)
	}
	again := auth.ProviderCallback(ctx, "github", []byte(`{"id": 42, "login": "ann", "email": "ann@x.com"}`))
	if again.UserID != out.UserID {
		t.Errorf("Expected the same user on replay, got %s and %s", out.UserID, again.UserID)
	}

	out = auth.ProviderCallback(ctx, "github", []byte(`not json`))
	if out.Reason != al.ReasonValidation || out.Code != al.ErrCodeMalformedProfile || out.Notice != al.NoticeLoginFailed {
		t.Errorf("Unexpected outcome for malformed profile %+v", out)
	}

	seedUser(t, dir, &al.User{ID: "bob", Name: "Bob", Email: strPtr("bob@x.com")})
	out = auth.ProviderCallback(ctx, "github", []byte(`{"id": 42, "login": "bob", "email": "bob@x.com"}`))
	if out.Reason != al.ReasonResolutionConflict || out.Notice != al.NoticeLinkConflict || out.RedirectTo != "/login" {
		t.Errorf("Unexpected conflict outcome %+v", out)
	}
	if !strings.Contains(logs.String(), "provider=github") {
		t.Errorf("Expected the provider in the log:\n%s", logs.String())
	}
}

func TestAuthenticator_LoggedOut(t *testing.T) {
	out := al.NewAuthenticator(newTestDirectory(t)).LoggedOut()
	if !out.Success || out.Notice != al.NoticeLoggedOut || out.RedirectTo != "/" {
		t.Errorf("Unexpected logout outcome %+v", out)
	}
}

func TestAuthenticator_Profile(t *testing.T) {
	auth, dir, _ := newLoggedAuthenticator(t)
	ctx := context.Background()
	seedUser(t, dir, &al.User{
		ID: "u1", Name: "Ann", Email: strPtr("ann@x.com"), PasswordHash: "secret-hash",
		ProviderLinks: map[string]string{"github": "42"}, VideoIDs: []string{"v1"},
	})

	view, err := auth.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if !view.HasPassword || view.Providers["github"] != "42" || len(view.VideoIDs) != 1 {
		t.Errorf("Unexpected view %+v", view)
	}
	data, _ := json.Marshal(view)
	if strings.Contains(string(data), "secret-hash") {
		t.Error("UserView must not expose the password hash")
	}

	if _, err := auth.Profile(ctx, "nobody"); !errors.Is(err, al.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	dir.failWith = errBackendDown
	_, err = auth.Profile(ctx, "u1")
	assertKind(t, err, al.KindStorage, "")
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want al.ReasonCode
	}{
		{al.NewValidationError(al.ErrCodeMissingField, "x", "name"), al.ReasonValidation},
		{al.NewAuthError(al.ErrCodeInvalidCreds, "x"), al.ReasonAuth},
		{al.NewResolutionConflict("github", "1", "u"), al.ReasonResolutionConflict},
		{al.NewStorageError("op", errBackendDown), al.ReasonStorage},
		{errBackendDown, al.ReasonStorage},
	}
	for _, tt := range tests {
		if got := al.ReasonFor(tt.err); got != tt.want {
			t.Errorf("ReasonFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorIs(t *testing.T) {
	err := al.NewValidationError(al.ErrCodeWeakPassword, "too short", "password")
	if !errors.Is(err, al.ErrValidation) {
		t.Error("Expected match by kind")
	}
	if errors.Is(err, al.ErrAuth) {
		t.Error("Did not expect a match on another kind")
	}
	if !errors.Is(err, &al.Error{Kind: al.KindValidation, Code: al.ErrCodeWeakPassword}) {
		t.Error("Expected match by kind and code")
	}
	if errors.Is(err, &al.Error{Kind: al.KindValidation, Code: al.ErrCodeMissingField}) {
		t.Error("Did not expect a match on another code")
	}
	wrapped := al.NewStorageError("again", err)
	if wrapped != error(err) {
		t.Error("NewStorageError should pass an *Error through")
	}
}
