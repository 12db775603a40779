package accountlink

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Registration is a local sign up attempt.
type Registration struct {
	Name                 string
	Email                *string
	Password             string
	PasswordConfirmation string
}

// PasswordChange is a request by the acting user to replace their password.
type PasswordChange struct {
	CurrentPassword         string
	NewPassword             string
	NewPasswordConfirmation string
}

// LocalCredentials manages the local password credential: registration,
// login verification and password change.
type LocalCredentials struct {
	Directory UserDirectory
	Hasher    PasswordHasher

	// Verifies login attempts.  Defaults to NewCredentialsValidator(Directory, Hasher).
	ValidateCredentials CredentialsValidator

	// Defaults to DefaultSignupPolicy().
	SignupPolicy *SignupPolicy

	// Avatar given to new local accounts.  Defaults to DefaultAvatarURL.
	DefaultAvatarURL string

	NewID func() string
	Now   func() time.Time
}

func NewLocalCredentials(directory UserDirectory) *LocalCredentials {
	return &LocalCredentials{Directory: directory}
}

func (l *LocalCredentials) hasher() PasswordHasher {
	if l.Hasher == nil {
		return BcryptHasher{}
	}
	return l.Hasher
}

func (l *LocalCredentials) policy() SignupPolicy {
	if l.SignupPolicy != nil {
		return *l.SignupPolicy
	}
	return DefaultSignupPolicy()
}

func (l *LocalCredentials) validator() CredentialsValidator {
	if l.ValidateCredentials != nil {
		return l.ValidateCredentials
	}
	return NewCredentialsValidator(l.Directory, l.hasher())
}

// Register creates a local account.  The confirmation check and policy
// validation run before anything touches the directory, so a rejected
// registration never leaves a partial account behind.
func (l *LocalCredentials) Register(ctx context.Context, reg Registration) (*User, error) {
	if reg.Password != reg.PasswordConfirmation {
		return nil, NewValidationError(ErrCodePasswordMismatch, "Passwords do not match", "passwordConfirmation")
	}

	name := strings.TrimSpace(reg.Name)
	var email *string
	if reg.Email != nil {
		email = OptionalEmail(*reg.Email)
	}
	if err := l.policy().Validate(name, email, reg.Password); err != nil {
		return nil, err
	}

	if email != nil {
		_, err := l.Directory.FindByEmail(ctx, *email)
		if err == nil {
			return nil, NewValidationError(ErrCodeEmailExists, "Email is already registered", "email")
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, NewStorageError("find by email", err)
		}
	} else {
		// Without an email the name is the only login key, and login by
		// name always resolves to the earliest account with that name.
		_, err := l.Directory.FindByName(ctx, name)
		if err == nil {
			return nil, NewValidationError(ErrCodeNameExists, "Name is already taken, register with an email", "name")
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, NewStorageError("find by name", err)
		}
	}

	hash, err := l.hasher().Hash(reg.Password)
	if err != nil {
		return nil, NewStorageError("hash password", err)
	}

	now := l.now()
	avatar := l.DefaultAvatarURL
	if avatar == "" {
		avatar = DefaultAvatarURL
	}
	user := &User{
		ID:            l.newID(),
		Name:          name,
		Email:         email,
		AvatarURL:     avatar,
		PasswordHash:  hash,
		ProviderLinks: map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := l.Directory.Create(ctx, user)
	if errors.Is(err, ErrDuplicate) {
		return nil, NewValidationError(ErrCodeEmailExists, "Email is already registered", "email")
	}
	if err != nil {
		return nil, NewStorageError("create user", err)
	}
	return created, nil
}

// Login verifies a local credential through the configured
// CredentialsValidator.  Every verification failure is reported as the same
// AuthError so callers cannot tell an unknown user from a wrong password.
func (l *LocalCredentials) Login(ctx context.Context, identifier, password string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, NewValidationError(ErrCodeMissingField, "Identifier and password are required", "identifier")
	}

	user, err := l.validator()(ctx, identifier, password, DetectIdentifierType(identifier))
	if err != nil {
		if KindOf(err) == KindStorage {
			return nil, err
		}
		return nil, &Error{Kind: KindAuth, Code: ErrCodeInvalidCreds, Message: "Invalid credentials", Cause: err}
	}
	if user == nil {
		return nil, NewAuthError(ErrCodeInvalidCreds, "Invalid credentials")
	}
	return user, nil
}

// ChangePassword replaces the acting user's password.  The confirmation is
// checked before the stored credential is read or verified.  On any failure
// the stored hash is left untouched.
func (l *LocalCredentials) ChangePassword(ctx context.Context, actingUserID string, change PasswordChange) error {
	if actingUserID == "" {
		return NewAuthError(ErrCodeNotAuthenticated, "Not authenticated")
	}
	if change.NewPassword != change.NewPasswordConfirmation {
		return NewValidationError(ErrCodePasswordMismatch, "Passwords do not match", "newPasswordConfirmation")
	}
	if err := l.policy().ValidatePassword(change.NewPassword, "newPassword"); err != nil {
		return err
	}

	user, err := l.Directory.FindByID(ctx, actingUserID)
	if errors.Is(err, ErrNotFound) {
		return NewAuthError(ErrCodeNotAuthenticated, "Acting user does not exist")
	}
	if err != nil {
		return NewStorageError("find acting user", err)
	}
	if !user.HasPassword() {
		return NewAuthError(ErrCodeNoLocalPassword, "Account has no local password")
	}
	if err := l.hasher().Compare(user.PasswordHash, change.CurrentPassword); err != nil {
		return NewAuthError(ErrCodeInvalidCreds, "Current password is incorrect")
	}

	hash, err := l.hasher().Hash(change.NewPassword)
	if err != nil {
		return NewStorageError("hash password", err)
	}
	if _, err := l.Directory.Update(ctx, user.ID, UserPatch{PasswordHash: &hash}); err != nil {
		return NewStorageError("update password", err)
	}
	return nil
}

func (l *LocalCredentials) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return NewUserID()
}

func (l *LocalCredentials) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}
