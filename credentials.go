package accountlink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the opaque credential-hashing mechanism.  Plain text
// passwords never leave the Local Credential Manager except through it.
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}

// BcryptHasher hashes with bcrypt.  A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", NewValidationError(ErrCodeWeakPassword, "Password must be at most 72 bytes", "password")
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CredentialsValidator verifies a login attempt and returns the user it
// authenticates.  identifierType is "email" or "name".
type CredentialsValidator func(ctx context.Context, identifier, password, identifierType string) (*User, error)

// DetectIdentifierType guesses whether a login identifier is an email or a
// display name.
func DetectIdentifierType(identifier string) string {
	if strings.Contains(identifier, "@") {
		return "email"
	}
	return "name"
}

// NewCredentialsValidator builds the default validator: look the user up by
// email or name and compare the password hash.
func NewCredentialsValidator(directory UserDirectory, hasher PasswordHasher) CredentialsValidator {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return func(ctx context.Context, identifier, password, identifierType string) (*User, error) {
		var (
			user *User
			err  error
		)
		if identifierType == "email" {
			user, err = directory.FindByEmail(ctx, NormalizeEmail(identifier))
		} else {
			user, err = directory.FindByName(ctx, identifier)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(ErrCodeInvalidCreds, "unknown user")
		}
		if err != nil {
			return nil, NewStorageError("find user for login", err)
		}
		if !user.HasPassword() {
			return nil, NewAuthError(ErrCodeNoLocalPassword, "user has no local password")
		}
		if err := hasher.Compare(user.PasswordHash, password); err != nil {
			return nil, NewAuthError(ErrCodeInvalidCreds, "password does not match")
		}
		return user, nil
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignupPolicy defines what a local registration must provide.
type SignupPolicy struct {
	RequireName  bool
	RequireEmail bool

	// Minimum password length in bytes.  Defaults to 1.
	MinPasswordLength int

	// Optional regexp the display name must match.
	NamePattern string
}

// DefaultSignupPolicy requires a name and a non-empty password.  Email is
// optional.
func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{
		RequireName:       true,
		MinPasswordLength: 1,
	}
}

// Stricter preset for deployments that want every local account reachable
// by email.
var PolicyEmailRequired = SignupPolicy{
	RequireName:       true,
	RequireEmail:      true,
	MinPasswordLength: 8,
}

func (p SignupPolicy) GetMinPasswordLength() int {
	if p.MinPasswordLength <= 0 {
		return 1
	}
	return p.MinPasswordLength
}

// GetNamePattern returns the compiled NamePattern, or nil if none is set or
// it does not compile.
func (p SignupPolicy) GetNamePattern() *regexp.Regexp {
	if p.NamePattern == "" {
		return nil
	}
	re, err := regexp.Compile(p.NamePattern)
	if err != nil {
		return nil
	}
	return re
}

// ValidatePassword checks a new password against the policy.
func (p SignupPolicy) ValidatePassword(password, field string) error {
	if minLen := p.GetMinPasswordLength(); len(password) < minLen {
		return NewValidationError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", minLen), field)
	}
	return nil
}

// Validate checks a registration against the policy.
func (p SignupPolicy) Validate(name string, email *string, password string) error {
	if p.RequireName && strings.TrimSpace(name) == "" {
		return NewValidationError(ErrCodeMissingField, "Name is required", "name")
	}
	if p.RequireEmail && email == nil {
		return NewValidationError(ErrCodeMissingField, "Email is required", "email")
	}
	if pattern := p.GetNamePattern(); pattern != nil && name != "" && !pattern.MatchString(name) {
		return NewValidationError(ErrCodeMissingField, "Name has an invalid format", "name")
	}
	if email != nil && !emailPattern.MatchString(*email) {
		return NewValidationError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	return p.ValidatePassword(password, "password")
}
