package accountlink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Supported identity providers.
const (
	ProviderGithub = "github"
	ProviderGoogle = "google"
	ProviderKakao  = "kakao"
)

// NormalizedProfile is the provider agnostic identity handed to the Resolver.
// A nil Email means the provider did not supply one.
type NormalizedProfile struct {
	Provider    string
	ProviderID  string
	Email       *string
	DisplayName string
	AvatarURL   string
}

// HasEmail returns true if the provider supplied an email address.
func (p NormalizedProfile) HasEmail() bool { return p.Email != nil }

// Validate checks the fields every profile must carry.
func (p NormalizedProfile) Validate() error {
	switch {
	case p.Provider == "":
		return NewValidationError(ErrCodeMalformedProfile, "profile has no provider", "provider")
	case p.ProviderID == "":
		return NewValidationError(ErrCodeMalformedProfile, fmt.Sprintf("%s profile has no id", p.Provider), "id")
	case p.DisplayName == "":
		return NewValidationError(ErrCodeMalformedProfile, fmt.Sprintf("%s profile has no display name", p.Provider), "name")
	case p.Email != nil && *p.Email == "":
		return NewValidationError(ErrCodeMalformedProfile, "present email must not be blank", "email")
	}
	return nil
}

// ProviderPayload is one of the provider specific profile shapes
// (GithubPayload, GooglePayload, KakaoPayload).  The set is closed.
type ProviderPayload interface {
	Provider() string
	normalize() NormalizedProfile
}

// GithubPayload is the body of GET https://api.github.com/user, either bare
// or nested under "_json" in a profile envelope.
type GithubPayload struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

func (GithubPayload) Provider() string { return ProviderGithub }

func (g GithubPayload) normalize() NormalizedProfile {
	return NormalizedProfile{
		Provider:    ProviderGithub,
		ProviderID:  formatNumericID(g.ID),
		Email:       OptionalEmail(g.Email),
		DisplayName: firstNonEmpty(g.Name, g.Login),
		AvatarURL:   g.AvatarURL,
	}
}

// GooglePayload accepts either the OpenID Connect userinfo body or the
// profile envelope that nests it under "_json" with a separate "emails" list.
type GooglePayload struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`

	JSON   *GoogleProfileJSON `json:"_json,omitempty"`
	Emails []GoogleEmail      `json:"emails,omitempty"`
}

type GoogleProfileJSON struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

type GoogleEmail struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified,omitempty"`
}

func (GooglePayload) Provider() string { return ProviderGoogle }

func (g GooglePayload) normalize() NormalizedProfile {
	inner := GoogleProfileJSON{Sub: g.Sub, Name: g.Name, Picture: g.Picture, Email: g.Email}
	if g.JSON != nil {
		inner = *g.JSON
	}
	email := inner.Email
	if len(g.Emails) > 0 {
		email = firstNonEmpty(g.Emails[0].Value, email)
	}
	return NormalizedProfile{
		Provider:    ProviderGoogle,
		ProviderID:  strings.TrimSpace(inner.Sub),
		Email:       OptionalEmail(email),
		DisplayName: strings.TrimSpace(inner.Name),
		AvatarURL:   inner.Picture,
	}
}

// KakaoPayload is the body of GET https://kapi.kakao.com/v2/user/me, either
// bare or nested under "_json".  The nickname and image live in
// "properties"; the email lives in the separately nested "kakao_account".
type KakaoPayload struct {
	ID           int64           `json:"id"`
	Properties   KakaoProperties `json:"properties"`
	KakaoAccount KakaoAccount    `json:"kakao_account"`
}

type KakaoProperties struct {
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image"`
}

type KakaoAccount struct {
	Email   string              `json:"email"`
	Profile KakaoAccountProfile `json:"profile"`
}

type KakaoAccountProfile struct {
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
}

func (KakaoPayload) Provider() string { return ProviderKakao }

func (k KakaoPayload) normalize() NormalizedProfile {
	return NormalizedProfile{
		Provider:    ProviderKakao,
		ProviderID:  formatNumericID(k.ID),
		Email:       OptionalEmail(k.KakaoAccount.Email),
		DisplayName: firstNonEmpty(k.Properties.Nickname, k.KakaoAccount.Profile.Nickname),
		AvatarURL:   firstNonEmpty(k.Properties.ProfileImage, k.KakaoAccount.Profile.ProfileImageURL),
	}
}

// DecodePayload parses a raw provider body into its payload variant.
func DecodePayload(provider string, raw []byte) (ProviderPayload, error) {
	var (
		payload ProviderPayload
		err     error
	)
	switch provider {
	case ProviderGithub:
		var p GithubPayload
		err = unmarshalEnveloped(raw, &p)
		payload = p
	case ProviderGoogle:
		var p GooglePayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case ProviderKakao:
		var p KakaoPayload
		err = unmarshalEnveloped(raw, &p)
		payload = p
	default:
		return nil, NewValidationError(ErrCodeUnknownProvider, fmt.Sprintf("unknown provider %q", provider), "provider")
	}
	if err != nil {
		return nil, &Error{
			Kind:    KindValidation,
			Code:    ErrCodeMalformedProfile,
			Message: fmt.Sprintf("invalid %s profile", provider),
			Cause:   err,
		}
	}
	return payload, nil
}

// unmarshalEnveloped decodes raw into v, unwrapping a profile envelope that
// nests the provider body under "_json".
func unmarshalEnveloped(raw []byte, v any) error {
	var envelope struct {
		JSON json.RawMessage `json:"_json"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if len(envelope.JSON) > 0 && string(envelope.JSON) != "null" {
		raw = envelope.JSON
	}
	return json.Unmarshal(raw, v)
}

// NormalizePayload maps a decoded payload to a NormalizedProfile and checks
// the required fields.
func NormalizePayload(payload ProviderPayload) (NormalizedProfile, error) {
	profile := payload.normalize()
	if err := profile.Validate(); err != nil {
		return NormalizedProfile{}, err
	}
	return profile, nil
}

// Normalize converts a raw provider profile body into a NormalizedProfile.
func Normalize(provider string, raw []byte) (NormalizedProfile, error) {
	payload, err := DecodePayload(provider, raw)
	if err != nil {
		return NormalizedProfile{}, err
	}
	return NormalizePayload(payload)
}

func formatNumericID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
