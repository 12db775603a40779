package oauth2

import (
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// NewGoogleOAuth2 configures the Google flow against the OpenID Connect
// userinfo endpoint (sub, name, picture, email).
func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	return NewBaseOAuth2("google", clientId, clientSecret, callbackUrl,
		google.Endpoint,
		[]string{"openid", "email", "profile"},
		GoogleUserInfoURL,
		handleProfile)
}
