package oauth2

import (
	"golang.org/x/oauth2/github"
)

const GithubUserInfoURL = "https://api.github.com/user"

// NewGithubOAuth2 configures the GitHub flow.  The profile body is the
// /user response: numeric id, login, name, avatar_url and a possibly null
// email.
func NewGithubOAuth2(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	return NewBaseOAuth2("github", clientId, clientSecret, callbackUrl,
		github.Endpoint,
		[]string{"read:user", "user:email"},
		GithubUserInfoURL,
		handleProfile)
}
