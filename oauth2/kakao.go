package oauth2

import (
	"golang.org/x/oauth2"
)

// KakaoEndpoint is Kakao's OAuth 2.0 endpoint.  Kakao expects the client
// credentials in the request body.
var KakaoEndpoint = oauth2.Endpoint{
	AuthURL:   "https://kauth.kakao.com/oauth/authorize",
	TokenURL:  "https://kauth.kakao.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const KakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

// NewKakaoOAuth2 configures the Kakao flow.  The profile body nests the
// nickname under "properties" and the email under "kakao_account".
func NewKakaoOAuth2(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *BaseOAuth2 {
	return NewBaseOAuth2("kakao", clientId, clientSecret, callbackUrl,
		KakaoEndpoint,
		[]string{"profile_nickname", "profile_image", "account_email"},
		KakaoUserInfoURL,
		handleProfile)
}
