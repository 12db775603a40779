// Package accountlink resolves every way a person can sign in (a local
// password or a third-party identity provider) to exactly one user account.
//
// # Architecture
//
// User: the canonical account.  It has an id, a display name, an optional
// email, an avatar, an optional local password hash and a set of provider
// links (provider name -> provider assigned id).
//
// UserDirectory: the persistence capability.  Implementations live under
// stores/ (fs, gorm, sqldb, gae) and all pass the stores/storetest suite.
//
// Resolver: maps a NormalizedProfile from a provider to one User, linking
// the provider to an existing account found by email (or by display name
// when the provider gives no email) or creating a new account.
//
// LocalCredentials: registration, login and password change for the local
// password credential.
//
// Authenticator: the boundary.  Every operation returns an AuthOutcome that
// carries the resolved user id or a failure reason, a user-safe Notice and
// a redirect target.  Failures are logged here and nowhere else.
//
// SessionGateway: applies an AuthOutcome to an HTTP response using scs
// sessions, an HS256 auth token cookie and flash notices.
//
// # Basic Usage
//
//	directory := fs.NewFSUserDirectory("/path/to/storage")
//	auth := accountlink.NewAuthenticator(directory)
//
//	tokens := &accountlink.TokenIssuer{SecretKey: []byte(secret)}
//	gateway := (&accountlink.SessionGateway{Session: scs.New(), Tokens: tokens}).EnsureDefaults()
//	middleware := &accountlink.Middleware{
//	    SessionGetter: gateway.SessionGetter,
//	    VerifyToken:   tokens.Verify,
//	}
//
//	handlers := &accountlink.Handlers{Auth: auth, Gateway: gateway, Middleware: middleware}
//	server := accountlink.NewServer(handlers)
//
// Mount identity providers from the oauth2 package:
//
//	github := oauth2.NewGithubOAuth2(clientID, clientSecret,
//	    "https://yourapp.com/auth/github/callback", handlers.HandleProviderProfile)
//	server.AddProvider("/auth/github", github.Handler())
//
//	http.ListenAndServe(":8080", server.Handler())
//
// # Routes
//
//	POST /join                    register and log in (name, email, password, password2)
//	POST /login                   log in (email or identifier, password)
//	GET|POST /logout              end the session
//	POST /users/change-password   change the acting user's password (curPassword, password, password2)
//	GET /users/me                 the acting user's profile
//	GET /users/{id}               another user's profile
//	GET /notices                  pop queued flash notices
package accountlink
