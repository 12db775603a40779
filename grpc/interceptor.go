package grpc

import (
	"context"
	"log/slog"

	"github.com/panyam/accountlink"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptors.
type InterceptorConfig struct {
	*Config

	// Verifies a bearer token and returns its user id.  Typically
	// (*accountlink.TokenIssuer).Verify.
	VerifyToken func(token string) (string, error)

	// RequireAuth when true rejects requests without an acting user.
	RequireAuth bool

	// Full method names ("/package.Service/Method") that never require auth.
	PublicMethods map[string]bool
}

func NewInterceptorConfig(verify func(string) (string, error), publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		VerifyToken:   verify,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	return c
}

// authenticate returns ctx with the acting user set, or an Unauthenticated
// status when auth is required and none could be established.
func (c *InterceptorConfig) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	userID := ""
	if token := TokenFromIncomingContext(ctx, c.Config); token != "" && c.VerifyToken != nil {
		id, err := c.VerifyToken(token)
		if err != nil {
			slog.WarnContext(ctx, "error verifying token", "method", fullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, "invalid auth token")
		}
		userID = id
	}
	if userID == "" && c.TrustUserIDMetadata {
		userID = UserIDFromIncomingContext(ctx, c.Config)
	}

	if userID == "" {
		if c.RequireAuth && !c.PublicMethods[fullMethod] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	return accountlink.WithActingUser(ctx, userID), nil
}

// UnaryAuthInterceptor establishes the acting user for unary calls.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor establishes the acting user for streaming calls.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}
