package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/panyam/accountlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newIssuer() *accountlink.TokenIssuer {
	return &accountlink.TokenIssuer{SecretKey: []byte("test-secret"), Issuer: "test", TTL: time.Minute}
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestTokenFromIncomingContext(t *testing.T) {
	assert.Equal(t, "", TokenFromIncomingContext(context.Background(), nil))
	assert.Equal(t, "abc", TokenFromIncomingContext(incoming("authorization", "Bearer abc"), nil))
	assert.Equal(t, "raw", TokenFromIncomingContext(incoming("authorization", "raw"), nil))
	assert.Equal(t, "u1", UserIDFromIncomingContext(incoming("x-user-id", "u1"), nil))
}

func TestUnaryAuthInterceptor(t *testing.T) {
	issuer := newIssuer()
	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	info := &grpc.UnaryServerInfo{FullMethod: "/accountlink.Accounts/ChangePassword"}
	public := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	config := NewInterceptorConfig(issuer.Verify, public.FullMethod)
	interceptor := UnaryAuthInterceptor(config)

	tests := []struct {
		name     string
		ctx      context.Context
		info     *grpc.UnaryServerInfo
		wantUser string
		wantCode codes.Code
	}{
		{"valid token", incoming("authorization", "Bearer "+token), info, "user-1", codes.OK},
		{"no credentials", context.Background(), info, "", codes.Unauthenticated},
		{"bad token", incoming("authorization", "Bearer nope"), info, "", codes.Unauthenticated},
		{"untrusted user id ignored", incoming("x-user-id", "user-2"), info, "", codes.Unauthenticated},
		{"public method without credentials", context.Background(), public, "", codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			called := false
			_, err := interceptor(tt.ctx, nil, tt.info, func(ctx context.Context, req any) (any, error) {
				called = true
				gotUser = accountlink.ActingUser(ctx)
				return "ok", nil
			})
			if tt.wantCode == codes.OK {
				require.NoError(t, err)
				assert.True(t, called)
				assert.Equal(t, tt.wantUser, gotUser)
				return
			}
			assert.False(t, called)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
		})
	}
}

func TestUnaryAuthInterceptor_TrustedUserID(t *testing.T) {
	config := NewInterceptorConfig(newIssuer().Verify)
	config.TrustUserIDMetadata = true
	interceptor := UnaryAuthInterceptor(config)

	var gotUser string
	_, err := interceptor(incoming("x-user-id", "user-2"), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(ctx context.Context, req any) (any, error) {
			gotUser = accountlink.ActingUser(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "user-2", gotUser)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	issuer := newIssuer()
	token, err := issuer.Issue("user-3")
	require.NoError(t, err)
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(issuer.Verify))
	info := &grpc.StreamServerInfo{FullMethod: "/x.Y/Stream"}

	var gotUser string
	err = interceptor(nil, &fakeStream{ctx: incoming("authorization", "Bearer "+token)}, info,
		func(srv any, ss grpc.ServerStream) error {
			gotUser = accountlink.ActingUser(ss.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "user-3", gotUser)

	err = interceptor(nil, &fakeStream{ctx: context.Background()}, info,
		func(srv any, ss grpc.ServerStream) error {
			t.Error("handler should not be called")
			return nil
		})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok")
	ctx = UserIDToOutgoingContext(ctx, "u9")
	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"Bearer tok"}, md.Get("authorization"))
	assert.Equal(t, []string{"u9"}, md.Get("x-user-id"))
}
