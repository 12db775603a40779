// Package grpc carries the acting user between HTTP handlers and gRPC
// services.  Callers forward the auth token (or, between trusted internal
// hops, the user id) in metadata; the interceptors verify it and expose the
// user through accountlink.ActingUser.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// DefaultMetadataKeyAuthToken carries "Bearer <token>".
	DefaultMetadataKeyAuthToken = "authorization"

	// DefaultMetadataKeyUserID carries a user id between trusted services.
	DefaultMetadataKeyUserID = "x-user-id"
)

// Config holds the metadata key configuration.
type Config struct {
	// Defaults to "authorization".
	MetadataKeyAuthToken string

	// Defaults to "x-user-id".
	MetadataKeyUserID string

	// When true the interceptors accept a bare user id from
	// MetadataKeyUserID without a token.  Only for trusted internal hops.
	TrustUserIDMetadata bool
}

func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthToken: DefaultMetadataKeyAuthToken,
		MetadataKeyUserID:    DefaultMetadataKeyUserID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthToken == "" {
		c.MetadataKeyAuthToken = DefaultMetadataKeyAuthToken
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
}

// TokenFromIncomingContext returns the bearer token sent by the client, or "".
func TokenFromIncomingContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthToken) {
		token, _ := strings.CutPrefix(v, "Bearer ")
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return ""
}

// UserIDFromIncomingContext returns the raw user id metadata value, or "".
// It is not verified.
func UserIDFromIncomingContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// TokenToOutgoingContext attaches an auth token to outgoing metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthToken, "Bearer "+token)
}

// UserIDToOutgoingContext attaches a user id to outgoing metadata.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyUserID, userID)
}
