// Package auth provides API key authentication for the guard gRPC service.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey carries the API key on incoming requests.
const MetadataKey = "x-api-key"

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// keyIDKey is the context key for storing the authenticated key ID.
const keyIDKey = contextKey("key_id")

// Authenticator validates API keys against a fixed set loaded at startup.
// Keys are held only as HMAC digests under a per-process secret, so the
// raw keys are not retained after construction.
type Authenticator struct {
	secret  []byte
	digests map[string][]byte // key ID -> HMAC(secret, key)
}

// NewAuthenticator validates keys and builds the digest table. Duplicate
// key IDs are rejected.
func NewAuthenticator(keys []string) (*Authenticator, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating digest secret: %w", err)
	}

	a := &Authenticator{secret: secret, digests: make(map[string][]byte, len(keys))}
	for i, key := range keys {
		keyID, _, err := ParseAPIKey(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i+1, err)
		}
		if _, exists := a.digests[keyID]; exists {
			return nil, fmt.Errorf("duplicate key_id '%s'", keyID)
		}
		a.digests[keyID] = ComputeHMAC(secret, key)
	}
	return a, nil
}

// Enabled reports whether any keys are configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.digests) > 0
}

// Authenticate validates an API key and returns its key ID.
func (a *Authenticator) Authenticate(apiKey string) (string, error) {
	keyID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	// O(1) lookup by the key ID embedded in the key
	expected, ok := a.digests[keyID]
	if !ok {
		return "", ErrUnknownKey
	}
	if !VerifyHMAC(expected, ComputeHMAC(a.secret, apiKey)) {
		return "", ErrInvalidKey
	}
	return keyID, nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass through unauthenticated.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == "/grpc.health.v1.Health/Check" {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get(MetadataKey)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		keyID, err := a.Authenticate(apiKeys[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		// Inject key_id into context for downstream handlers
		return handler(WithKeyID(ctx, keyID), req)
	}
}

// WithKeyID returns ctx carrying keyID.
func WithKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, keyIDKey, keyID)
}

// KeyIDFromContext extracts the authenticated key ID from context.
// Returns empty string if not found.
func KeyIDFromContext(ctx context.Context) string {
	if keyID, ok := ctx.Value(keyIDKey).(string); ok {
		return keyID
	}
	return ""
}
