package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func mustKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	return key
}

func TestGenerateAPIKey_Parses(t *testing.T) {
	key := mustKey(t)
	assert.Len(t, key, 102)

	keyID, random, err := ParseAPIKey(key)
	require.NoError(t, err)
	assert.Len(t, keyID, 32)
	assert.Len(t, random, 64)
	assert.Equal(t, key, FormatAPIKey(keyID, random))
}

func TestParseAPIKey_Invalid(t *testing.T) {
	valid := mustKey(t)
	cases := map[string]string{
		"empty":         "",
		"wrong prefix":  "tk" + valid[2:],
		"wrong version": strings.Replace(valid, "-v1-", "-v2-", 1),
		"short random":  valid[:len(valid)-1],
		"uppercase hex": valid[:6] + strings.ToUpper(valid[6:]),
		"extra segment": valid + "-00",
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseAPIKey(key)
			assert.ErrorIs(t, err, ErrInvalidKeyFormat)
		})
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	key := mustKey(t)
	a, err := NewAuthenticator([]string{key})
	require.NoError(t, err)
	assert.True(t, a.Enabled())

	keyID, err := a.Authenticate(key)
	require.NoError(t, err)
	assert.Equal(t, key[6:38], keyID)

	_, err = a.Authenticate(mustKey(t))
	assert.ErrorIs(t, err, ErrUnknownKey)

	// Same key ID, different secret material.
	forged := FormatAPIKey(keyID, strings.Repeat("0", 64))
	_, err = a.Authenticate(forged)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewAuthenticator_Errors(t *testing.T) {
	key := mustKey(t)

	_, err := NewAuthenticator([]string{key, key})
	assert.ErrorContains(t, err, "duplicate key_id")

	_, err = NewAuthenticator([]string{"not-a-key"})
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	a, err := NewAuthenticator(nil)
	require.NoError(t, err)
	assert.False(t, a.Enabled())
}

func TestUnaryInterceptor(t *testing.T) {
	key := mustKey(t)
	a, err := NewAuthenticator([]string{key})
	require.NoError(t, err)
	interceptor := a.UnaryInterceptor()

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = KeyIDFromContext(ctx)
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/mutguard.v1.GuardService/Get"}

	t.Run("valid key", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, key))
		resp, err := interceptor(ctx, nil, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
		assert.Equal(t, key[6:38], seen)
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("missing key", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "x"))
		_, err := interceptor(ctx, nil, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.Contains(t, status.Convert(err).Message(), "x-api-key")
	})

	t.Run("unknown key", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, mustKey(t)))
		_, err := interceptor(ctx, nil, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("health check bypasses", func(t *testing.T) {
		seen = "unchanged"
		health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		_, err := interceptor(context.Background(), nil, health, handler)
		require.NoError(t, err)
		assert.Empty(t, seen)
	})
}

func TestKeyIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, KeyIDFromContext(context.Background()))
	assert.Equal(t, "abc", KeyIDFromContext(WithKeyID(context.Background(), "abc")))
}
