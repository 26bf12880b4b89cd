package shared

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	withTrace := SetTraceID(ctx)
	traceID := GetTraceID(withTrace)
	assert.Len(t, traceID, 32)
	_, err := hex.DecodeString(traceID)
	assert.NoError(t, err)

	assert.Empty(t, GetTraceID(ctx), "parent context is unchanged")
}

func TestGetTraceIDWithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestGenerateTraceIDIsUnique(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool, iterations)
	for i := 0; i < iterations; i++ {
		id := generateTraceID()
		require.Len(t, id, 32)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGenerateFallbackTraceID(t *testing.T) {
	id := generateFallbackTraceID()
	assert.Len(t, id, 32)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = UserIDFromContext(WithUserID(context.Background(), 0))
	assert.False(t, ok, "zero is not a valid user id")

	_, ok = UserIDFromContext(context.WithValue(context.Background(), UserIDContextKey, "42"))
	assert.False(t, ok)
}
