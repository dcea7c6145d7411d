package memory

import (
	"context"
	"testing"
	"time"

	"github.com/consulta/advisor-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	session := model.Session{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, "digest-1", session, 0))

	// Admission is asynchronous; poll until the entry lands.
	require.Eventually(t, func() bool {
		got, err := c.Get(ctx, "digest-1")
		return err == nil && got != nil && got.AccountID == session.AccountID
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Remove(ctx, "digest-1"))
	require.Eventually(t, func() bool {
		got, err := c.Get(ctx, "digest-1")
		return err == nil && got == nil
	}, 2*time.Second, 10*time.Millisecond)

	missing, err := c.Get(ctx, "never-set")
	require.NoError(t, err)
	require.Nil(t, missing)
}
