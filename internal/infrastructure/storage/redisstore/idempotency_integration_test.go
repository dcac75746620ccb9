//go:build integration

package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"retailstock/internal/core/apperror"
	"retailstock/internal/infrastructure/idempotency"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, Config{Addr: startRedis(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewIdempotencyStore(client, "test:", time.Hour)
	req := idempotency.Request{Key: "k1", UserID: "u1", Operation: "POST /api/v1/movements", RequestHash: "h1"}

	replay, err := store.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = store.Acquire(ctx, req)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIdempotency, appErr.Code)

	require.NoError(t, store.Complete(ctx, req, idempotency.Replay{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"ok":true}`)}))

	replay, err = store.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(replay.Body))

	other := req
	other.RequestHash = "h2"
	_, err = store.Acquire(ctx, other)
	assert.Error(t, err)

	otherUser := other
	otherUser.UserID = "u2"
	replay, err = store.Acquire(ctx, otherUser)
	require.NoError(t, err)
	assert.Nil(t, replay, "same key of another user is a fresh slot")

	require.NoError(t, store.Release(ctx, other))
	replay, err = store.Acquire(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestIdempotencyStore_ReclaimsStalePending(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, Config{Addr: startRedis(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewIdempotencyStore(client, "test:", time.Hour)
	req := idempotency.Request{Key: "k2", UserID: "u1", Operation: "PUT /api/v1/movements/:id", RequestHash: "h"}

	start := time.Now().UTC()
	store.now = func() time.Time { return start }
	_, err = store.Acquire(ctx, req)
	require.NoError(t, err)

	store.now = func() time.Time { return start.Add(2 * idempotency.StaleAfter) }
	replay, err := store.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)
}
