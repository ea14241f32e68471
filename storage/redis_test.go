package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisOptions returns options for a local Redis server. Every call uses a
// fresh key prefix so tests never see each other's data.
func redisOptions() RedisOptions {
	addr := os.Getenv("WORKFLOW_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return RedisOptions{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		IdleTimeout:  5 * time.Minute,
		KeyPrefix:    "workflow-test:" + uuid.NewString() + ":",
	}
}

func newTestRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	store, err := NewRedisStorage(redisOptions())
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = store.Close()
	})
	return store
}

func TestRedisStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage {
		return newTestRedisStorage(t)
	})

	t.Run("ConnectionFailure", func(t *testing.T) {
		badOpts := redisOptions()
		badOpts.Addr = "invalid:6379"
		_, err := NewRedisStorage(badOpts)
		assert.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		opts := redisOptions()
		opts.KeyPrefix = ""
		store, err := NewRedisStorage(opts)
		if err != nil {
			t.Skipf("redis not reachable: %v", err)
		}
		defer store.Close()
		assert.Equal(t, defaultKeyPrefix, store.prefix)
		assert.Equal(t, defaultMaxRetries, store.maxRetries)
		assert.Equal(t, "workflow:workflowSteps", store.key(CollectionSteps))
	})

	t.Run("ConcurrentUpserts", func(t *testing.T) {
		store := newTestRedisStorage(t)
		ctx := context.Background()

		done := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func(id int) {
				_, err := store.Upsert(ctx, CollectionConnections, Document{"workflowId": "wf-2", "toStepId": id})
				done <- err
			}(i)
		}
		for i := 0; i < 10; i++ {
			assert.NoError(t, <-done)
		}

		docs, err := store.Find(ctx, CollectionConnections, Query{"workflowId": "wf-2"})
		require.NoError(t, err)
		assert.Len(t, docs, 10)
	})

	t.Run("Close", func(t *testing.T) {
		store, err := NewRedisStorage(redisOptions())
		if err != nil {
			t.Skipf("redis not reachable: %v", err)
		}
		require.NoError(t, store.Close())

		// After closing, operations should fail
		_, err = store.Create(context.Background(), CollectionSteps, Document{"workflowStepId": "a"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	})
}
