package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix  = "workflow:"
	defaultMaxRetries = 16
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
// Each collection is a Redis list of JSON documents; mutations rewrite the
// list inside a WATCH/MULTI transaction so readers never see a partial state.
type RedisStorage struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration

	// KeyPrefix is prepended to every collection key. Defaults to "workflow:".
	KeyPrefix string
	// MaxRetries bounds the optimistic transaction retries of one mutation.
	MaxRetries int
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	s := &RedisStorage{client: client, prefix: opts.KeyPrefix, maxRetries: opts.MaxRetries}
	if s.prefix == "" {
		s.prefix = defaultKeyPrefix
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	return s, nil
}

func (s *RedisStorage) key(c Collection) string {
	return s.prefix + string(c)
}

func decodeList(key string, values []string) ([]Document, error) {
	docs := make([]Document, 0, len(values))
	for _, v := range values {
		var doc Document
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document in %s: %v", key, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// load reads every document of c.
func (s *RedisStorage) load(ctx context.Context, c Collection) ([]Document, error) {
	key := s.key(c)
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %v", key, err)
	}
	return decodeList(key, values)
}

// mutate replaces the documents of c with the result of fn. The read and the
// write run in one optimistic transaction, retried when the key changes.
func (s *RedisStorage) mutate(ctx context.Context, c Collection, fn func([]Document) ([]Document, error)) error {
	if err := validCollection(c); err != nil {
		return err
	}
	key := s.key(c)

	txf := func(tx *redis.Tx) error {
		values, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to read %s from Redis: %v", key, err)
		}
		docs, err := decodeList(key, values)
		if err != nil {
			return err
		}
		next, err := fn(docs)
		if err != nil {
			return err
		}

		encoded := make([]interface{}, 0, len(next))
		for _, doc := range next {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("failed to marshal document for %s: %v", key, err)
			}
			encoded = append(encoded, data)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(encoded) > 0 {
				pipe.RPush(ctx, key, encoded...)
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: key=%s", ErrConflict, key)
}

// Create appends a document to the collection.
func (s *RedisStorage) Create(ctx context.Context, c Collection, doc Document) (Document, error) {
	return withContext(ctx, func() (Document, error) {
		if err := validCollection(c); err != nil {
			return nil, err
		}
		n, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %v", err)
		}
		if err := s.client.RPush(ctx, s.key(c), data).Err(); err != nil {
			return nil, fmt.Errorf("failed to append to %s in Redis: %v", s.key(c), err)
		}
		return n, nil
	})
}

// Find returns the matching documents.
func (s *RedisStorage) Find(ctx context.Context, c Collection, q Query) ([]Document, error) {
	return withContext(ctx, func() ([]Document, error) {
		if err := validCollection(c); err != nil {
			return nil, err
		}
		nq, err := normalizeQuery(q)
		if err != nil {
			return nil, err
		}
		docs, err := s.load(ctx, c)
		if err != nil {
			return nil, err
		}
		return applyFind(docs, nq), nil
	})
}

// FindOne returns the first matching document.
func (s *RedisStorage) FindOne(ctx context.Context, c Collection, q Query) (Document, error) {
	docs, err := s.Find(ctx, c, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: collection=%s", ErrNotFound, c)
	}
	return docs[0], nil
}

// Update merges patch into the matching documents.
func (s *RedisStorage) Update(ctx context.Context, c Collection, q Query, patch Document) ([]Document, error) {
	return withContext(ctx, func() ([]Document, error) {
		nq, err := normalizeQuery(q)
		if err != nil {
			return nil, err
		}
		np, err := normalize(patch)
		if err != nil {
			return nil, err
		}
		var updated []Document
		err = s.mutate(ctx, c, func(docs []Document) ([]Document, error) {
			var next []Document
			next, updated = applyUpdate(docs, nq, np)
			return next, nil
		})
		return updated, err
	})
}

// Upsert returns the first document holding every field of doc, or creates it.
func (s *RedisStorage) Upsert(ctx context.Context, c Collection, doc Document) (Document, error) {
	return withContext(ctx, func() (Document, error) {
		n, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		var result Document
		err = s.mutate(ctx, c, func(docs []Document) ([]Document, error) {
			for _, existing := range docs {
				if matches(existing, Query(n)) {
					result = existing
					return docs, nil
				}
			}
			result = n
			return append(docs, n), nil
		})
		return result, err
	})
}

// Delete removes the matching documents.
func (s *RedisStorage) Delete(ctx context.Context, c Collection, q Query) ([]Document, error) {
	return withContext(ctx, func() ([]Document, error) {
		nq, err := normalizeQuery(q)
		if err != nil {
			return nil, err
		}
		var removed []Document
		err = s.mutate(ctx, c, func(docs []Document) ([]Document, error) {
			var kept []Document
			kept, removed = applyDelete(docs, nq)
			return kept, nil
		})
		return removed, err
	})
}

// Replace swaps the matching documents for docs.
func (s *RedisStorage) Replace(ctx context.Context, c Collection, q Query, docs []Document) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		nq, err := normalizeQuery(q)
		if err != nil {
			return struct{}{}, err
		}
		replacement, err := normalizeAll(docs)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.mutate(ctx, c, func(existing []Document) ([]Document, error) {
			return applyReplace(existing, nq, replacement), nil
		})
	})
	return err
}

// Clear removes the given collections, or every collection under the key prefix.
func (s *RedisStorage) Clear(ctx context.Context, collections ...Collection) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		keys := make([]string, 0, len(collections))
		for _, c := range collections {
			keys = append(keys, s.key(c))
		}
		if len(collections) == 0 {
			found, err := s.client.Keys(ctx, s.prefix+"*").Result()
			if err != nil {
				return struct{}{}, fmt.Errorf("failed to scan collection keys: %v", err)
			}
			keys = found
		}
		if len(keys) == 0 {
			return struct{}{}, nil
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return struct{}{}, fmt.Errorf("failed to delete collections: %v", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
