package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"codearena/internal/model"
)

const (
	// Finished sessions linger so late subscribers never see a spurious
	// not-found; Redis expiry garbage-collects them eventually.
	sessionTTL = 24 * time.Hour

	// Optimistic transactions give up after this many conflict retries.
	maxTxRetries = 20
)

// RedisStore backs the session document store with Redis. Documents live as
// JSON at arena:session:{code}; Transact uses WATCH-based optimistic
// transactions; Subscribe rides Redis pub/sub.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(code string) string {
	return fmt.Sprintf("arena:session:%s", code)
}

func (s *RedisStore) channel(code string) string {
	return fmt.Sprintf("arena:session:%s:events", code)
}

func (s *RedisStore) Create(ctx context.Context, code string, doc *model.Session) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(code), data, sessionTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrCodeTaken
	}
	if err := s.client.Publish(ctx, s.channel(code), data).Err(); err != nil {
		log.Printf("session %s: publish after create failed: %v", code, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.key(code)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var doc model.Session
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *RedisStore) MergeUpdate(ctx context.Context, code string, patch Patch) error {
	// The document is one JSON blob, so even a per-field patch rewrites the
	// whole value; it has to ride the optimistic path or a concurrent
	// participant commit between read and write-back would be erased.
	return s.Transact(ctx, code, func(current *model.Session) (*model.Session, error) {
		if current == nil {
			return nil, nil
		}
		next := current.Clone()
		ApplyPatch(next, patch)
		return next, nil
	})
}

// errTxAborted marks a transaction body error so it is returned to the
// caller as-is instead of being classified as a store outage.
var errTxAborted = errors.New("tx aborted by body")

func (s *RedisStore) Transact(ctx context.Context, code string, fn TxFunc) error {
	key := s.key(code)

	var fnErr error
	txBody := func(tx *redis.Tx) error {
		var snapshot *model.Session
		data, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			snapshot = &model.Session{}
			if err := json.Unmarshal([]byte(data), snapshot); err != nil {
				return err
			}
		}

		next, err := fn(snapshot)
		if err != nil {
			fnErr = err
			return errTxAborted
		}
		if next == nil {
			return nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, sessionTTL)
			pipe.Publish(ctx, s.channel(code), payload)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txBody, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue // concurrent writer won, re-run fn on a fresh snapshot
		}
		if errors.Is(err, errTxAborted) {
			return fnErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: transaction contention on %s", ErrUnavailable, code)
}

func (s *RedisStore) Subscribe(ctx context.Context, code string, onChange func(*model.Session)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	go func() {
		// Late subscribers get the current state up front, on the same
		// goroutine as the pub/sub pump so it can never arrive after a
		// newer event.
		if doc, err := s.Get(ctx, code); err == nil {
			onChange(doc)
		}
		for msg := range pubsub.Channel() {
			if msg.Payload == "null" {
				onChange(nil)
				continue
			}
			var doc model.Session
			if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
				log.Printf("session %s: bad event payload: %v", code, err)
				continue
			}
			onChange(&doc)
		}
	}()

	return func() { pubsub.Close() }, nil
}

// Delete removes a finished session and tells subscribers it is gone.
func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.client.Publish(ctx, s.channel(code), "null").Err()
}
