// Package redis is a kv backend on Redis strings, with a pub/sub channel
// carrying change notifications between processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vbonduro/diamondinv/internal/kv"
)

const DefaultChannel = "diamondinv:kv"

type Options struct {
	Addr    string
	Channel string
	// Prefix is prepended to every key.
	Prefix string
}

type Store struct {
	rdb     *goredis.Client
	channel string
	prefix  string
	logger  *slog.Logger
}

func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{
		rdb:     rdb,
		channel: opts.Channel,
		prefix:  opts.Prefix,
		logger:  logger.With("component", "kv.redis"),
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Publish(ctx context.Context, c kv.Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, raw).Err()
}

func (s *Store) Listen(ctx context.Context, fn func(kv.Change)) error {
	sub := s.rdb.Subscribe(ctx, s.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var c kv.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					s.logger.Warn("bad redis change payload", "error", err)
					continue
				}
				fn(c)
			}
		}
	}()

	return nil
}
