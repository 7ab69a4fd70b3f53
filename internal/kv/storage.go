package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/diamondinv/internal/metrics"
)

// DefaultQuota mirrors the per-origin limit browsers put on local storage.
const DefaultQuota = 5 << 20

const opTimeout = 5 * time.Second

// Storage wraps a Backend with JSON encoding and change notification. None of
// its methods return errors: failures are logged and the operation degrades to
// "no durable effect".
type Storage struct {
	backend  Backend
	notifier Notifier
	source   string
	quota    int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	nextSub int
	subs    []subscriber
}

type subscriber struct {
	id int
	fn func(Change)
}

type Option func(*Storage)

// WithQuota sets the largest encoded value Set accepts. Zero disables the
// check.
func WithQuota(bytes int) Option {
	return func(s *Storage) { s.quota = bytes }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Storage) { s.metrics = m }
}

// New wraps backend. A nil backend gives a no-persistence Storage.
func New(backend Backend, opts ...Option) *Storage {
	if backend == nil {
		backend = Discard{}
	}
	s := &Storage{
		backend: backend,
		source:  uuid.NewString(),
		quota:   DefaultQuota,
		logger:  slog.Default(),
	}
	if n, ok := backend.(Notifier); ok {
		s.notifier = n
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "kv", "source", s.source)
	return s
}

// Source identifies this Storage in published changes.
func (s *Storage) Source() string { return s.source }

// Get returns the raw JSON stored under key. Backend failures and malformed
// JSON both read as absent.
func (s *Storage) Get(key string) (json.RawMessage, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn("storage read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}
	if !json.Valid(raw) {
		s.logger.Warn("discarding malformed stored value", "key", key, "bytes", len(raw))
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Decode unmarshals the value stored under key into v and reports whether it
// was present and decodable.
func (s *Storage) Decode(key string, v any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn("stored value does not match expected shape", "key", key, "error", err)
		return false
	}
	return true
}

// Set encodes v and writes it under key, then notifies subscribers. A write
// that cannot be encoded, exceeds the quota or fails in the backend is
// dropped.
func (s *Storage) Set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.drop("encode", key, err)
		return
	}
	if s.quota > 0 && len(data) > s.quota {
		s.drop("quota_exceeded", key, fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, len(data), s.quota))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.drop("backend", key, err)
		return
	}
	s.metrics.ObserveWrite("set")
	s.emit(ctx, key)
}

// Remove deletes key and notifies subscribers.
func (s *Storage) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil {
		s.drop("backend", key, err)
		return
	}
	s.metrics.ObserveWrite("remove")
	s.emit(ctx, key)
}

// Subscribe registers fn for every change, local or remote. fn runs on the
// goroutine that observed the change and must not block. The returned func
// removes the subscription.
func (s *Storage) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Start forwards changes published by other contexts to subscribers until ctx
// is done. Backends without a notifier make this a no-op.
func (s *Storage) Start(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	err := s.notifier.Listen(ctx, func(c Change) {
		if c.Source == s.source {
			return
		}
		c.Remote = true
		s.dispatch(c)
	})
	if err != nil {
		return fmt.Errorf("failed to listen for storage changes: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}

func (s *Storage) emit(ctx context.Context, key string) {
	c := Change{Key: key, Source: s.source}
	s.dispatch(c)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, c); err != nil {
		s.logger.Warn("failed to publish storage change", "key", key, "error", err)
	}
}

func (s *Storage) dispatch(c Change) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(c)
	}
}

func (s *Storage) drop(reason, key string, err error) {
	s.metrics.ObserveDropped(reason)
	level := slog.LevelWarn
	if errors.Is(err, ErrQuotaExceeded) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "storage write dropped", "key", key, "reason", reason, "error", err)
}
