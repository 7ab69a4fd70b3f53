// Package persist binds a store.Store to durable storage: it hydrates the
// store once at startup, writes the full collections back after every
// mutation and reloads the store when another context rewrites the key.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/kv"
	"github.com/vbonduro/diamondinv/internal/metrics"
	"github.com/vbonduro/diamondinv/internal/store"
)

// DefaultKey is the storage key holding the persisted blob.
const DefaultKey = "diamond-management-store"

// Version is the blob layout version written by Encode. Blobs with a higher
// version are ignored.
const Version = 0

var (
	ErrMalformed          = errors.New("malformed persisted state")
	ErrUnsupportedVersion = errors.New("unsupported persisted state version")
)

type envelope struct {
	State   *payload `json:"state"`
	Version int      `json:"version"`
}

type payload struct {
	Kapaans  []domain.Kapaan  `json:"kapaans"`
	Persons  []domain.Person  `json:"persons"`
	Receives []domain.Receive `json:"receives"`
}

func newEnvelope(c domain.Collections) envelope {
	c = c.Clone()
	return envelope{
		State:   &payload{Kapaans: c.Kapaans, Persons: c.Persons, Receives: c.Receives},
		Version: Version,
	}
}

// Encode renders c in the persisted layout.
func Encode(c domain.Collections) ([]byte, error) {
	data, err := json.Marshal(newEnvelope(c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// Decode parses a persisted blob. Missing collections decode as empty.
func Decode(raw []byte) (domain.Collections, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Collections{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version > Version {
		return domain.Collections{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.State == nil {
		return domain.Collections{}, fmt.Errorf("%w: missing state", ErrMalformed)
	}

	c := domain.Collections{
		Kapaans:  env.State.Kapaans,
		Persons:  env.State.Persons,
		Receives: env.State.Receives,
	}.Clone()
	for _, p := range c.Persons {
		if p.ID == "" {
			return domain.Collections{}, fmt.Errorf("%w: person without id", ErrMalformed)
		}
	}
	for _, k := range c.Kapaans {
		if k.ID == "" {
			return domain.Collections{}, fmt.Errorf("%w: kapaan without id", ErrMalformed)
		}
	}
	for _, r := range c.Receives {
		if r.ID == "" {
			return domain.Collections{}, fmt.Errorf("%w: receive without id", ErrMalformed)
		}
	}
	return c, nil
}

// storage is the subset of kv.Storage the binding needs.
type storage interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, v any)
	Subscribe(fn func(kv.Change)) func()
}

type Binding struct {
	store       *store.Store
	storage     storage
	key         string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	unsubscribe func()
}

type Option func(*Binding)

func WithKey(key string) Option {
	return func(b *Binding) { b.key = key }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) { b.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Binding) { b.metrics = m }
}

// Bind hydrates st from s and keeps s up to date with every later mutation.
// st is marked hydrated whether or not a usable blob was found.
func Bind(st *store.Store, s storage, opts ...Option) *Binding {
	b := &Binding{
		store:   st,
		storage: s,
		key:     DefaultKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "persist", "key", b.key)

	b.unsubscribe = s.Subscribe(b.onChange)
	b.hydrate()
	st.SetPersister(b)
	return b
}

func (b *Binding) hydrate() {
	outcome := "empty"
	if raw, ok := b.storage.Get(b.key); ok {
		c, err := Decode(raw)
		if err != nil {
			outcome = "discarded"
			b.logger.Warn("ignoring persisted state", "error", err)
		} else {
			outcome = "loaded"
			b.store.LoadFromSnapshot(c)
		}
	}
	b.store.MarkHydrated()
	b.metrics.ObserveHydration(outcome)

	snap := b.store.Snapshot()
	b.logger.Info("store hydrated", "outcome", outcome,
		"persons", len(snap.Persons), "kapaans", len(snap.Kapaans), "receives", len(snap.Receives))
}

// Persist writes c under the binding's key. It implements store.Persister.
func (b *Binding) Persist(c domain.Collections) {
	b.storage.Set(b.key, newEnvelope(c))
}

// Import replaces the store's collections with c and writes them through.
func (b *Binding) Import(c domain.Collections) {
	b.store.LoadFromSnapshot(c)
	b.Persist(b.store.ExportSnapshot())
}

func (b *Binding) onChange(c kv.Change) {
	if c.Key != b.key || !c.Remote {
		return
	}

	raw, ok := b.storage.Get(b.key)
	if !ok {
		b.store.Reload(domain.Collections{})
		b.metrics.ObserveSync()
		b.logger.Info("persisted state removed by another context", "source", c.Source)
		return
	}
	next, err := Decode(raw)
	if err != nil {
		b.logger.Warn("ignoring remote state", "source", c.Source, "error", err)
		return
	}
	b.store.Reload(next)
	b.metrics.ObserveSync()
	b.logger.Debug("reloaded state written by another context", "source", c.Source)
}

// Close stops persistence and remote reloads. The store keeps its state.
func (b *Binding) Close() {
	b.unsubscribe()
	b.store.SetPersister(nil)
}
