// Package store holds the in-memory inventory: persons, kapaans and receives.
//
// Every mutation builds a new state from a copy of the current one and swaps
// it in under the store lock, so readers only ever observe complete
// snapshots. The registered Persister sees each new state before the lock is
// released, which keeps durable writes in mutation order. Subscribers are
// notified afterwards, in the same order.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/metrics"
)

type Action string

const (
	ActionAddPerson     Action = "addPerson"
	ActionAddKapaan     Action = "addKapaan"
	ActionUpdateKapaan  Action = "updateKapaan"
	ActionRemoveKapaan  Action = "removeKapaan"
	ActionAddReceive    Action = "addReceive"
	ActionRemoveReceive Action = "removeReceive"
	ActionLoad          Action = "load"
	ActionHydrate       Action = "hydrate"
	ActionSync          Action = "sync"
)

// State is a snapshot of the store.
type State struct {
	Persons  []domain.Person  `json:"persons"`
	Kapaans  []domain.Kapaan  `json:"kapaans"`
	Receives []domain.Receive `json:"receives"`
	Hydrated bool             `json:"hydrated"`
}

// Collections returns a deep copy of the persisted part of s.
func (s State) Collections() domain.Collections {
	return domain.Collections{
		Kapaans:  s.Kapaans,
		Persons:  s.Persons,
		Receives: s.Receives,
	}.Clone()
}

func (s State) clone() State {
	c := s.Collections()
	return State{
		Persons:  c.Persons,
		Kapaans:  c.Kapaans,
		Receives: c.Receives,
		Hydrated: s.Hydrated,
	}
}

// Listener is called after every state change with the new snapshot. The
// snapshot is shared between listeners and must not be modified. Listeners
// must not call mutating store methods synchronously.
type Listener func(State, Action)

// Persister receives the collections after every mutation.
type Persister interface {
	Persist(domain.Collections)
}

type subscription struct {
	id int
	fn Listener
}

type Store struct {
	mu        sync.RWMutex
	state     State
	ids       *idGenerator
	persister Persister

	// notifyMu is taken before mu is released so that listeners see changes
	// in commit order.
	notifyMu sync.Mutex

	subMu   sync.Mutex
	nextSub int
	subs    []subscription

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Store)

// WithClock replaces the wall clock used for id generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.ids = newIDGenerator(now) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New returns an empty, not yet hydrated store.
func New(opts ...Option) *Store {
	s := &Store{
		state: State{
			Persons:  []domain.Person{},
			Kapaans:  []domain.Kapaan{},
			Receives: []domain.Receive{},
		},
		ids:    newIDGenerator(nil),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) Persons() []domain.Person {
	return s.Snapshot().Persons
}

func (s *Store) Kapaans() []domain.Kapaan {
	return s.Snapshot().Kapaans
}

func (s *Store) Receives() []domain.Receive {
	return s.Snapshot().Receives
}

// Hydrated reports whether the store has been loaded from durable storage.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Hydrated
}

// ExportSnapshot returns the collections to persist.
func (s *Store) ExportSnapshot() domain.Collections {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Collections()
}

// SetPersister registers p to receive every subsequent mutation. A nil p
// stops persistence.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// Subscribe registers fn for every state change. The returned func removes
// the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) AddPerson(name, phone string) domain.Person {
	var p domain.Person
	s.commit(ActionAddPerson, func(st *State) bool {
		p = domain.Person{ID: s.ids.next(), Name: name, Phone: phone}
		st.Persons = append(st.Persons, p)
		return true
	})
	return p
}

// AddKapaan appends a kapaan built from data and returns it.
func (s *Store) AddKapaan(data domain.NewKapaan) domain.Kapaan {
	var k domain.Kapaan
	s.commit(ActionAddKapaan, func(st *State) bool {
		k = domain.Kapaan{
			ID:       s.ids.next(),
			KapaanNo: data.KapaanNo,
			Date:     data.Date,
			Pcs:      data.Pcs,
			Weight:   data.Weight,
			PersonID: data.PersonID,
		}
		st.Kapaans = append(st.Kapaans, k)
		return true
	})
	return k
}

// UpdateKapaan merges patch into the kapaan with the given id. It reports
// false, changing nothing, when no such kapaan exists.
func (s *Store) UpdateKapaan(id string, patch domain.KapaanPatch) bool {
	return s.commit(ActionUpdateKapaan, func(st *State) bool {
		for i := range st.Kapaans {
			if st.Kapaans[i].ID == id {
				st.Kapaans[i] = patch.Apply(st.Kapaans[i])
				return true
			}
		}
		return false
	})
}

// RemoveKapaan deletes the kapaan and every receive recorded against it.
func (s *Store) RemoveKapaan(id string) bool {
	return s.commit(ActionRemoveKapaan, func(st *State) bool {
		kapaans := st.Kapaans[:0]
		found := false
		for _, k := range st.Kapaans {
			if k.ID == id {
				found = true
				continue
			}
			kapaans = append(kapaans, k)
		}
		if !found {
			return false
		}
		st.Kapaans = kapaans

		receives := st.Receives[:0]
		for _, r := range st.Receives {
			if r.KapaanID != id {
				receives = append(receives, r)
			}
		}
		st.Receives = receives
		return true
	})
}

// AddReceive appends a receive built from data and returns it. The kapaan
// reference is not checked.
func (s *Store) AddReceive(data domain.NewReceive) domain.Receive {
	var r domain.Receive
	s.commit(ActionAddReceive, func(st *State) bool {
		r = s.newReceive(data)
		st.Receives = append(st.Receives, r)
		return true
	})
	return r
}

// AddReceiveToKapaan is AddReceive guarded by a check, under the same lock,
// that data.KapaanID names an existing kapaan. It reports false and changes
// nothing when it does not.
func (s *Store) AddReceiveToKapaan(data domain.NewReceive) (domain.Receive, bool) {
	var r domain.Receive
	ok := s.commit(ActionAddReceive, func(st *State) bool {
		for _, k := range st.Kapaans {
			if k.ID == data.KapaanID {
				r = s.newReceive(data)
				st.Receives = append(st.Receives, r)
				return true
			}
		}
		return false
	})
	return r, ok
}

func (s *Store) newReceive(data domain.NewReceive) domain.Receive {
	return domain.Receive{
		ID:       s.ids.next(),
		KapaanID: data.KapaanID,
		Date:     data.Date,
		Shape:    data.Shape,
		Pcs:      data.Pcs,
		Weight:   data.Weight,
		Purity:   data.Purity,
		Color:    data.Color,
		Lab:      data.Lab,
	}
}

func (s *Store) RemoveReceive(id string) bool {
	return s.commit(ActionRemoveReceive, func(st *State) bool {
		for i, r := range st.Receives {
			if r.ID == id {
				st.Receives = append(st.Receives[:i:i], st.Receives[i+1:]...)
				return true
			}
		}
		return false
	})
}

// LoadFromSnapshot replaces the collections with c without persisting them.
// Nil collections load as empty.
func (s *Store) LoadFromSnapshot(c domain.Collections) {
	s.replace(ActionLoad, c)
}

// Reload replaces the collections with a copy written by another context. It
// does not persist.
func (s *Store) Reload(c domain.Collections) {
	s.replace(ActionSync, c)
}

// MarkHydrated sets the hydrated flag. It reports whether the flag changed;
// once set it is never cleared.
func (s *Store) MarkHydrated() bool {
	s.mu.Lock()
	if s.state.Hydrated {
		s.mu.Unlock()
		return false
	}
	next := s.state.clone()
	next.Hydrated = true
	s.state = next
	snap := next.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.notify(snap, ActionHydrate)
	return true
}

func (s *Store) replace(action Action, c domain.Collections) {
	c = c.Clone()

	s.mu.Lock()
	s.state = State{
		Persons:  c.Persons,
		Kapaans:  c.Kapaans,
		Receives: c.Receives,
		Hydrated: s.state.Hydrated,
	}
	snap := s.state.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.logger.Debug("collections replaced", "action", action,
		"persons", len(snap.Persons), "kapaans", len(snap.Kapaans), "receives", len(snap.Receives))
	s.notify(snap, action)
}

// commit applies mutate to a copy of the state. When mutate reports a change
// the copy becomes the current state, is persisted and is announced.
func (s *Store) commit(action Action, mutate func(*State) bool) bool {
	s.mu.Lock()
	next := s.state.clone()
	if !mutate(&next) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	if s.persister != nil {
		s.persister.Persist(next.Collections())
	}
	snap := next.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.metrics.ObserveAction(string(action))
	s.notify(snap, action)
	return true
}

// notify must be called with notifyMu held; it releases it.
func (s *Store) notify(snap State, action Action) {
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap, action)
	}
}
