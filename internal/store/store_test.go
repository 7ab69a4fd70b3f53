package store

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/metrics"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

type recordingPersister struct {
	mu     sync.Mutex
	writes []domain.Collections
}

func (p *recordingPersister) Persist(c domain.Collections) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, c)
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func seedKapaan(s *Store, personID string) domain.Kapaan {
	return s.AddKapaan(domain.NewKapaan{
		KapaanNo: "KPN-006",
		Date:     "2024-05-01",
		Pcs:      10,
		Weight:   5.25,
		PersonID: personID,
	})
}

func seedReceive(s *Store, kapaanID string, weight float64) domain.Receive {
	return s.AddReceive(domain.NewReceive{
		KapaanID: kapaanID,
		Date:     "2024-05-02",
		Shape:    "Round",
		Pcs:      4,
		Weight:   weight,
		Purity:   "VS1",
		Color:    "G",
		Lab:      domain.LabGIA,
	})
}

func TestNewStoreIsEmptyAndNotHydrated(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	assert.NotNil(t, snap.Persons)
	assert.NotNil(t, snap.Kapaans)
	assert.NotNil(t, snap.Receives)
	assert.Empty(t, snap.Persons)
	assert.False(t, snap.Hydrated)
}

func TestAddPerson(t *testing.T) {
	s := New()
	p := s.AddPerson("Asha", "9990001111")

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Asha", p.Name)
	assert.Equal(t, "9990001111", p.Phone)
	assert.Equal(t, []domain.Person{p}, s.Persons())
}

func TestAddKapaanAndReceive(t *testing.T) {
	s := New()
	p := s.AddPerson("Asha", "")
	k := seedKapaan(s, p.ID)
	r := seedReceive(s, k.ID, 2.1)

	require.Len(t, s.Kapaans(), 1)
	assert.Equal(t, k, s.Kapaans()[0])
	assert.Equal(t, p.ID, k.PersonID)
	require.Len(t, s.Receives(), 1)
	assert.Equal(t, k.ID, r.KapaanID)
	assert.Equal(t, 2.1, s.Receives()[0].Weight)
}

func TestIDsAreUniqueWhenClockStalls(t *testing.T) {
	s := New(WithClock(fixedClock(1714521600000)))
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		var id string
		switch i % 3 {
		case 0:
			id = s.AddPerson("p", "").ID
		case 1:
			id = seedKapaan(s, "x").ID
		default:
			id = seedReceive(s, "x", 1).ID
		}
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}

func TestIDTimestampNeverGoesBackwards(t *testing.T) {
	times := []int64{2000, 1000, 3000}
	i := 0
	g := newIDGenerator(func() time.Time {
		ms := times[i]
		i++
		return time.UnixMilli(ms)
	})
	g.counter = new(atomic.Uint64)
	assert.Equal(t, "2000-1", g.next())
	assert.Equal(t, "2000-2", g.next())
	assert.Equal(t, "3000-3", g.next())
}

func TestIDsAreUniqueAcrossStores(t *testing.T) {
	clock := fixedClock(1714521600000)
	a := New(WithClock(clock))
	b := New(WithClock(clock))

	ka := seedKapaan(a, "p1")
	kb := seedKapaan(b, "p1")
	pa := a.AddPerson("Asha", "")
	pb := b.AddPerson("Ravi", "")

	ids := map[string]bool{ka.ID: true, kb.ID: true, pa.ID: true, pb.ID: true}
	assert.Len(t, ids, 4)
}

func TestUpdateKapaanPreservesIdentity(t *testing.T) {
	s := New()
	k := seedKapaan(s, "p1")

	pcs := 12
	ok := s.UpdateKapaan(k.ID, domain.KapaanPatch{Pcs: &pcs})
	require.True(t, ok)

	got := s.Kapaans()[0]
	assert.Equal(t, k.ID, got.ID)
	assert.Equal(t, 12, got.Pcs)
	assert.Equal(t, 5.25, got.Weight)
	assert.Equal(t, "KPN-006", got.KapaanNo)
	assert.Equal(t, k.Date, got.Date)
	assert.Equal(t, k.PersonID, got.PersonID)
}

func TestUpdateUnknownKapaanIsNoop(t *testing.T) {
	p := &recordingPersister{}
	s := New()
	s.SetPersister(p)
	seedKapaan(s, "p1")
	before := s.Snapshot()

	notified := 0
	s.Subscribe(func(State, Action) { notified++ })

	pcs := 1
	assert.False(t, s.UpdateKapaan("missing", domain.KapaanPatch{Pcs: &pcs}))
	assert.False(t, s.RemoveKapaan("missing"))
	assert.False(t, s.RemoveReceive("missing"))

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, 0, notified)
	assert.Equal(t, 1, p.count())
}

func TestRemoveKapaanCascadesToReceives(t *testing.T) {
	s := New()
	k1 := seedKapaan(s, "p1")
	k2 := seedKapaan(s, "p1")
	seedReceive(s, k1.ID, 1)
	seedReceive(s, k1.ID, 2)
	other := seedReceive(s, k2.ID, 3)

	require.True(t, s.RemoveKapaan(k1.ID))

	assert.Equal(t, []domain.Kapaan{k2}, s.Kapaans())
	assert.Equal(t, []domain.Receive{other}, s.Receives())
}

func TestAddReceiveToKapaan(t *testing.T) {
	s := New()
	p := &recordingPersister{}
	s.SetPersister(p)
	k := seedKapaan(s, "p1")

	r, ok := s.AddReceiveToKapaan(domain.NewReceive{KapaanID: k.ID, Pcs: 2, Weight: 0.4})
	require.True(t, ok)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, []domain.Receive{r}, s.Receives())

	writes := p.count()
	_, ok = s.AddReceiveToKapaan(domain.NewReceive{KapaanID: "missing", Pcs: 1})
	assert.False(t, ok)
	assert.Len(t, s.Receives(), 1)
	assert.Equal(t, writes, p.count())
}

func TestAddReceiveToKapaanRacingRemoveLeavesNoOrphans(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		k := seedKapaan(s, "p1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.AddReceiveToKapaan(domain.NewReceive{KapaanID: k.ID, Pcs: 1})
			}
		}()
		go func() {
			defer wg.Done()
			s.RemoveKapaan(k.ID)
		}()
	}
	wg.Wait()

	assert.Empty(t, s.Kapaans())
	assert.Empty(t, s.Receives())
}

func TestRemoveReceive(t *testing.T) {
	s := New()
	k := seedKapaan(s, "p1")
	r1 := seedReceive(s, k.ID, 1)
	r2 := seedReceive(s, k.ID, 2)

	require.True(t, s.RemoveReceive(r1.ID))
	assert.Equal(t, []domain.Receive{r2}, s.Receives())
	assert.Len(t, s.Kapaans(), 1)
}

func TestSnapshotIsNotAliased(t *testing.T) {
	s := New()
	seedKapaan(s, "p1")

	snap := s.Snapshot()
	snap.Kapaans[0].Pcs = 999
	snap.Kapaans = append(snap.Kapaans, domain.Kapaan{ID: "rogue"})

	assert.Len(t, s.Kapaans(), 1)
	assert.Equal(t, 10, s.Kapaans()[0].Pcs)
}

func TestEarlierSnapshotSurvivesMutation(t *testing.T) {
	s := New()
	k := seedKapaan(s, "p1")
	before := s.Snapshot()

	s.RemoveKapaan(k.ID)

	assert.Len(t, before.Kapaans, 1)
	assert.Empty(t, s.Kapaans())
}

func TestMutationsPersistAndNotify(t *testing.T) {
	p := &recordingPersister{}
	s := New()
	s.SetPersister(p)

	var actions []Action
	unsubscribe := s.Subscribe(func(st State, a Action) {
		actions = append(actions, a)
	})

	person := s.AddPerson("Asha", "")
	k := seedKapaan(s, person.ID)
	r := seedReceive(s, k.ID, 1)
	s.RemoveReceive(r.ID)
	s.RemoveKapaan(k.ID)

	assert.Equal(t, []Action{
		ActionAddPerson, ActionAddKapaan, ActionAddReceive, ActionRemoveReceive, ActionRemoveKapaan,
	}, actions)
	require.Equal(t, 5, p.count())
	last := p.writes[4]
	assert.Len(t, last.Persons, 1)
	assert.Empty(t, last.Kapaans)
	assert.NotNil(t, last.Receives)

	unsubscribe()
	s.AddPerson("Ravi", "")
	assert.Len(t, actions, 5)
}

func TestListenerSeesCommittedState(t *testing.T) {
	s := New()
	var seen State
	s.Subscribe(func(st State, _ Action) { seen = st })

	k := seedKapaan(s, "p1")
	require.Len(t, seen.Kapaans, 1)
	assert.Equal(t, k, seen.Kapaans[0])
}

func TestLoadFromSnapshotDoesNotPersist(t *testing.T) {
	p := &recordingPersister{}
	s := New()
	s.SetPersister(p)

	var actions []Action
	s.Subscribe(func(_ State, a Action) { actions = append(actions, a) })

	s.LoadFromSnapshot(domain.Collections{
		Kapaans: []domain.Kapaan{{ID: "k1", KapaanNo: "KPN-1", Pcs: 1}},
	})
	s.Reload(domain.Collections{})

	assert.Equal(t, 0, p.count())
	assert.Equal(t, []Action{ActionLoad, ActionSync}, actions)
	snap := s.Snapshot()
	assert.NotNil(t, snap.Persons)
	assert.NotNil(t, snap.Kapaans)
	assert.Empty(t, snap.Kapaans)
}

func TestMarkHydratedOnlyOnce(t *testing.T) {
	s := New()
	var transitions int
	s.Subscribe(func(_ State, a Action) {
		if a == ActionHydrate {
			transitions++
		}
	})

	assert.False(t, s.Hydrated())
	assert.True(t, s.MarkHydrated())
	assert.False(t, s.MarkHydrated())
	assert.True(t, s.Hydrated())

	s.LoadFromSnapshot(domain.Collections{})
	s.AddPerson("Asha", "")
	assert.True(t, s.Hydrated())
	assert.Equal(t, 1, transitions)
}

func TestConcurrentMutations(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				k := seedKapaan(s, "p1")
				seedReceive(s, k.ID, 1)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Kapaans(), 200)
	assert.Len(t, s.Receives(), 200)
}

func TestActionsAreCounted(t *testing.T) {
	m := metrics.New()
	s := New(WithMetrics(m))
	s.AddPerson("Asha", "")
	s.AddPerson("Ravi", "")
	s.RemoveKapaan("missing")

	expected := `
# HELP diamondinv_store_actions_total Store mutations applied, by action.
# TYPE diamondinv_store_actions_total counter
diamondinv_store_actions_total{action="addPerson"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "diamondinv_store_actions_total"))
}
