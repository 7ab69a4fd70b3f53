package views

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/store"
)

func ptr(f float64) *float64 { return &f }

func sampleSnapshot() store.State {
	return store.State{
		Persons: []domain.Person{
			{ID: "p1", Name: "Asha"},
			{ID: "p2", Name: "Ravi"},
		},
		Kapaans: []domain.Kapaan{
			{ID: "k1", KapaanNo: "KPN-006", Date: "2024-05-01", Pcs: 10, Weight: 5.25, PersonID: "p1"},
			{ID: "k2", KapaanNo: "kpn-007", Date: "2024-05-10", Pcs: 3, Weight: 1.5, PersonID: "p2"},
			{ID: "k3", KapaanNo: "KPN-006", Date: "2024-06-01", Pcs: 1, Weight: 9, PersonID: "gone"},
		},
		Receives: []domain.Receive{
			{ID: "r1", KapaanID: "k1", Pcs: 4, Weight: 2.1},
			{ID: "r2", KapaanID: "k1", Pcs: 2, Weight: 0.4},
			{ID: "r3", KapaanID: "k2", Pcs: 1, Weight: 0.3},
		},
		Hydrated: true,
	}
}

func TestPersonNameFallsBackToUnknown(t *testing.T) {
	names := PersonNames(sampleSnapshot().Persons)
	assert.Equal(t, "Asha", PersonName(names, "p1"))
	assert.Equal(t, UnknownPerson, PersonName(names, "gone"))
	assert.Equal(t, UnknownPerson, PersonName(names, ""))
}

func TestReceiveCounts(t *testing.T) {
	counts := ReceiveCounts(sampleSnapshot().Receives)
	assert.Equal(t, map[string]int{"k1": 2, "k2": 1}, counts)
	assert.Equal(t, 0, counts["k3"])
}

func TestReceiveCountsMatchesDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var kapaans []string
		nk := rng.Intn(6) + 1
		for i := 0; i < nk; i++ {
			kapaans = append(kapaans, fmt.Sprintf("k%d", i))
		}
		var receives []domain.Receive
		nr := rng.Intn(30)
		for i := 0; i < nr; i++ {
			receives = append(receives, domain.Receive{
				ID:       fmt.Sprintf("r%d", i),
				KapaanID: kapaans[rng.Intn(len(kapaans))],
			})
		}

		counts := ReceiveCounts(receives)
		for _, k := range kapaans {
			want := 0
			for _, r := range receives {
				if r.KapaanID == k {
					want++
				}
			}
			assert.Equal(t, want, counts[k], "round %d kapaan %s", round, k)
		}
	}
}

func TestTotals(t *testing.T) {
	tot := Totals(sampleSnapshot().Receives, "k1")
	assert.Equal(t, 2, tot.Count)
	assert.Equal(t, 6, tot.Pcs)
	assert.InDelta(t, 2.5, tot.Weight, 1e-9)

	assert.Equal(t, ReceiveTotals{}, Totals(sampleSnapshot().Receives, "k3"))
}

func TestReceivesFor(t *testing.T) {
	got := ReceivesFor(sampleSnapshot().Receives, "k1")
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
	assert.NotNil(t, ReceivesFor(nil, "k1"))
}

func TestKapaanOptionsFirstWins(t *testing.T) {
	opts := KapaanOptions(sampleSnapshot().Kapaans)
	assert.Equal(t, []KapaanOption{
		{KapaanNo: "KPN-006", ID: "k1"},
		{KapaanNo: "kpn-007", ID: "k2"},
	}, opts)
}

func TestFilter(t *testing.T) {
	kapaans := sampleSnapshot().Kapaans
	ids := func(ks []domain.Kapaan) []string {
		out := []string{}
		for _, k := range ks {
			out = append(out, k.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"k1", "k2", "k3"}},
		{"kapaan numbers", Filter{KapaanNos: []string{"KPN-006"}}, []string{"k1", "k3"}},
		{"several kapaan numbers", Filter{KapaanNos: []string{"KPN-006", "kpn-007"}}, []string{"k1", "k2", "k3"}},
		{"person", Filter{PersonID: "p2"}, []string{"k2"}},
		{"date from inclusive", Filter{DateFrom: "2024-05-10"}, []string{"k2", "k3"}},
		{"date to inclusive", Filter{DateTo: "2024-05-10"}, []string{"k1", "k2"}},
		{"date range", Filter{DateFrom: "2024-05-02", DateTo: "2024-05-31"}, []string{"k2"}},
		{"min weight inclusive", Filter{MinWeight: ptr(5.25)}, []string{"k1", "k3"}},
		{"max weight inclusive", Filter{MaxWeight: ptr(5.25)}, []string{"k1", "k2"}},
		{"query is case insensitive", Filter{Query: "KPN-007"}, []string{"k2"}},
		{"query substring", Filter{Query: "kpn"}, []string{"k1", "k2", "k3"}},
		{"combined", Filter{KapaanNos: []string{"KPN-006"}, PersonID: "p1"}, []string{"k1"}},
		{"nothing matches", Filter{Query: "zzz"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.filter.Apply(kapaans)))
		})
	}
}

func TestQueryFoldsUnicode(t *testing.T) {
	k := domain.Kapaan{KapaanNo: "ÄRBE-Ω1"}
	assert.True(t, Filter{Query: "ärbe-ω"}.Match(k))
	assert.False(t, Filter{Query: "arbe"}.Match(k))
}

func TestRows(t *testing.T) {
	rows := Rows(sampleSnapshot(), Filter{})
	require.Len(t, rows, 3)

	assert.Equal(t, "k1", rows[0].ID)
	assert.Equal(t, "Asha", rows[0].PersonName)
	assert.Equal(t, 2, rows[0].ReceiveCount)

	assert.Equal(t, "Ravi", rows[1].PersonName)
	assert.Equal(t, 1, rows[1].ReceiveCount)

	assert.Equal(t, UnknownPerson, rows[2].PersonName)
	assert.Equal(t, 0, rows[2].ReceiveCount)
}

func TestRowsOnEmptySnapshot(t *testing.T) {
	rows := Rows(store.New().Snapshot(), Filter{PersonID: "p1"})
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
