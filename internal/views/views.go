// Package views derives lookups, filters and aggregates from a store
// snapshot. Everything here is recomputed on every call.
package views

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/store"
)

// UnknownPerson is shown for a person id with no matching person.
const UnknownPerson = "Unknown"

// PersonNames maps person id to name.
func PersonNames(persons []domain.Person) map[string]string {
	names := make(map[string]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}
	return names
}

// PersonName resolves id against names, falling back to UnknownPerson.
func PersonName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return UnknownPerson
}

// ReceiveCounts maps kapaan id to the number of receives recorded against it.
// Kapaans without receives are absent from the map.
func ReceiveCounts(receives []domain.Receive) map[string]int {
	counts := make(map[string]int)
	for _, r := range receives {
		counts[r.KapaanID]++
	}
	return counts
}

// ReceivesFor returns the receives of one kapaan in store order.
func ReceivesFor(receives []domain.Receive, kapaanID string) []domain.Receive {
	out := []domain.Receive{}
	for _, r := range receives {
		if r.KapaanID == kapaanID {
			out = append(out, r)
		}
	}
	return out
}

type ReceiveTotals struct {
	Count  int     `json:"count"`
	Pcs    int     `json:"pcs"`
	Weight float64 `json:"weight"`
}

// Totals sums the receives of one kapaan.
func Totals(receives []domain.Receive, kapaanID string) ReceiveTotals {
	var t ReceiveTotals
	for _, r := range receives {
		if r.KapaanID != kapaanID {
			continue
		}
		t.Count++
		t.Pcs += r.Pcs
		t.Weight += r.Weight
	}
	return t
}

// KapaanOption is one entry of the kapaan number picker.
type KapaanOption struct {
	KapaanNo string `json:"kapaanNo"`
	ID       string `json:"id"`
}

// KapaanOptions lists kapaan numbers once each; the first kapaan carrying a
// number wins.
func KapaanOptions(kapaans []domain.Kapaan) []KapaanOption {
	seen := make(map[string]bool, len(kapaans))
	out := []KapaanOption{}
	for _, k := range kapaans {
		if seen[k.KapaanNo] {
			continue
		}
		seen[k.KapaanNo] = true
		out = append(out, KapaanOption{KapaanNo: k.KapaanNo, ID: k.ID})
	}
	return out
}

// Filter selects kapaans. Zero-valued fields do not filter. Date bounds are
// inclusive and compared as ISO "YYYY-MM-DD" strings; weight bounds are
// inclusive.
type Filter struct {
	KapaanNos []string
	PersonID  string
	DateFrom  string
	DateTo    string
	MinWeight *float64
	MaxWeight *float64
	// Query matches kapaan numbers by case-insensitive substring.
	Query string
}

// Match reports whether k passes every predicate of f.
func (f Filter) Match(k domain.Kapaan) bool {
	if len(f.KapaanNos) > 0 && !contains(f.KapaanNos, k.KapaanNo) {
		return false
	}
	if f.PersonID != "" && k.PersonID != f.PersonID {
		return false
	}
	if f.DateFrom != "" && k.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && k.Date > f.DateTo {
		return false
	}
	if f.MinWeight != nil && k.Weight < *f.MinWeight {
		return false
	}
	if f.MaxWeight != nil && k.Weight > *f.MaxWeight {
		return false
	}
	if f.Query != "" && !containsFold(k.KapaanNo, f.Query) {
		return false
	}
	return true
}

// Apply returns the kapaans matching f in their original order.
func (f Filter) Apply(kapaans []domain.Kapaan) []domain.Kapaan {
	out := []domain.Kapaan{}
	for _, k := range kapaans {
		if f.Match(k) {
			out = append(out, k)
		}
	}
	return out
}

// KapaanRow is one line of the kapaan table.
type KapaanRow struct {
	domain.Kapaan
	PersonName   string `json:"personName"`
	ReceiveCount int    `json:"receiveCount"`
}

// Rows builds the filtered kapaan table for a snapshot.
func Rows(snap store.State, f Filter) []KapaanRow {
	names := PersonNames(snap.Persons)
	counts := ReceiveCounts(snap.Receives)

	rows := []KapaanRow{}
	for _, k := range f.Apply(snap.Kapaans) {
		rows = append(rows, KapaanRow{
			Kapaan:       k,
			PersonName:   PersonName(names, k.PersonID),
			ReceiveCount: counts[k.ID],
		})
	}
	return rows
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(substr))
}
