package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/diamondinv/internal/domain"
	"github.com/vbonduro/diamondinv/internal/store"
	"github.com/vbonduro/diamondinv/internal/views"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field")
	ErrNotFound     = errors.New("not found")
)

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidField, field, reason)
}

// inventoryStore is the subset of store.Store that InventoryService requires.
type inventoryStore interface {
	Snapshot() store.State
	AddPerson(name, phone string) domain.Person
	AddKapaan(data domain.NewKapaan) domain.Kapaan
	UpdateKapaan(id string, patch domain.KapaanPatch) bool
	RemoveKapaan(id string) bool
	AddReceiveToKapaan(data domain.NewReceive) (domain.Receive, bool)
	RemoveReceive(id string) bool
}

// InventoryService checks required fields before handing input to the store
// and assembles the read models used by the HTTP API and the CLI.
type InventoryService struct {
	store  inventoryStore
	logger *slog.Logger
}

func NewInventoryService(st inventoryStore, logger *slog.Logger) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryService{store: st, logger: logger.With("component", "service")}
}

func (s *InventoryService) State() store.State {
	return s.store.Snapshot()
}

// AddPerson trims name and phone; an empty phone is dropped.
func (s *InventoryService) AddPerson(name, phone string) (domain.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Person{}, missing("name")
	}
	p := s.store.AddPerson(name, strings.TrimSpace(phone))
	s.logger.Info("person added", "person_id", p.ID)
	return p, nil
}

func (s *InventoryService) AddKapaan(in domain.NewKapaan) (domain.Kapaan, error) {
	if err := checkKapaan(in); err != nil {
		return domain.Kapaan{}, err
	}
	k := s.store.AddKapaan(in)
	s.logger.Info("kapaan added", "kapaan_id", k.ID, "kapaan_no", k.KapaanNo)
	return k, nil
}

func checkKapaan(in domain.NewKapaan) error {
	switch {
	case blank(in.KapaanNo):
		return missing("kapaanNo")
	case blank(in.Date):
		return missing("date")
	case in.Pcs == 0:
		return missing("pcs")
	case in.Pcs < 0:
		return invalid("pcs", "must be at least 1")
	case in.Weight < 0:
		return invalid("weight", "must not be negative")
	case blank(in.PersonID):
		return missing("personId")
	}
	return nil
}

// UpdateKapaan applies patch. Fields present in the patch must not be blank.
func (s *InventoryService) UpdateKapaan(id string, patch domain.KapaanPatch) error {
	if patch.KapaanNo != nil && blank(*patch.KapaanNo) {
		return missing("kapaanNo")
	}
	if patch.Date != nil && blank(*patch.Date) {
		return missing("date")
	}
	if patch.PersonID != nil && blank(*patch.PersonID) {
		return missing("personId")
	}
	if patch.Pcs != nil && *patch.Pcs < 1 {
		return invalid("pcs", "must be at least 1")
	}
	if patch.Weight != nil && *patch.Weight < 0 {
		return invalid("weight", "must not be negative")
	}
	if patch.Empty() {
		if !s.kapaanExists(id) {
			return fmt.Errorf("kapaan %s: %w", id, ErrNotFound)
		}
		return nil
	}
	if !s.store.UpdateKapaan(id, patch) {
		return fmt.Errorf("kapaan %s: %w", id, ErrNotFound)
	}
	s.logger.Info("kapaan updated", "kapaan_id", id)
	return nil
}

// RemoveKapaan deletes the kapaan and its receives. It reports whether the
// kapaan existed.
func (s *InventoryService) RemoveKapaan(id string) bool {
	removed := s.store.RemoveKapaan(id)
	if removed {
		s.logger.Info("kapaan removed", "kapaan_id", id)
	}
	return removed
}

// AddReceive records a receive against an existing kapaan. Every grading
// field is required.
func (s *InventoryService) AddReceive(in domain.NewReceive) (domain.Receive, error) {
	switch {
	case blank(in.KapaanID):
		return domain.Receive{}, missing("kapaanId")
	case blank(in.Date):
		return domain.Receive{}, missing("date")
	case blank(in.Shape):
		return domain.Receive{}, missing("shape")
	case in.Pcs == 0:
		return domain.Receive{}, missing("pcs")
	case in.Pcs < 0:
		return domain.Receive{}, invalid("pcs", "must be at least 1")
	case in.Weight < 0:
		return domain.Receive{}, invalid("weight", "must not be negative")
	case blank(in.Purity):
		return domain.Receive{}, missing("purity")
	case blank(in.Color):
		return domain.Receive{}, missing("color")
	case in.Lab == "":
		return domain.Receive{}, missing("lab")
	case in.Lab != domain.LabIGI && in.Lab != domain.LabGIA:
		return domain.Receive{}, invalid("lab", "must be IGI or GIA")
	}
	r, ok := s.store.AddReceiveToKapaan(in)
	if !ok {
		return domain.Receive{}, fmt.Errorf("kapaan %s: %w", in.KapaanID, ErrNotFound)
	}
	s.logger.Info("receive added", "receive_id", r.ID, "kapaan_id", r.KapaanID)
	return r, nil
}

func (s *InventoryService) RemoveReceive(id string) bool {
	removed := s.store.RemoveReceive(id)
	if removed {
		s.logger.Info("receive removed", "receive_id", id)
	}
	return removed
}

func (s *InventoryService) ListKapaans(f views.Filter) []views.KapaanRow {
	return views.Rows(s.store.Snapshot(), f)
}

// KapaanDetail is a kapaan with its receive sheet.
type KapaanDetail struct {
	Kapaan     domain.Kapaan       `json:"kapaan"`
	PersonName string              `json:"personName"`
	Receives   []domain.Receive    `json:"receives"`
	Totals     views.ReceiveTotals `json:"totals"`
}

func (s *InventoryService) KapaanDetail(id string) (*KapaanDetail, error) {
	snap := s.store.Snapshot()
	for _, k := range snap.Kapaans {
		if k.ID != id {
			continue
		}
		return &KapaanDetail{
			Kapaan:     k,
			PersonName: views.PersonName(views.PersonNames(snap.Persons), k.PersonID),
			Receives:   views.ReceivesFor(snap.Receives, id),
			Totals:     views.Totals(snap.Receives, id),
		}, nil
	}
	return nil, fmt.Errorf("kapaan %s: %w", id, ErrNotFound)
}

// Options are the choices offered by the entry forms and filters.
type Options struct {
	Purities []string             `json:"purities"`
	Colors   []string             `json:"colors"`
	Labs     []domain.Lab         `json:"labs"`
	Persons  []domain.Person      `json:"persons"`
	Kapaans  []views.KapaanOption `json:"kapaans"`
}

func (s *InventoryService) Options() Options {
	snap := s.store.Snapshot()
	return Options{
		Purities: append([]string(nil), domain.Purities...),
		Colors:   append([]string(nil), domain.Colors...),
		Labs:     append([]domain.Lab(nil), domain.Labs...),
		Persons:  snap.Persons,
		Kapaans:  views.KapaanOptions(snap.Kapaans),
	}
}

func (s *InventoryService) kapaanExists(id string) bool {
	for _, k := range s.store.Snapshot().Kapaans {
		if k.ID == id {
			return true
		}
	}
	return false
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}
