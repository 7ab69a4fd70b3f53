package domain

// Lab is the grading laboratory that certified a receive lot.
type Lab string

const (
	LabIGI Lab = "IGI"
	LabGIA Lab = "GIA"
)

// Person is a counterparty (supplier or handler) a kapaan is assigned to.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Kapaan is an intake batch of rough material. PersonID is a soft reference:
// it may point at a person that no longer exists.
type Kapaan struct {
	ID       string  `json:"id"`
	KapaanNo string  `json:"kapaanNo"`
	Date     string  `json:"date"`
	Pcs      int     `json:"pcs"`
	Weight   float64 `json:"weight"`
	PersonID string  `json:"personId"`
}

// Receive is a graded output lot recorded against a kapaan.
type Receive struct {
	ID       string  `json:"id"`
	KapaanID string  `json:"kapaanId"`
	Date     string  `json:"date"`
	Shape    string  `json:"shape"`
	Pcs      int     `json:"pcs"`
	Weight   float64 `json:"weight"`
	Purity   string  `json:"purity"`
	Color    string  `json:"color"`
	Lab      Lab     `json:"lab,omitempty"`
}

// NewKapaan carries the caller-supplied fields of a kapaan; the id is assigned
// by the store.
type NewKapaan struct {
	KapaanNo string  `json:"kapaanNo"`
	Date     string  `json:"date"`
	Pcs      int     `json:"pcs"`
	Weight   float64 `json:"weight"`
	PersonID string  `json:"personId"`
}

// NewReceive carries the caller-supplied fields of a receive.
type NewReceive struct {
	KapaanID string  `json:"kapaanId"`
	Date     string  `json:"date"`
	Shape    string  `json:"shape"`
	Pcs      int     `json:"pcs"`
	Weight   float64 `json:"weight"`
	Purity   string  `json:"purity"`
	Color    string  `json:"color"`
	Lab      Lab     `json:"lab,omitempty"`
}

// KapaanPatch is a partial kapaan update. Nil fields are left untouched.
type KapaanPatch struct {
	KapaanNo *string  `json:"kapaanNo,omitempty"`
	Date     *string  `json:"date,omitempty"`
	Pcs      *int     `json:"pcs,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	PersonID *string  `json:"personId,omitempty"`
}

// Apply returns k with every non-nil patch field copied over. The id is never
// touched.
func (p KapaanPatch) Apply(k Kapaan) Kapaan {
	if p.KapaanNo != nil {
		k.KapaanNo = *p.KapaanNo
	}
	if p.Date != nil {
		k.Date = *p.Date
	}
	if p.Pcs != nil {
		k.Pcs = *p.Pcs
	}
	if p.Weight != nil {
		k.Weight = *p.Weight
	}
	if p.PersonID != nil {
		k.PersonID = *p.PersonID
	}
	return k
}

// Empty reports whether the patch changes nothing.
func (p KapaanPatch) Empty() bool {
	return p.KapaanNo == nil && p.Date == nil && p.Pcs == nil && p.Weight == nil && p.PersonID == nil
}

// Collections is the persisted part of the store state.
type Collections struct {
	Kapaans  []Kapaan  `json:"kapaans"`
	Persons  []Person  `json:"persons"`
	Receives []Receive `json:"receives"`
}

// Clone returns a deep copy with non-nil slices.
func (c Collections) Clone() Collections {
	out := Collections{
		Kapaans:  make([]Kapaan, len(c.Kapaans)),
		Persons:  make([]Person, len(c.Persons)),
		Receives: make([]Receive, len(c.Receives)),
	}
	copy(out.Kapaans, c.Kapaans)
	copy(out.Persons, c.Persons)
	copy(out.Receives, c.Receives)
	return out
}

// Grading values offered by the entry forms. The store does not enforce them;
// shape is free text.
var (
	Purities = []string{"IF", "VVS1", "VVS2", "VS1", "VS2", "SI1", "SI2", "I1", "I2"}
	Colors   = []string{"D", "E", "F", "G", "H", "I", "J", "K", "L", "M"}
	Labs     = []Lab{LabIGI, LabGIA}
)
