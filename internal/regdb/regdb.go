// Package regdb holds the regulatory transmit power limits used to compare
// RSSI measured on one band with what a peer would see on another.
package regdb

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/mlo-primary/model"
)

// DefaultMaxDBm applies to frequencies no rule covers.
const DefaultMaxDBm = 20

var (
	ErrBadRange    = errors.New("regdb: invalid frequency range")
	ErrOverlap     = errors.New("regdb: overlapping frequency ranges")
	ErrInvalidPSOC = errors.New("regdb: invalid psoc")
)

// Rule caps transmit power over an inclusive centre-frequency range.
type Rule struct {
	StartMHz uint32
	EndMHz   uint32
	MaxDBm   int
}

func (r Rule) covers(freqMHz uint32) bool {
	return freqMHz >= r.StartMHz && freqMHz <= r.EndMHz
}

// DefaultRules is a permissive table spanning the 2.4, 5 and 6 GHz bands.
func DefaultRules() []Rule {
	return []Rule{
		{StartMHz: 2400, EndMHz: 2495, MaxDBm: 30},
		{StartMHz: 5150, EndMHz: 5250, MaxDBm: 23},
		{StartMHz: 5250, EndMHz: 5350, MaxDBm: 24},
		{StartMHz: 5470, EndMHz: 5730, MaxDBm: 24},
		{StartMHz: 5735, EndMHz: 5895, MaxDBm: 30},
		{StartMHz: 5925, EndMHz: 7125, MaxDBm: 24},
	}
}

// Table answers regulatory power queries. It is immutable once built and
// safe for concurrent use.
type Table struct {
	defaultDBm int
	rules      []Rule
	overrides  map[model.PSOCID][]Rule
}

// Option customises a Table.
type Option func(*Table) error

// WithOverride installs rules consulted before the global ones for radios
// on psoc.
func WithOverride(psoc model.PSOCID, rules ...Rule) Option {
	return func(t *Table) error {
		if !psoc.Valid() {
			return fmt.Errorf("%w: override for psoc %d", ErrInvalidPSOC, psoc)
		}
		sorted, err := normalise(rules)
		if err != nil {
			return fmt.Errorf("psoc %d: %w", psoc, err)
		}
		t.overrides[psoc] = sorted
		return nil
	}
}

// New builds a table. Rules may be given in any order but must not overlap,
// except that one range may end on the frequency the next one starts at;
// the lower range wins there.
func New(defaultDBm int, rules []Rule, opts ...Option) (*Table, error) {
	sorted, err := normalise(rules)
	if err != nil {
		return nil, err
	}
	t := &Table{
		defaultDBm: defaultDBm,
		rules:      sorted,
		overrides:  make(map[model.PSOCID][]Rule),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Default returns the table built from DefaultRules.
func Default() *Table {
	t, err := New(DefaultMaxDBm, DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

func normalise(rules []Rule) ([]Rule, error) {
	sorted := append([]Rule(nil), rules...)
	for _, r := range sorted {
		if r.StartMHz == 0 || r.EndMHz < r.StartMHz {
			return nil, fmt.Errorf("%w: %d-%d MHz", ErrBadRange, r.StartMHz, r.EndMHz)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMHz < sorted[j].StartMHz })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.StartMHz < prev.EndMHz {
			return nil, fmt.Errorf("%w: %d-%d and %d-%d MHz", ErrOverlap,
				prev.StartMHz, prev.EndMHz, cur.StartMHz, cur.EndMHz)
		}
	}
	return sorted, nil
}

// MaxPower returns the power cap in dBm for a radio on psoc at freqMHz.
func (t *Table) MaxPower(psoc model.PSOCID, freqMHz uint32) int {
	if t == nil {
		return DefaultMaxDBm
	}
	if dbm, ok := lookup(t.overrides[psoc], freqMHz); ok {
		return dbm
	}
	if dbm, ok := lookup(t.rules, freqMHz); ok {
		return dbm
	}
	return t.defaultDBm
}

// RegulatoryPower implements core.PowerLookup. All pdevs of a PSOC share
// its regulatory domain.
func (t *Table) RegulatoryPower(psoc model.PSOCID, _ uint8, freqMHz uint32) int {
	return t.MaxPower(psoc, freqMHz)
}

func lookup(rules []Rule, freqMHz uint32) (int, bool) {
	i := sort.Search(len(rules), func(i int) bool { return rules[i].EndMHz >= freqMHz })
	if i < len(rules) && rules[i].covers(freqMHz) {
		return rules[i].MaxDBm, true
	}
	return 0, false
}
