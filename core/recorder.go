package core

import "github.com/signalsfoundry/mlo-primary/model"

// recordPrimaryLocked commits selected as the peer's primary PSOC and
// settles the primary flag of every entry. The association entry is
// handled first so that, when it sits on the selected PSOC, it is the one
// that ends up primary.
func (p *MLPeer) recordPrimaryLocked(selected model.PSOCID) {
	skip := -1
	if !p.PrimaryPSOC().Valid() {
		if assoc, ok := p.assocIndexLocked(); ok {
			p.entries[assoc].IsPrimary = p.entries[assoc].PSOC == selected
			skip = assoc
		}
		p.primary.Store(int32(selected))
	}
	for i := range p.entries {
		if !p.present[i] || i == skip {
			continue
		}
		p.settleLocked(i)
	}
}

// settleLocked decides the primary flag of the entry in slot idx against
// the recorded primary PSOC. An entry off the primary PSOC is never
// primary; on the primary PSOC it is primary unless another entry there
// already is.
func (p *MLPeer) settleLocked(idx int) {
	e := &p.entries[idx]
	primary := p.PrimaryPSOC()
	if e.PSOC != primary {
		e.IsPrimary = false
		return
	}
	for i := range p.entries {
		if i == idx || !p.present[i] {
			continue
		}
		if other := p.entries[i]; other.PSOC == primary && other.IsPrimary {
			e.IsPrimary = false
			return
		}
	}
	e.IsPrimary = true
}

// migrateToLocked makes the entry in slot idx the sole primary and records
// its PSOC. It returns false when the entry already was primary.
func (p *MLPeer) migrateToLocked(idx int) bool {
	target := p.entries[idx]
	if target.IsPrimary && p.PrimaryPSOC() == target.PSOC {
		p.migration.Store(int32(model.InvalidPSOC))
		return false
	}
	p.primary.Store(int32(target.PSOC))
	for i := range p.entries {
		if p.present[i] {
			p.entries[i].IsPrimary = i == idx
		}
	}
	p.migration.Store(int32(model.InvalidPSOC))
	return true
}

// releaseLocked drops all primary bookkeeping.
func (p *MLPeer) releaseLocked() {
	for i := range p.entries {
		p.entries[i].IsPrimary = false
	}
	p.primary.Store(int32(model.InvalidPSOC))
	p.migration.Store(int32(model.InvalidPSOC))
}
