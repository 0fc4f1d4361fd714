package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/mlo-primary/model"
)

// MLPeer is the multi-link peer context the engine assigns a primary PSOC
// to.
//
// Link peer entries live in a fixed-capacity table indexed by link ID. All
// writes to the table and to the primary bookkeeping are serialised by an
// internal mutex. The primary PSOC, in-flight migration target and average
// RSSI are additionally held in atomics so that load scans over other peers
// never need to take this peer's lock.
type MLPeer struct {
	MLDAddr string
	// Role is the type of the remote end. PeerTypeAP means the local device
	// is a client station.
	Role model.PeerType
	// MaxLinks caps how many link peers may be attached.
	MaxLinks int
	// AssocRSSI is the RSSI measured on the association link.
	AssocRSSI int

	mu      sync.Mutex
	entries [MaxLinks]LinkPeerEntry
	present [MaxLinks]bool

	primary   atomic.Int32
	migration atomic.Int32
	avgRSSI   atomic.Int32
}

// NewMLPeer creates an unassigned multi-link peer context.
func NewMLPeer(mld string, role model.PeerType, maxLinks int) *MLPeer {
	if maxLinks <= 0 || maxLinks > MaxLinks {
		maxLinks = MaxLinks
	}
	p := &MLPeer{
		MLDAddr:  mld,
		Role:     role,
		MaxLinks: maxLinks,
	}
	p.primary.Store(int32(model.InvalidPSOC))
	p.migration.Store(int32(model.InvalidPSOC))
	return p
}

// PrimaryPSOC returns the recorded primary PSOC, or model.InvalidPSOC.
func (p *MLPeer) PrimaryPSOC() model.PSOCID {
	return model.PSOCID(p.primary.Load())
}

// MigrationTarget returns the PSOC an in-flight migration is moving the
// primary to, or model.InvalidPSOC.
func (p *MLPeer) MigrationTarget() model.PSOCID {
	return model.PSOCID(p.migration.Load())
}

// AvgRSSI returns the peer's average RSSI across all of its links as
// derived during the last allocation.
func (p *MLPeer) AvgRSSI() int {
	return int(p.avgRSSI.Load())
}

// AttachLinkPeer adds a link peer entry. When a primary PSOC has already
// been recorded, the new entry's primary flag is settled immediately.
func (p *MLPeer) AttachLinkPeer(e LinkPeerEntry) error {
	if e.PeerMAC == "" || int(e.LinkID) >= MaxLinks {
		return fmt.Errorf("%w: mac=%q link=%d", ErrLinkPeerBadInput, e.PeerMAC, e.LinkID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := int(e.LinkID)
	if p.present[idx] {
		return fmt.Errorf("%w: link %d", ErrLinkPeerExists, e.LinkID)
	}
	if p.countLocked() >= p.MaxLinks {
		return fmt.Errorf("%w: max %d", ErrLinkPeerTableFull, p.MaxLinks)
	}
	if e.IsAssoc {
		if _, ok := p.assocIndexLocked(); ok {
			return fmt.Errorf("%w: association link already attached", ErrLinkPeerExists)
		}
	}

	e.IsPrimary = false
	p.entries[idx] = e
	p.present[idx] = true
	if p.PrimaryPSOC().Valid() {
		p.settleLocked(idx)
	}
	return nil
}

// DetachLinkPeer removes the entry on linkID. If it held the primary flag,
// another entry on the same PSOC inherits it; otherwise no entry is primary
// until the caller migrates.
func (p *MLPeer) DetachLinkPeer(linkID uint8) (LinkPeerEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := int(linkID)
	if idx >= MaxLinks || !p.present[idx] {
		return LinkPeerEntry{}, fmt.Errorf("%w: link %d", ErrLinkPeerNotFound, linkID)
	}
	removed := p.entries[idx]
	p.entries[idx] = LinkPeerEntry{}
	p.present[idx] = false

	if removed.IsPrimary {
		for i := range p.entries {
			if p.present[i] {
				p.settleLocked(i)
			}
		}
	}
	return removed, nil
}

// DetachAll empties the link peer table and returns what it held in link
// order. The recorded primary is left for FreePrimary.
func (p *MLPeer) DetachAll() []LinkPeerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []LinkPeerEntry
	for i := range p.entries {
		if !p.present[i] {
			continue
		}
		out = append(out, p.entries[i])
		p.entries[i] = LinkPeerEntry{}
		p.present[i] = false
	}
	return out
}

// Entries returns a snapshot of the attached link peers in link order.
func (p *MLPeer) Entries() []LinkPeerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]LinkPeerEntry, 0, MaxLinks)
	for i := range p.entries {
		if p.present[i] {
			out = append(out, p.entries[i])
		}
	}
	return out
}

// Entry returns the link peer on linkID.
func (p *MLPeer) Entry(linkID uint8) (LinkPeerEntry, bool) {
	if int(linkID) >= MaxLinks {
		return LinkPeerEntry{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[linkID] {
		return LinkPeerEntry{}, false
	}
	return p.entries[linkID], true
}

// PrimaryEntry returns the entry currently flagged primary.
func (p *MLPeer) PrimaryEntry() (LinkPeerEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		if p.present[i] && p.entries[i].IsPrimary {
			return p.entries[i], true
		}
	}
	return LinkPeerEntry{}, false
}

// NumPrimary counts entries flagged primary. It is 0 before assignment and
// 1 afterwards.
func (p *MLPeer) NumPrimary() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.entries {
		if p.present[i] && p.entries[i].IsPrimary {
			n++
		}
	}
	return n
}

func (p *MLPeer) countLocked() int {
	n := 0
	for _, ok := range p.present {
		if ok {
			n++
		}
	}
	return n
}

func (p *MLPeer) assocIndexLocked() (int, bool) {
	for i := range p.entries {
		if p.present[i] && p.entries[i].IsAssoc {
			return i, true
		}
	}
	return -1, false
}

func (p *MLPeer) indexOnPSOCLocked(psoc model.PSOCID) (int, bool) {
	for i := range p.entries {
		if p.present[i] && p.entries[i].PSOC == psoc {
			return i, true
		}
	}
	return -1, false
}
