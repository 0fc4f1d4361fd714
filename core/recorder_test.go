package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/mlo-primary/model"
)

func attach(t *testing.T, p *MLPeer, e LinkPeerEntry) {
	t.Helper()
	if err := p.AttachLinkPeer(e); err != nil {
		t.Fatalf("AttachLinkPeer(%+v): %v", e, err)
	}
}

func primaryLinks(p *MLPeer) []uint8 {
	var out []uint8
	for _, e := range p.Entries() {
		if e.IsPrimary {
			out = append(out, e.LinkID)
		}
	}
	return out
}

func TestAttachLinkPeerValidation(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 2)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 0, IsAssoc: true})

	cases := []struct {
		name  string
		entry LinkPeerEntry
		want  error
	}{
		{name: "empty mac", entry: LinkPeerEntry{LinkID: 1}, want: ErrLinkPeerBadInput},
		{name: "link out of range", entry: LinkPeerEntry{PeerMAC: "mx", LinkID: MaxLinks}, want: ErrLinkPeerBadInput},
		{name: "duplicate link", entry: LinkPeerEntry{PeerMAC: "m0b", LinkID: 0}, want: ErrLinkPeerExists},
		{name: "second assoc", entry: LinkPeerEntry{PeerMAC: "m1", LinkID: 1, IsAssoc: true}, want: ErrLinkPeerExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := p.AttachLinkPeer(tc.entry); !errors.Is(err, tc.want) {
				t.Fatalf("AttachLinkPeer err = %v, want %v", err, tc.want)
			}
		})
	}

	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1})
	if err := p.AttachLinkPeer(LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 2}); !errors.Is(err, ErrLinkPeerTableFull) {
		t.Fatalf("third link on a two-link peer: err = %v, want %v", err, ErrLinkPeerTableFull)
	}
}

func TestRecordPrimaryPrefersAssocOnSelectedPSOC(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 1})
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1, IsAssoc: true})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 0})

	if n := p.NumPrimary(); n != 0 {
		t.Fatalf("NumPrimary before assignment = %d, want 0", n)
	}

	p.mu.Lock()
	p.recordPrimaryLocked(1)
	p.mu.Unlock()

	if got := primaryLinks(p); len(got) != 1 || got[0] != 1 {
		t.Fatalf("primary links = %v, want [1] (the assoc link)", got)
	}
	if p.PrimaryPSOC() != 1 {
		t.Fatalf("PrimaryPSOC = %d, want 1", p.PrimaryPSOC())
	}
}

func TestRecordPrimaryOffAssoc(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 0, IsAssoc: true})
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 2})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 2})

	p.mu.Lock()
	p.recordPrimaryLocked(2)
	p.mu.Unlock()

	if got := primaryLinks(p); len(got) != 1 || got[0] != 1 {
		t.Fatalf("primary links = %v, want [1]", got)
	}
}

func TestAttachAfterRecordSettlesFlag(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 0, IsAssoc: true})

	p.mu.Lock()
	p.recordPrimaryLocked(1)
	p.mu.Unlock()
	if n := p.NumPrimary(); n != 0 {
		t.Fatalf("no entry on psoc 1 yet, NumPrimary = %d", n)
	}

	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 1})
	if got := primaryLinks(p); len(got) != 1 || got[0] != 1 {
		t.Fatalf("primary links = %v, want [1]", got)
	}
}

func TestSettleClearsConflictingFlag(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 1, IsAssoc: true})
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 0})

	p.mu.Lock()
	p.recordPrimaryLocked(1)
	// Corrupt the table: a stray flag off the primary psoc and a second
	// flag on it.
	p.entries[1].IsPrimary = true
	p.entries[2].IsPrimary = true
	for i := range p.entries {
		if p.present[i] {
			p.settleLocked(i)
		}
	}
	p.mu.Unlock()

	if n := p.NumPrimary(); n != 1 {
		t.Fatalf("NumPrimary after settling = %d, want 1", n)
	}
	if e, ok := p.PrimaryEntry(); !ok || e.PSOC != 1 {
		t.Fatalf("primary entry = %+v, want one on psoc 1", e)
	}
}

func TestDetachPrimaryHandsOverOnSamePSOC(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 1, IsAssoc: true})
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 0})

	p.mu.Lock()
	p.recordPrimaryLocked(1)
	p.mu.Unlock()

	removed, err := p.DetachLinkPeer(0)
	if err != nil {
		t.Fatalf("DetachLinkPeer: %v", err)
	}
	if !removed.IsPrimary {
		t.Fatalf("removed entry should have been primary: %+v", removed)
	}
	if got := primaryLinks(p); len(got) != 1 || got[0] != 1 {
		t.Fatalf("primary links after detach = %v, want [1]", got)
	}
	if _, err := p.DetachLinkPeer(0); !errors.Is(err, ErrLinkPeerNotFound) {
		t.Fatalf("second detach err = %v, want %v", err, ErrLinkPeerNotFound)
	}
}

func TestMigrateToLocked(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 0, IsAssoc: true})
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1})
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 2})

	p.mu.Lock()
	p.recordPrimaryLocked(0)
	p.migration.Store(1)
	changed := p.migrateToLocked(1)
	again := p.migrateToLocked(1)
	p.mu.Unlock()

	if !changed || again {
		t.Fatalf("migrateToLocked changed=%v again=%v, want true,false", changed, again)
	}
	if got := primaryLinks(p); len(got) != 1 || got[0] != 1 {
		t.Fatalf("primary links = %v, want [1]", got)
	}
	if p.PrimaryPSOC() != 1 || p.MigrationTarget().Valid() {
		t.Fatalf("primary=%d migration=%d, want 1 and none", p.PrimaryPSOC(), p.MigrationTarget())
	}
}

func TestDetachAllEmptiesTable(t *testing.T) {
	p := NewMLPeer("mld", model.PeerTypeSTA, 3)
	attach(t, p, LinkPeerEntry{PeerMAC: "m2", LinkID: 2, PSOC: 2})
	attach(t, p, LinkPeerEntry{PeerMAC: "m0", LinkID: 0, PSOC: 0, IsAssoc: true})

	got := p.DetachAll()
	if len(got) != 2 || got[0].PeerMAC != "m0" || got[1].PeerMAC != "m2" {
		t.Fatalf("DetachAll = %+v, want m0 then m2", got)
	}
	if n := len(p.Entries()); n != 0 {
		t.Fatalf("%d entries left after DetachAll", n)
	}
	if again := p.DetachAll(); len(again) != 0 {
		t.Fatalf("second DetachAll = %+v, want nothing", again)
	}
	attach(t, p, LinkPeerEntry{PeerMAC: "m1", LinkID: 1, PSOC: 1, IsAssoc: true})
}
