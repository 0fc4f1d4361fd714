package core

import (
	"time"

	"github.com/signalsfoundry/mlo-primary/model"
)

type fakeInventory struct {
	psocs []PSOCInfo
	peers map[model.PSOCID][]func() PeerView
}

func newFakeInventory(ids ...model.PSOCID) *fakeInventory {
	inv := &fakeInventory{peers: make(map[model.PSOCID][]func() PeerView)}
	for _, id := range ids {
		inv.psocs = append(inv.psocs, PSOCInfo{ID: id, Ready: true})
	}
	return inv
}

func (f *fakeInventory) PSOCs() []PSOCInfo { return f.psocs }

func (f *fakeInventory) ForEachPeer(psoc model.PSOCID, visit func(PeerView)) {
	for _, view := range f.peers[psoc] {
		visit(view())
	}
}

func (f *fakeInventory) addStatic(psoc model.PSOCID, v PeerView) {
	f.peers[psoc] = append(f.peers[psoc], func() PeerView { return v })
}

func (f *fakeInventory) addOrdinary(psoc model.PSOCID, n int) {
	for i := 0; i < n; i++ {
		f.addStatic(psoc, PeerView{Type: model.PeerTypeSTA, Primary: model.InvalidPSOC, MigrationTarget: model.InvalidPSOC})
	}
}

// addLive registers a link of ml on psoc whose view is read at scan time.
func (f *fakeInventory) addLive(psoc model.PSOCID, mac string, ml *MLPeer) {
	f.peers[psoc] = append(f.peers[psoc], func() PeerView { return ViewOf(mac, model.PeerTypeSTA, ml) })
}

func mlView(mld string, primary model.PSOCID, avg int) PeerView {
	return PeerView{
		MAC:             mld + "-link",
		Type:            model.PeerTypeSTA,
		MLD:             mld,
		AvgRSSI:         avg,
		Primary:         primary,
		MigrationTarget: model.InvalidPSOC,
	}
}

func link(id uint8, psoc model.PSOCID, freq uint32, width model.ChannelWidth) LinkCandidate {
	return LinkCandidate{
		LinkID:  id,
		PSOC:    psoc,
		Channel: model.Channel{FreqMHz: freq, Width: width},
	}
}

// newPeer builds an MLPeer with one link peer per candidate; link 0 is the
// association link.
func newPeer(mld string, role model.PeerType, links []LinkCandidate) *MLPeer {
	p := NewMLPeer(mld, role, len(links))
	for _, l := range links {
		if err := p.AttachLinkPeer(LinkPeerEntry{
			PeerMAC: mld + "-" + l.PSOC.String() + "-" + string('a'+rune(l.LinkID)),
			LinkID:  l.LinkID,
			PSOC:    l.PSOC,
			IsAssoc: l.LinkID == 0,
		}); err != nil {
			panic(err)
		}
	}
	return p
}

type recordedAllocation struct {
	policy   string
	deferred bool
}

type fakeMetrics struct {
	allocations []recordedAllocation
	migrations  []string
	load        map[int][2]int
}

func (m *fakeMetrics) RecordAllocation(policy string, deferred bool, _ time.Duration) {
	m.allocations = append(m.allocations, recordedAllocation{policy: policy, deferred: deferred})
}

func (m *fakeMetrics) RecordMigration(result string) {
	m.migrations = append(m.migrations, result)
}

func (m *fakeMetrics) SetPSOCLoad(psoc int, mlPeers, ordinaryPeers int) {
	if m.load == nil {
		m.load = make(map[int][2]int)
	}
	m.load[psoc] = [2]int{mlPeers, ordinaryPeers}
}
