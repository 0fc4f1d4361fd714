package core

import (
	"sort"

	"github.com/signalsfoundry/mlo-primary/model"
)

// PSOCInfo describes one PSOC known to the host.
type PSOCInfo struct {
	ID    model.PSOCID
	Ready bool
	// MaxMLPeers is the configured multi-link peer quota; 0 = unlimited.
	MaxMLPeers int
}

// PeerView is what the load aggregator sees of one peer owned by a PSOC.
type PeerView struct {
	MAC  string
	Type model.PeerType

	// MLD is the multi-link address; empty for ordinary peers.
	MLD             string
	AvgRSSI         int
	Primary         model.PSOCID
	MigrationTarget model.PSOCID
}

// MultiLink reports whether the peer belongs to a multi-link peer.
func (v PeerView) MultiLink() bool { return v.MLD != "" }

// ViewOf fills the multi-link part of a PeerView from ml. It only reads
// atomics, so it is safe to call while ml is being allocated elsewhere.
func ViewOf(mac string, typ model.PeerType, ml *MLPeer) PeerView {
	v := PeerView{
		MAC:             mac,
		Type:            typ,
		Primary:         model.InvalidPSOC,
		MigrationTarget: model.InvalidPSOC,
	}
	if ml == nil {
		return v
	}
	v.MLD = ml.MLDAddr
	v.AvgRSSI = ml.AvgRSSI()
	v.Primary = ml.PrimaryPSOC()
	v.MigrationTarget = ml.MigrationTarget()
	return v
}

// PSOCInventory is supplied by the host. ForEachPeer must present a
// read-consistent view of the PSOC's peers for the duration of the walk.
type PSOCInventory interface {
	PSOCs() []PSOCInfo
	ForEachPeer(psoc model.PSOCID, visit func(PeerView))
}

// PSOCLoad aggregates the peers owned by one PSOC.
type PSOCLoad struct {
	MLPeers       int `json:"ml_peers"`
	RSSISum       int `json:"rssi_sum"`
	OrdinaryPeers int `json:"ordinary_peers"`
	MaxMLPeers    int `json:"max_ml_peers,omitempty"`
}

// AvgRSSI is the mean RSSI of the multi-link peers, 0 when there are none.
func (l PSOCLoad) AvgRSSI() int {
	if l.MLPeers == 0 {
		return 0
	}
	return l.RSSISum / l.MLPeers
}

// Peers is the total number of peers the PSOC owns.
func (l PSOCLoad) Peers() int {
	return l.MLPeers + l.OrdinaryPeers
}

// LoadSnapshot maps each PSOC to its load.
type LoadSnapshot map[model.PSOCID]PSOCLoad

// IDs returns the PSOC identifiers in ascending order.
func (s LoadSnapshot) IDs() []model.PSOCID {
	ids := make([]model.PSOCID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AggregateLoad walks every peer of every ready PSOC once.
//
// A multi-link peer is attributed to the PSOC that owns, or is about to own,
// its queueing state: its in-flight migration target if there is one,
// otherwise its settled primary. Each multi-link peer is counted at most
// once per PSOC even when several of its links terminate there. Station
// peers without a multi-link context count as ordinary.
func AggregateLoad(inv PSOCInventory) LoadSnapshot {
	snap := make(LoadSnapshot)
	if inv == nil {
		return snap
	}
	for _, info := range inv.PSOCs() {
		if !info.ID.Valid() {
			continue
		}
		load := PSOCLoad{MaxMLPeers: info.MaxMLPeers}
		if !info.Ready {
			snap[info.ID] = load
			continue
		}
		seen := make(map[string]struct{})
		inv.ForEachPeer(info.ID, func(v PeerView) {
			if !v.MultiLink() {
				if v.Type == model.PeerTypeSTA {
					load.OrdinaryPeers++
				}
				return
			}
			if !ownsQueueState(v, info.ID) {
				return
			}
			if _, dup := seen[v.MLD]; dup {
				return
			}
			seen[v.MLD] = struct{}{}
			load.MLPeers++
			load.RSSISum += v.AvgRSSI
		})
		snap[info.ID] = load
	}
	return snap
}

func ownsQueueState(v PeerView, psoc model.PSOCID) bool {
	if v.MigrationTarget.Valid() {
		return v.MigrationTarget == psoc
	}
	return v.Primary == psoc
}
