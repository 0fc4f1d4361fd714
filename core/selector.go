package core

import (
	"sort"

	"github.com/signalsfoundry/mlo-primary/model"
)

// SelectInput carries everything the selector needs for one peer.
type SelectInput struct {
	Role      model.PeerType
	Links     []LinkCandidate
	AssocLink uint8
	// PeerRSSI is the peer's average RSSI across its links.
	PeerRSSI int

	// Load is the per-PSOC snapshot. When nil, LoadFunc is called at most
	// once, and only if the balanced policy is reached.
	Load     LoadSnapshot
	LoadFunc func() LoadSnapshot
}

func (in *SelectInput) assoc() (LinkCandidate, bool) {
	return findCandidate(in.Links, in.AssocLink)
}

func (in *SelectInput) load() LoadSnapshot {
	if in.Load == nil {
		if in.LoadFunc != nil {
			in.Load = in.LoadFunc()
		}
		if in.Load == nil {
			in.Load = LoadSnapshot{}
		}
	}
	return in.Load
}

// Selector runs the primary-link policy chain. The chain is assembled from
// configuration once, at construction.
type Selector struct {
	chain []policy
}

// NewSelector builds the chain for cfg. The central-adjacency rule is only
// part of the chain when adj is non-nil.
func NewSelector(cfg PolicyConfig, adj Adjacency) *Selector {
	chain := []policy{stationPolicy{}}
	if cfg.AlwaysOffloadFromAssoc {
		chain = append(chain, offloadPolicy{})
	}
	chain = append(chain, singleChipPolicy{})
	if adj != nil {
		chain = append(chain, centralPolicy{adj: adj})
	}
	if cfg.ForcePrimary {
		chain = append(chain, forcedPolicy{psoc: cfg.ForcedPSOC})
	}
	chain = append(chain, balancedPolicy{congestion: cfg.congestion()})
	return &Selector{chain: chain}
}

// Select returns the first decision any policy commits to, falling back to
// the first non-excluded link. An empty link list is always deferred.
func (s *Selector) Select(in SelectInput) Decision {
	if len(in.Links) == 0 {
		return deferred
	}
	for _, p := range s.chain {
		if psoc, kind := p.choose(&in); psoc.Valid() {
			return Decision{PSOC: psoc, Policy: kind}
		}
	}
	for _, l := range in.Links {
		if l.Eligible() {
			return Decision{PSOC: l.PSOC, Policy: PolicyFallback}
		}
	}
	return deferred
}

type psocCandidate struct {
	id    model.PSOCID
	width model.ChannelWidth
	load  PSOCLoad
}

// balancedPolicy spreads multi-link peers over PSOCs by idle capacity,
// group size and RSSI similarity.
type balancedPolicy struct {
	congestion int
}

func (p balancedPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	cands := p.candidates(in)
	if len(cands) == 0 {
		return model.InvalidPSOC, PolicyNone
	}

	var idle []psocCandidate
	for _, c := range cands {
		if c.load.Peers() == 0 {
			idle = append(idle, c)
		}
	}
	switch {
	case len(idle) == 1:
		return idle[0].id, PolicyNoStation
	case len(idle) > 1:
		return widestIdle(idle).id, PolicyBandwidth
	}

	if c, ok := p.onlyNotFull(cands); ok {
		return c.id, PolicyGroupSize
	}
	return closestRSSI(cands, in.PeerRSSI).id, PolicyRSSI
}

// candidates collects one entry per eligible PSOC in ascending PSOC order.
// A PSOC reached through several links takes its widest channel.
func (p balancedPolicy) candidates(in *SelectInput) []psocCandidate {
	byID := make(map[model.PSOCID]*psocCandidate)
	for _, l := range in.Links {
		if !l.Eligible() {
			continue
		}
		if c, ok := byID[l.PSOC]; ok {
			if l.Channel.Width > c.width {
				c.width = l.Channel.Width
			}
			continue
		}
		byID[l.PSOC] = &psocCandidate{id: l.PSOC, width: l.Channel.Width}
	}
	if len(byID) == 0 {
		return nil
	}

	snap := in.load()
	out := make([]psocCandidate, 0, len(byID))
	for id, c := range byID {
		c.load = snap[id]
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// widestIdle picks the widest channel up to 160 MHz. 320 MHz links are
// kept out of this choice unless nothing else is idle.
func widestIdle(idle []psocCandidate) psocCandidate {
	best := -1
	for i, c := range idle {
		if c.width == model.Width320 {
			continue
		}
		if best < 0 || c.width > idle[best].width {
			best = i
		}
	}
	if best < 0 {
		return idle[0]
	}
	return idle[best]
}

// onlyNotFull sizes each PSOC's share of the multi-link peers in proportion
// to its usable bandwidth and returns the single PSOC still below its share,
// if exactly one is.
func (p balancedPolicy) onlyNotFull(cands []psocCandidate) (psocCandidate, bool) {
	factor := 100 - p.congestion
	totalCap, totalML := 0, 0
	for _, c := range cands {
		totalCap += c.width.MHz() * factor
		totalML += c.load.MLPeers
	}

	var open []psocCandidate
	for _, c := range cands {
		share := 0
		if totalCap > 0 {
			share = totalML * c.width.MHz() * factor / totalCap
		}
		full := c.load.MLPeers >= share
		if c.load.MaxMLPeers > 0 && c.load.MLPeers >= c.load.MaxMLPeers {
			full = true
		}
		if !full {
			open = append(open, c)
		}
	}
	if len(open) == 1 {
		return open[0], true
	}
	return psocCandidate{}, false
}

// closestRSSI returns the PSOC whose multi-link peers' mean RSSI is closest
// to the peer's own. A PSOC without multi-link peers has a mean of 0.
func closestRSSI(cands []psocCandidate, peerRSSI int) psocCandidate {
	best, bestDiff := 0, -1
	for i, c := range cands {
		diff := abs(peerRSSI - c.load.AvgRSSI())
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return cands[best]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
