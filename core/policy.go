package core

import "github.com/signalsfoundry/mlo-primary/model"

// DefaultCongestionPercent is the capacity head-room removed from every
// PSOC when sizing multi-link groups.
const DefaultCongestionPercent = 30

// PolicyConfig holds the operator switches of the selector.
type PolicyConfig struct {
	// AlwaysOffloadFromAssoc keeps the primary off the association link
	// PSOC whenever another eligible link exists.
	AlwaysOffloadFromAssoc bool
	// ForcePrimary pins the primary to ForcedPSOC when the peer has an
	// eligible link there.
	ForcePrimary bool
	ForcedPSOC   model.PSOCID
	// CongestionPercent shrinks every bandwidth-derived capacity uniformly.
	CongestionPercent int
}

func (c PolicyConfig) congestion() int {
	if c.CongestionPercent < 0 || c.CongestionPercent >= 100 {
		return DefaultCongestionPercent
	}
	return c.CongestionPercent
}

// Policy names the rule that produced a decision.
type Policy string

const (
	PolicyNone         Policy = "none"
	PolicyRecorded     Policy = "recorded"
	PolicyStationAssoc Policy = "station-assoc"
	PolicyOffloadAssoc Policy = "offload-assoc"
	PolicySingleChip   Policy = "single-chip"
	PolicyCentral      Policy = "central-adjacency"
	PolicyForced       Policy = "forced"
	PolicyNoStation    Policy = "no-station"
	PolicyBandwidth    Policy = "no-station-bandwidth"
	PolicyGroupSize    Policy = "group-size"
	PolicyRSSI         Policy = "rssi-closest"
	PolicyFallback     Policy = "fallback"
)

// Decision is the outcome of a selection.
type Decision struct {
	PSOC   model.PSOCID
	Policy Policy
}

// Deferred reports whether no primary could be chosen. Callers should retry
// primary-dependent setup once the topology is complete.
func (d Decision) Deferred() bool {
	return !d.PSOC.Valid()
}

var deferred = Decision{PSOC: model.InvalidPSOC, Policy: PolicyNone}

// policy is one link in the selector chain. choose returns
// model.InvalidPSOC to decline.
type policy interface {
	choose(in *SelectInput) (model.PSOCID, Policy)
}

type stationPolicy struct{}

func (stationPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	if in.Role != model.PeerTypeAP {
		return model.InvalidPSOC, PolicyNone
	}
	assoc, ok := in.assoc()
	if !ok {
		return model.InvalidPSOC, PolicyNone
	}
	return assoc.PSOC, PolicyStationAssoc
}

type offloadPolicy struct{}

func (offloadPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	for _, l := range in.Links {
		if l.LinkID == in.AssocLink || !l.Eligible() {
			continue
		}
		return l.PSOC, PolicyOffloadAssoc
	}
	return model.InvalidPSOC, PolicyNone
}

type singleChipPolicy struct{}

func (singleChipPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	if len(in.Links) == 0 {
		return model.InvalidPSOC, PolicyNone
	}
	psoc := in.Links[0].PSOC
	if assoc, ok := in.assoc(); ok {
		psoc = assoc.PSOC
	}
	for _, l := range in.Links {
		if l.PSOC != psoc {
			return model.InvalidPSOC, PolicyNone
		}
	}
	if !eligibleOn(in.Links, psoc) {
		return model.InvalidPSOC, PolicyNone
	}
	return psoc, PolicySingleChip
}

type centralPolicy struct {
	adj Adjacency
}

func (p centralPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	if len(in.Links) != 3 {
		return model.InvalidPSOC, PolicyNone
	}
	ids := [3]model.PSOCID{in.Links[0].PSOC, in.Links[1].PSOC, in.Links[2].PSOC}
	psoc, ok := centralPSOC(p.adj, ids)
	if !ok || !eligibleOn(in.Links, psoc) {
		return model.InvalidPSOC, PolicyNone
	}
	return psoc, PolicyCentral
}

// eligibleOn reports whether any link on psoc may host the primary.
func eligibleOn(links []LinkCandidate, psoc model.PSOCID) bool {
	for _, l := range links {
		if l.PSOC == psoc && l.Eligible() {
			return true
		}
	}
	return false
}

type forcedPolicy struct {
	psoc model.PSOCID
}

func (p forcedPolicy) choose(in *SelectInput) (model.PSOCID, Policy) {
	first := model.InvalidPSOC
	for _, l := range in.Links {
		if !l.Eligible() {
			continue
		}
		if l.PSOC == p.psoc {
			return l.PSOC, PolicyForced
		}
		if !first.Valid() {
			first = l.PSOC
		}
	}
	return first, PolicyForced
}
