package core

import "github.com/signalsfoundry/mlo-primary/model"

// MaxLinks is the capacity of a multi-link peer's link peer table.
const MaxLinks = 4

// LinkCandidate is one radio interface through which a multi-link peer is
// reachable. The set of candidates is fixed when the multi-link peer is
// created; only the primary decision changes afterwards.
type LinkCandidate struct {
	LinkID  uint8         `json:"link_id"`
	PSOC    model.PSOCID  `json:"psoc"`
	Pdev    uint8         `json:"pdev"`
	Channel model.Channel `json:"channel"`

	// Excluded marks radios that may never host the primary.
	Excluded bool `json:"excluded,omitempty"`
}

// Eligible reports whether the candidate can become primary.
func (c LinkCandidate) Eligible() bool {
	return !c.Excluded && c.PSOC.Valid()
}

// LinkPeerEntry binds a multi-link peer to the single-link peer it holds on
// one link. The single-link peer itself is owned elsewhere; only its MAC is
// kept here.
type LinkPeerEntry struct {
	PeerMAC string       `json:"peer_mac"`
	LinkID  uint8        `json:"link_id"`
	PSOC    model.PSOCID `json:"psoc"`

	IsPrimary bool `json:"is_primary"`
	// IsAssoc is set on the link where association and the RSN handshake
	// completed.
	IsAssoc bool `json:"is_assoc"`
}

func findCandidate(links []LinkCandidate, linkID uint8) (LinkCandidate, bool) {
	for _, l := range links {
		if l.LinkID == linkID {
			return l, true
		}
	}
	return LinkCandidate{}, false
}
