package model

// Vdev is a virtual radio interface on one pdev of a PSOC. In a multi-link
// BSS each affiliated vdev serves exactly one link.
type Vdev struct {
	ID      string  `json:"id"`
	PSOC    PSOCID  `json:"psoc"`
	Pdev    uint8   `json:"pdev"`
	LinkID  uint8   `json:"link_id"`
	Channel Channel `json:"channel"`
	// Excluded keeps the vdev's links out of primary selection.
	Excluded bool `json:"excluded,omitempty"`
}

// Peer is a single-link association on a vdev. MLD is set when the peer is
// one link of a multi-link peer.
type Peer struct {
	MAC  string   `json:"mac"`
	Vdev string   `json:"vdev"`
	Type PeerType `json:"type"`
	MLD  string   `json:"mld,omitempty"`
}
