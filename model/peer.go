package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PeerType classifies the remote end of a link peer.
type PeerType int

const (
	PeerTypeUnknown PeerType = iota
	// PeerTypeSTA is a client station associated to a local AP.
	PeerTypeSTA
	// PeerTypeAP is an access point the local device (in station mode) is
	// associated to.
	PeerTypeAP
	// PeerTypeBSS is the self peer a local AP keeps for its own BSS.
	PeerTypeBSS
)

func (t PeerType) String() string {
	switch t {
	case PeerTypeSTA:
		return "sta"
	case PeerTypeAP:
		return "ap"
	case PeerTypeBSS:
		return "bss"
	default:
		return "unknown"
	}
}

// ParsePeerType is the inverse of PeerType.String.
func ParsePeerType(s string) (PeerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sta", "station":
		return PeerTypeSTA, nil
	case "ap":
		return PeerTypeAP, nil
	case "bss":
		return PeerTypeBSS, nil
	case "", "unknown":
		return PeerTypeUnknown, nil
	default:
		return PeerTypeUnknown, fmt.Errorf("unknown peer type %q", s)
	}
}

func (t PeerType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PeerType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePeerType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
