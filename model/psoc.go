package model

import "strconv"

// PSOCID identifies a PSOC, the SoC-scoped owner of a traffic queue manager.
type PSOCID int

// InvalidPSOC is the "unassigned" / "no candidate" sentinel.
const InvalidPSOC PSOCID = -1

// MaxDevices bounds the PSOC identifiers a platform can report.
const MaxDevices = 6

// Valid reports whether id names a real PSOC on the platform.
func (id PSOCID) Valid() bool {
	return id >= 0 && id < MaxDevices
}

func (id PSOCID) String() string {
	if !id.Valid() {
		return "invalid"
	}
	return strconv.Itoa(int(id))
}

// PSOC is one SoC of the platform as the host reports it.
type PSOC struct {
	ID PSOCID `json:"id"`
	// Ready is false while the SoC is still coming up or is being recovered.
	Ready bool `json:"ready"`
	// MaxMLPeers caps the multi-link peers the PSOC may own; 0 = unlimited.
	MaxMLPeers int `json:"max_ml_peers,omitempty"`
}
