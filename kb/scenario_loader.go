package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/mlo-primary/model"
)

// Scenario summarises what LoadScenario put into the registry.
type Scenario struct {
	PSOCs    []model.PSOCID
	VdevIDs  []string
	PeerMACs []string
	MLDs     []string
}

// JSON shapes stay unexported so the file format can evolve separately
// from the registry.
type scenarioJSON struct {
	PSOCs   []psocJSON   `json:"psocs"`
	Vdevs   []model.Vdev `json:"vdevs"`
	Peers   []model.Peer `json:"peers"`
	MLPeers []mlPeerJSON `json:"ml_peers"`
}

type psocJSON struct {
	ID         model.PSOCID `json:"id"`
	Ready      *bool        `json:"ready"` // optional; defaults to true
	MaxMLPeers int          `json:"max_ml_peers"`
}

type mlPeerJSON struct {
	MLD       string         `json:"mld"`
	Role      model.PeerType `json:"role"`
	AssocRSSI int            `json:"assoc_rssi"`
	Links     []mlLinkJSON   `json:"links"`
}

type mlLinkJSON struct {
	MAC   string `json:"mac"`
	Vdev  string `json:"vdev"`
	Assoc bool   `json:"assoc"`
}

// LoadScenario decodes a JSON topology snapshot from r into reg. Loading
// stops at the first record the registry rejects.
func LoadScenario(reg *Registry, r io.Reader) (*Scenario, error) {
	if reg == nil {
		return nil, fmt.Errorf("LoadScenario: registry is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	out := &Scenario{}
	for _, p := range payload.PSOCs {
		ready := true
		if p.Ready != nil {
			ready = *p.Ready
		}
		if err := reg.AddPSOC(model.PSOC{ID: p.ID, Ready: ready, MaxMLPeers: p.MaxMLPeers}); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		out.PSOCs = append(out.PSOCs, p.ID)
	}
	for _, v := range payload.Vdevs {
		if err := reg.AddVdev(v); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		out.VdevIDs = append(out.VdevIDs, v.ID)
	}
	for _, p := range payload.Peers {
		if err := reg.AddPeer(p); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		out.PeerMACs = append(out.PeerMACs, p.MAC)
	}
	for _, ml := range payload.MLPeers {
		if _, err := reg.AddMLPeer(ml.MLD, ml.Role, ml.AssocRSSI); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		for _, l := range ml.Links {
			if err := reg.AttachLink(ml.MLD, l.MAC, l.Vdev, l.Assoc); err != nil {
				return nil, fmt.Errorf("LoadScenario: ml peer %q: %w", ml.MLD, err)
			}
			out.PeerMACs = append(out.PeerMACs, l.MAC)
		}
		out.MLDs = append(out.MLDs, ml.MLD)
	}
	return out, nil
}

// LoadScenarioFile opens path and loads it into reg.
func LoadScenarioFile(reg *Registry, path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadScenario(reg, f)
}
