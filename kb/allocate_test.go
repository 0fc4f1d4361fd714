package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/model"
)

func loadThreePSOC(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if _, err := LoadScenarioFile(reg, "testdata/three_psoc.json"); err != nil {
		t.Fatalf("LoadScenarioFile: %v", err)
	}
	return reg
}

func TestAllocateAllOverScenario(t *testing.T) {
	reg := loadThreePSOC(t)
	eng := core.NewEngine(reg, core.PolicyConfig{})

	var events []Event
	reg.Subscribe(func(e Event) {
		if e.Type == EventPrimaryAssigned {
			events = append(events, e)
		}
	})

	got := reg.AllocateAll(context.Background(), eng)
	want := []Assignment{
		// Only psoc 2 is idle; the bss peer there is not a station.
		{MLD: "02:00:00:00:00:0a", Decision: core.Decision{PSOC: 2, Policy: core.PolicyNoStation}},
		// psoc 2's mean of -45 sits 25 away from -70; psoc 1 has no
		// multi-link peers, a mean of 0 and a distance of 70.
		{MLD: "02:00:00:00:00:0b", Decision: core.Decision{PSOC: 2, Policy: core.PolicyRSSI}},
		// Local station: the association link decides.
		{MLD: "02:00:00:00:00:0c", Decision: core.Decision{PSOC: 2, Policy: core.PolicyStationAssoc}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("assignments mismatch (-want +got):\n%s", diff)
	}
	if len(events) != 3 || events[1].MLD != "02:00:00:00:00:0b" || events[1].PSOC != 2 {
		t.Fatalf("primary-assigned events = %+v", events)
	}

	load := eng.Load()
	wantLoad := core.LoadSnapshot{
		0: {OrdinaryPeers: 2},
		1: {OrdinaryPeers: 1},
		// The local station keeps an average RSSI of 0.
		2: {MLPeers: 3, RSSISum: -115, MaxMLPeers: 8},
	}
	if diff := cmp.Diff(wantLoad, load); diff != "" {
		t.Fatalf("load mismatch (-want +got):\n%s", diff)
	}

	for _, ml := range reg.MLPeers() {
		if n := ml.NumPrimary(); n != 1 {
			t.Fatalf("%s: NumPrimary = %d, want 1", ml.MLDAddr, n)
		}
	}

	// A second pass keeps every recorded primary and publishes nothing.
	events = nil
	for _, a := range reg.AllocateAll(context.Background(), eng) {
		if a.Decision.Policy != core.PolicyRecorded {
			t.Fatalf("re-allocation of %s = %+v, want recorded", a.MLD, a.Decision)
		}
	}
	if len(events) != 0 {
		t.Fatalf("re-allocation published %d events", len(events))
	}
}

func TestMigrateAndRelease(t *testing.T) {
	reg := loadThreePSOC(t)
	eng := core.NewEngine(reg, core.PolicyConfig{})
	ctx := context.Background()
	reg.AllocateAll(ctx, eng)

	var migrated []Event
	reg.Subscribe(func(e Event) {
		if e.Type == EventPrimaryMigrated {
			migrated = append(migrated, e)
		}
	})

	const mld = "02:00:00:00:00:0b"
	if err := reg.Migrate(ctx, eng, mld, 1); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := reg.Migrate(ctx, eng, mld, 1); err != nil {
		t.Fatalf("repeated Migrate: %v", err)
	}
	if len(migrated) != 1 || migrated[0].From != 2 || migrated[0].PSOC != 1 {
		t.Fatalf("migration events = %+v", migrated)
	}
	if err := reg.Migrate(ctx, eng, mld, 0); !errors.Is(err, core.ErrLinkPeerNotFound) {
		t.Fatalf("migrate to missing link err = %v, want %v", err, core.ErrLinkPeerNotFound)
	}
	if err := reg.Migrate(ctx, eng, "ghost", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("migrate unknown mld err = %v, want %v", err, ErrNotFound)
	}
	if load := eng.Load(); load[1].MLPeers != 1 || load[2].MLPeers != 2 {
		t.Fatalf("load after migration = %+v, want one ml peer on psoc 1 and two on psoc 2", load)
	}

	if err := reg.Release(ctx, eng, mld); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := reg.MLPeer(mld); ok {
		t.Fatalf("released peer still registered")
	}
	if load := eng.Load(); load[1].MLPeers != 0 || load[2].MLPeers != 2 {
		t.Fatalf("load after release = %+v", load)
	}
	if err := reg.Release(ctx, eng, mld); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second release err = %v, want %v", err, ErrNotFound)
	}
}

func TestAllocateDefersWhenAllLinksUnready(t *testing.T) {
	reg := loadThreePSOC(t)
	for _, id := range []model.PSOCID{1, 2} {
		if err := reg.SetPSOCReady(id, false); err != nil {
			t.Fatalf("SetPSOCReady: %v", err)
		}
	}
	eng := core.NewEngine(reg, core.PolicyConfig{})

	d, err := reg.Allocate(context.Background(), eng, "02:00:00:00:00:0b")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !d.Deferred() {
		t.Fatalf("decision = %+v, want deferred", d)
	}
	if _, err := reg.Allocate(context.Background(), eng, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown mld err = %v, want %v", err, ErrNotFound)
	}
}

func TestAllocateCentralSkipsUnreadyPSOC(t *testing.T) {
	adj := core.NewAdjacencyTable([2]model.PSOCID{0, 1}, [2]model.PSOCID{1, 2})
	const mld = "02:00:00:00:00:0a"

	reg := loadThreePSOC(t)
	eng := core.NewEngine(reg, core.PolicyConfig{}, core.WithAdjacency(adj))
	d, err := reg.Allocate(context.Background(), eng, mld)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if d.PSOC != 1 || d.Policy != core.PolicyCentral {
		t.Fatalf("decision = %+v, want central psoc 1", d)
	}

	reg = loadThreePSOC(t)
	if err := reg.SetPSOCReady(1, false); err != nil {
		t.Fatalf("SetPSOCReady: %v", err)
	}
	eng = core.NewEngine(reg, core.PolicyConfig{}, core.WithAdjacency(adj))
	d, err = reg.Allocate(context.Background(), eng, mld)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// psoc 1 is not initialised; psoc 2 is the only idle candidate left.
	if d.PSOC != 2 || d.Policy != core.PolicyNoStation {
		t.Fatalf("decision = %+v, want psoc 2 via %s", d, core.PolicyNoStation)
	}
	ml, _ := reg.MLPeer(mld)
	if e, ok := ml.PrimaryEntry(); !ok || e.PSOC != 2 {
		t.Fatalf("primary entry = %+v, want one on psoc 2", e)
	}
}
