package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/kb"
)

const testScenario = "../../kb/testdata/three_psoc.json"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAllocateCommandJSON(t *testing.T) {
	out, err := run(t, "--scenario", testScenario, "allocate", "-o", "json")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	var got []kb.Assignment
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []kb.Assignment{
		{MLD: "02:00:00:00:00:0a", Decision: core.Decision{PSOC: 2, Policy: core.PolicyNoStation}},
		{MLD: "02:00:00:00:00:0b", Decision: core.Decision{PSOC: 2, Policy: core.PolicyRSSI}},
		{MLD: "02:00:00:00:00:0c", Decision: core.Decision{PSOC: 2, Policy: core.PolicyStationAssoc}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("assignments mismatch (-want +got):\n%s", diff)
	}
}

func TestAllocateCommandTable(t *testing.T) {
	out, err := run(t, "--scenario", testScenario, "allocate")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, want := range []string{"MLD", "PRIMARY", "POLICY", "02:00:00:00:00:0b", "rssi-closest", "station-assoc"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLoadCommandAppliesConfigQuotas(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "primary.yaml")
	if err := os.WriteFile(cfgPath, []byte("quotas:\n  0: 3\n  2: 0\n  5: 4\nlogging:\n  format: json\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := run(t, "--config", cfgPath, "--scenario", testScenario, "load", "-o", "json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var rows []loadRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v, want 3", rows)
	}
	if rows[0].MaxMLPeers != 3 || rows[0].OrdinaryPeers != 2 {
		t.Fatalf("psoc 0 row = %+v", rows[0])
	}
	// An explicit 0 lifts the scenario's cap; psoc 5 is not in the scenario.
	if rows[1].MLPeers != 0 || rows[2].MLPeers != 3 || rows[2].MaxMLPeers != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestLoadCommandWithoutAllocation(t *testing.T) {
	out, err := run(t, "--scenario", testScenario, "load", "--allocate=false")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "ML PEERS") || !strings.Contains(out, "QUOTA") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, "--scenario", testScenario, "migrate", "02:00:00:00:00:0b", "1", "-o", "json")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var got []kb.Assignment
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 1 || got[0].Decision.PSOC != 1 {
		t.Fatalf("migration result = %+v, want psoc 1", got)
	}

	if _, err := run(t, "--scenario", testScenario, "migrate", "02:00:00:00:00:0b", "9"); err == nil {
		t.Fatalf("expected an error for link id 9")
	}
	if _, err := run(t, "--scenario", testScenario, "migrate", "02:00:00:00:00:0b", "0"); !errors.Is(err, core.ErrLinkPeerNotFound) {
		t.Fatalf("migrate to missing link err = %v, want %v", err, core.ErrLinkPeerNotFound)
	}
}

func TestCommandErrors(t *testing.T) {
	if _, err := run(t, "allocate"); !errors.Is(err, errNoScenario) {
		t.Fatalf("missing scenario err = %v, want %v", err, errNoScenario)
	}
	if _, err := run(t, "--scenario", testScenario, "allocate", "-o", "xml"); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}
	if _, err := run(t, "--scenario", "missing.json", "allocate"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v, want not-exist", err)
	}
}

func TestServeMux(t *testing.T) {
	root := newRootCmd()
	if err := root.ParseFlags([]string{"--scenario", testScenario}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	ctx := context.Background()
	e, err := setup(ctx, io.Discard)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer e.close(ctx)

	st := newDecisionState()
	st.record(e.reg.AllocateAll(ctx, e.eng))
	unsubscribe := e.reg.Subscribe(st.onEvent)
	defer unsubscribe()
	if err := e.reg.Migrate(ctx, e.eng, "02:00:00:00:00:0b", 1); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	mux := newServeMux(e, st)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/decisions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/decisions status = %d", rr.Code)
	}
	var body struct {
		Assignments []kb.Assignment `json:"assignments"`
		Load        []loadRow       `json:"load"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode /decisions: %v", err)
	}
	if len(body.Assignments) != 3 {
		t.Fatalf("assignments = %+v, want 3", body.Assignments)
	}
	if moved := body.Assignments[1]; moved.Decision.PSOC != 1 || moved.Decision.Policy != core.PolicyRecorded {
		t.Fatalf("assignments = %+v, want b recorded on psoc 1", body.Assignments)
	}
	if len(body.Load) != 3 || body.Load[1].MLPeers != 1 || body.Load[2].MLPeers != 2 {
		t.Fatalf("load = %+v", body.Load)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{`primary_allocations_total{policy="no-station"} 1`, `primary_migrations_total{result="migrated"} 1`} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("expected %q in /metrics:\n%s", want, rr.Body.String())
		}
	}
}
