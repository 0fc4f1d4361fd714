package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/kb"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func psocCell(d core.Decision) string {
	if d.Deferred() {
		return "-"
	}
	return d.PSOC.String()
}

func renderAssignments(w io.Writer, format string, as []kb.Assignment) error {
	switch format {
	case formatJSON:
		return writeJSON(w, as)
	case formatTable:
		table := newTable(w, "MLD", "PRIMARY", "POLICY")
		for _, a := range as {
			table.Append([]string{a.MLD, psocCell(a.Decision), string(a.Decision.Policy)})
		}
		table.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type loadRow struct {
	PSOC int `json:"psoc"`
	core.PSOCLoad
	AvgRSSI int `json:"avg_rssi"`
}

func loadRows(snap core.LoadSnapshot) []loadRow {
	rows := make([]loadRow, 0, len(snap))
	for _, id := range snap.IDs() {
		l := snap[id]
		rows = append(rows, loadRow{PSOC: int(id), PSOCLoad: l, AvgRSSI: l.AvgRSSI()})
	}
	return rows
}

func renderLoad(w io.Writer, format string, snap core.LoadSnapshot) error {
	rows := loadRows(snap)
	switch format {
	case formatJSON:
		return writeJSON(w, rows)
	case formatTable:
		table := newTable(w, "PSOC", "ML PEERS", "AVG RSSI", "ORDINARY", "QUOTA")
		for _, r := range rows {
			quota := "-"
			if r.MaxMLPeers > 0 {
				quota = strconv.Itoa(r.MaxMLPeers)
			}
			table.Append([]string{
				strconv.Itoa(r.PSOC),
				strconv.Itoa(r.MLPeers),
				strconv.Itoa(r.AvgRSSI),
				strconv.Itoa(r.OrdinaryPeers),
				quota,
			})
		}
		table.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
