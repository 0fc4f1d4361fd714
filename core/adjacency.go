package core

import "github.com/signalsfoundry/mlo-primary/model"

// Adjacency reports whether two PSOCs are radio-adjacent on the platform.
type Adjacency interface {
	Adjacent(a, b model.PSOCID) bool
}

// AdjacencyTable is a symmetric set of adjacent PSOC pairs. A PSOC is
// always adjacent to itself.
type AdjacencyTable struct {
	pairs map[[2]model.PSOCID]struct{}
}

// NewAdjacencyTable builds a table from unordered pairs.
func NewAdjacencyTable(pairs ...[2]model.PSOCID) *AdjacencyTable {
	t := &AdjacencyTable{pairs: make(map[[2]model.PSOCID]struct{}, len(pairs))}
	for _, p := range pairs {
		t.pairs[orderedPair(p[0], p[1])] = struct{}{}
	}
	return t
}

func (t *AdjacencyTable) Adjacent(a, b model.PSOCID) bool {
	if a == b {
		return true
	}
	if t == nil {
		return false
	}
	_, ok := t.pairs[orderedPair(a, b)]
	return ok
}

func orderedPair(a, b model.PSOCID) [2]model.PSOCID {
	if a > b {
		a, b = b, a
	}
	return [2]model.PSOCID{a, b}
}

// centralPSOC finds the PSOC adjacent to both others in a three-link
// topology. Pairs are checked in the order (0,1), (1,2), (0,2); the first
// non-adjacent pair makes the remaining PSOC central. If every pair is
// adjacent there is no unique centre.
func centralPSOC(adj Adjacency, ids [3]model.PSOCID) (model.PSOCID, bool) {
	switch {
	case !adj.Adjacent(ids[0], ids[1]):
		return ids[2], true
	case !adj.Adjacent(ids[1], ids[2]):
		return ids[0], true
	case !adj.Adjacent(ids[0], ids[2]):
		return ids[1], true
	default:
		return model.InvalidPSOC, false
	}
}
