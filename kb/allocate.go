package kb

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/model"
)

// Allocator is the part of core.Engine the registry drives.
type Allocator interface {
	AllocatePrimary(ctx context.Context, peer *core.MLPeer, links []core.LinkCandidate) core.Decision
	MigratePrimary(ctx context.Context, peer *core.MLPeer, linkID uint8) error
	FreePrimary(ctx context.Context, peer *core.MLPeer)
}

// Assignment pairs a multi-link peer with the decision taken for it.
type Assignment struct {
	MLD      string        `json:"mld"`
	Decision core.Decision `json:"decision"`
}

// Allocate runs the allocator for one multi-link peer over its current
// candidates and publishes EventPrimaryAssigned when a new primary was
// recorded.
func (r *Registry) Allocate(ctx context.Context, a Allocator, mld string) (core.Decision, error) {
	ml, ok := r.MLPeer(mld)
	if !ok {
		return core.Decision{}, fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	links, err := r.Candidates(mld)
	if err != nil {
		return core.Decision{}, err
	}
	d := a.AllocatePrimary(ctx, ml, links)
	if !d.Deferred() && d.Policy != core.PolicyRecorded {
		r.publish(Event{Type: EventPrimaryAssigned, PSOC: d.PSOC, MLD: mld, From: model.InvalidPSOC, Policy: d.Policy})
	}
	return d, nil
}

// AllocateAll allocates every multi-link peer in MLD order. Each decision
// sees the load left by the ones before it.
func (r *Registry) AllocateAll(ctx context.Context, a Allocator) []Assignment {
	peers := r.MLPeers()
	out := make([]Assignment, 0, len(peers))
	for _, ml := range peers {
		d, err := r.Allocate(ctx, a, ml.MLDAddr)
		if err != nil {
			// Removed since the listing.
			continue
		}
		out = append(out, Assignment{MLD: ml.MLDAddr, Decision: d})
	}
	return out
}

// Migrate moves the primary of a multi-link peer to the link on linkID and
// publishes EventPrimaryMigrated when the primary PSOC changed.
func (r *Registry) Migrate(ctx context.Context, a Allocator, mld string, linkID uint8) error {
	ml, ok := r.MLPeer(mld)
	if !ok {
		return fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	from := ml.PrimaryPSOC()
	if err := a.MigratePrimary(ctx, ml, linkID); err != nil {
		return err
	}
	if to := ml.PrimaryPSOC(); to != from {
		r.publish(Event{Type: EventPrimaryMigrated, PSOC: to, MLD: mld, From: from})
	}
	return nil
}

// Release frees the primary of a multi-link peer and removes it with all
// of its links.
func (r *Registry) Release(ctx context.Context, a Allocator, mld string) error {
	ml, ok := r.MLPeer(mld)
	if !ok {
		return fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	a.FreePrimary(ctx, ml)
	_, err := r.RemoveMLPeer(mld)
	return err
}
