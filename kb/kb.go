// Package kb keeps the host's view of PSOCs, vdevs and peers and serves it
// to the primary-link engine as its PSOC inventory.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/model"
)

var (
	ErrNotFound = errors.New("kb: not found")
	ErrExists   = errors.New("kb: already exists")
	ErrInvalid  = errors.New("kb: invalid input")
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventPSOCUpdated EventType = iota
	EventPeerAdded
	EventPeerRemoved
	EventPrimaryAssigned
	EventPrimaryMigrated
)

func (t EventType) String() string {
	switch t {
	case EventPSOCUpdated:
		return "psoc-updated"
	case EventPeerAdded:
		return "peer-added"
	case EventPeerRemoved:
		return "peer-removed"
	case EventPrimaryAssigned:
		return "primary-assigned"
	case EventPrimaryMigrated:
		return "primary-migrated"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted to subscribers after a change has been applied.
type Event struct {
	Type EventType
	PSOC model.PSOCID
	// MAC is set for peer events, MLD for multi-link ones.
	MAC    string
	MLD    string
	From   model.PSOCID
	Policy core.Policy
}

// Registry is an in-memory, thread-safe store of the platform topology. It
// implements core.PSOCInventory.
//
// Lock order: a multi-link peer's own lock is taken before the registry
// lock. The engine scans the registry while holding the peer it allocates,
// so the registry never calls into an MLPeer while holding its own lock.
type Registry struct {
	mu sync.RWMutex

	psocs   map[model.PSOCID]*model.PSOC
	vdevs   map[string]*model.Vdev
	peers   map[string]*model.Peer
	mlPeers map[string]*core.MLPeer

	subs    map[int]func(Event)
	nextSub int
}

var _ core.PSOCInventory = (*Registry)(nil)

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		psocs:   make(map[model.PSOCID]*model.PSOC),
		vdevs:   make(map[string]*model.Vdev),
		peers:   make(map[string]*model.Peer),
		mlPeers: make(map[string]*core.MLPeer),
		subs:    make(map[int]func(Event)),
	}
}

// AddPSOC registers a PSOC.
func (r *Registry) AddPSOC(p model.PSOC) error {
	if !p.ID.Valid() {
		return fmt.Errorf("%w: psoc id %d", ErrInvalid, p.ID)
	}
	if p.MaxMLPeers < 0 {
		return fmt.Errorf("%w: negative quota on psoc %d", ErrInvalid, p.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.psocs[p.ID]; ok {
		return fmt.Errorf("%w: psoc %d", ErrExists, p.ID)
	}
	r.psocs[p.ID] = &p
	return nil
}

// SetPSOCReady flips the readiness of a PSOC. Unready PSOCs report no load
// and their links are excluded from primary selection.
func (r *Registry) SetPSOCReady(id model.PSOCID, ready bool) error {
	return r.updatePSOC(id, func(p *model.PSOC) { p.Ready = ready })
}

// SetQuota sets the multi-link peer cap of a PSOC; 0 removes it.
func (r *Registry) SetQuota(id model.PSOCID, maxMLPeers int) error {
	if maxMLPeers < 0 {
		return fmt.Errorf("%w: negative quota on psoc %d", ErrInvalid, id)
	}
	return r.updatePSOC(id, func(p *model.PSOC) { p.MaxMLPeers = maxMLPeers })
}

func (r *Registry) updatePSOC(id model.PSOCID, fn func(*model.PSOC)) error {
	r.mu.Lock()
	p, ok := r.psocs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: psoc %d", ErrNotFound, id)
	}
	fn(p)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventPSOCUpdated, PSOC: id})
	return nil
}

// PSOC returns a copy of the PSOC record.
func (r *Registry) PSOC(id model.PSOCID) (model.PSOC, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.psocs[id]
	if !ok {
		return model.PSOC{}, false
	}
	return *p, true
}

// AddVdev registers a vdev on an existing PSOC.
func (r *Registry) AddVdev(v model.Vdev) error {
	if v.ID == "" || int(v.LinkID) >= core.MaxLinks {
		return fmt.Errorf("%w: vdev %q link %d", ErrInvalid, v.ID, v.LinkID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.psocs[v.PSOC]; !ok {
		return fmt.Errorf("%w: psoc %d for vdev %q", ErrNotFound, v.PSOC, v.ID)
	}
	if _, ok := r.vdevs[v.ID]; ok {
		return fmt.Errorf("%w: vdev %q", ErrExists, v.ID)
	}
	r.vdevs[v.ID] = &v
	return nil
}

// Vdev returns a copy of the vdev record.
func (r *Registry) Vdev(id string) (model.Vdev, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vdevs[id]
	if !ok {
		return model.Vdev{}, false
	}
	return *v, true
}

// AddPeer registers a single-link peer. Links of multi-link peers are added
// with AttachLink instead.
func (r *Registry) AddPeer(p model.Peer) error {
	if p.MAC == "" || p.MLD != "" {
		return fmt.Errorf("%w: peer %q mld %q", ErrInvalid, p.MAC, p.MLD)
	}
	r.mu.Lock()
	v, err := r.reservePeerLocked(&p)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventPeerAdded, PSOC: v.PSOC, MAC: p.MAC})
	return nil
}

func (r *Registry) reservePeerLocked(p *model.Peer) (*model.Vdev, error) {
	v, ok := r.vdevs[p.Vdev]
	if !ok {
		return nil, fmt.Errorf("%w: vdev %q for peer %q", ErrNotFound, p.Vdev, p.MAC)
	}
	if _, ok := r.peers[p.MAC]; ok {
		return nil, fmt.Errorf("%w: peer %q", ErrExists, p.MAC)
	}
	r.peers[p.MAC] = p
	return v, nil
}

// AddMLPeer creates the context of a multi-link peer. role is the type of
// the remote end; its link peers take the same type.
func (r *Registry) AddMLPeer(mld string, role model.PeerType, assocRSSI int) (*core.MLPeer, error) {
	if mld == "" {
		return nil, fmt.Errorf("%w: empty mld address", ErrInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mlPeers[mld]; ok {
		return nil, fmt.Errorf("%w: ml peer %q", ErrExists, mld)
	}
	ml := core.NewMLPeer(mld, role, core.MaxLinks)
	ml.AssocRSSI = assocRSSI
	r.mlPeers[mld] = ml
	return ml, nil
}

// MLPeer returns the context of a multi-link peer.
func (r *Registry) MLPeer(mld string) (*core.MLPeer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ml, ok := r.mlPeers[mld]
	return ml, ok
}

// MLPeers returns every multi-link peer ordered by MLD address.
func (r *Registry) MLPeers() []*core.MLPeer {
	r.mu.RLock()
	out := make([]*core.MLPeer, 0, len(r.mlPeers))
	for _, ml := range r.mlPeers {
		out = append(out, ml)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MLDAddr < out[j].MLDAddr })
	return out
}

// AttachLink adds a link peer of a multi-link peer on vdevID. The link ID
// is the one the vdev serves.
func (r *Registry) AttachLink(mld, mac, vdevID string, assoc bool) error {
	if mac == "" {
		return fmt.Errorf("%w: empty link peer address", ErrInvalid)
	}
	r.mu.Lock()
	ml, ok := r.mlPeers[mld]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	p := &model.Peer{MAC: mac, Vdev: vdevID, Type: ml.Role, MLD: mld}
	v, err := r.reservePeerLocked(p)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	entry := core.LinkPeerEntry{PeerMAC: mac, LinkID: v.LinkID, PSOC: v.PSOC, IsAssoc: assoc}
	r.mu.Unlock()

	if err := ml.AttachLinkPeer(entry); err != nil {
		r.mu.Lock()
		delete(r.peers, mac)
		r.mu.Unlock()
		return err
	}

	r.publish(Event{Type: EventPeerAdded, PSOC: entry.PSOC, MAC: mac, MLD: mld})
	return nil
}

// RemovePeer removes a single-link peer, or one link of a multi-link peer.
func (r *Registry) RemovePeer(mac string) error {
	r.mu.Lock()
	p, ok := r.peers[mac]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: peer %q", ErrNotFound, mac)
	}
	delete(r.peers, mac)
	psoc := model.InvalidPSOC
	linkID := uint8(0)
	if v, ok := r.vdevs[p.Vdev]; ok {
		psoc, linkID = v.PSOC, v.LinkID
	}
	ml := r.mlPeers[p.MLD]
	subs := r.subscribersLocked()
	r.mu.Unlock()

	if ml != nil {
		if e, ok := ml.Entry(linkID); ok && e.PeerMAC == mac {
			if _, err := ml.DetachLinkPeer(linkID); err != nil {
				return err
			}
		}
	}
	notify(subs, Event{Type: EventPeerRemoved, PSOC: psoc, MAC: mac, MLD: p.MLD})
	return nil
}

// RemoveMLPeer drops a multi-link peer and all of its link peers. The
// returned context should have its primary released by the caller.
func (r *Registry) RemoveMLPeer(mld string) (*core.MLPeer, error) {
	r.mu.Lock()
	ml, ok := r.mlPeers[mld]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	delete(r.mlPeers, mld)
	var removed []Event
	for mac, p := range r.peers {
		if p.MLD != mld {
			continue
		}
		delete(r.peers, mac)
		psoc := model.InvalidPSOC
		if v, ok := r.vdevs[p.Vdev]; ok {
			psoc = v.PSOC
		}
		removed = append(removed, Event{Type: EventPeerRemoved, PSOC: psoc, MAC: mac, MLD: mld})
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	ml.DetachAll()
	sort.Slice(removed, func(i, j int) bool { return removed[i].MAC < removed[j].MAC })
	for _, ev := range removed {
		notify(subs, ev)
	}
	return ml, nil
}

// Candidates returns the link candidates of a multi-link peer ordered by
// link ID. Links on excluded vdevs or unready PSOCs are marked excluded.
func (r *Registry) Candidates(mld string) ([]core.LinkCandidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.mlPeers[mld]; !ok {
		return nil, fmt.Errorf("%w: ml peer %q", ErrNotFound, mld)
	}
	var out []core.LinkCandidate
	for _, p := range r.peers {
		if p.MLD != mld {
			continue
		}
		v, ok := r.vdevs[p.Vdev]
		if !ok {
			continue
		}
		ready := false
		if ps, ok := r.psocs[v.PSOC]; ok {
			ready = ps.Ready
		}
		out = append(out, core.LinkCandidate{
			LinkID:   v.LinkID,
			PSOC:     v.PSOC,
			Pdev:     v.Pdev,
			Channel:  v.Channel,
			Excluded: v.Excluded || !ready,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LinkID < out[j].LinkID })
	return out, nil
}

// PSOCs implements core.PSOCInventory.
func (r *Registry) PSOCs() []core.PSOCInfo {
	r.mu.RLock()
	out := make([]core.PSOCInfo, 0, len(r.psocs))
	for _, p := range r.psocs {
		out = append(out, core.PSOCInfo{ID: p.ID, Ready: p.Ready, MaxMLPeers: p.MaxMLPeers})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForEachPeer implements core.PSOCInventory. The registry is read-locked
// for the whole walk, so visit must not modify the registry.
func (r *Registry) ForEachPeer(psoc model.PSOCID, visit func(core.PeerView)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		v, ok := r.vdevs[p.Vdev]
		if !ok || v.PSOC != psoc {
			continue
		}
		visit(core.ViewOf(p.MAC, p.Type, r.mlPeers[p.MLD]))
	}
}

// Counts reports how many PSOCs, vdevs, peers and multi-link peers are
// registered.
func (r *Registry) Counts() (psocs, vdevs, peers, mlPeers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.psocs), len(r.vdevs), len(r.peers), len(r.mlPeers)
}

// Subscribe registers a callback for registry events. Callbacks run on the
// goroutine that made the change, after the registry lock is released.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) publish(ev Event) {
	r.mu.RLock()
	subs := r.subscribersLocked()
	r.mu.RUnlock()
	notify(subs, ev)
}

func (r *Registry) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, r.subs[id])
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
