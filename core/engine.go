package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/mlo-primary/internal/logging"
	"github.com/signalsfoundry/mlo-primary/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/mlo-primary/core"

// MetricsRecorder receives engine outcomes. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	RecordAllocation(policy string, deferred bool, elapsed time.Duration)
	RecordMigration(result string)
	SetPSOCLoad(psoc int, mlPeers, ordinaryPeers int)
}

// Engine assigns and migrates primary PSOCs for multi-link peers.
//
// Allocation is synchronous and does no I/O. Different peers may be
// allocated concurrently; writes to one peer are serialised by that peer.
type Engine struct {
	inventory PSOCInventory
	power     PowerLookup
	adjacency Adjacency
	selector  *Selector

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer overrides the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithPowerLookup sets the regulatory power source used when normalising
// RSSI across bands. Without one, power differences are taken as zero.
func WithPowerLookup(p PowerLookup) EngineOption {
	return func(e *Engine) {
		e.power = p
	}
}

// WithAdjacency enables the three-link central-adjacency rule.
func WithAdjacency(a Adjacency) EngineOption {
	return func(e *Engine) {
		e.adjacency = a
	}
}

// NewEngine builds an engine over the host's PSOC inventory.
func NewEngine(inv PSOCInventory, cfg PolicyConfig, opts ...EngineOption) *Engine {
	e := &Engine{inventory: inv}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.log == nil {
		e.log = logging.Noop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.selector = NewSelector(cfg, e.adjacency)
	return e
}

// Load runs the per-PSOC load aggregation over the inventory.
func (e *Engine) Load() LoadSnapshot {
	snap := AggregateLoad(e.inventory)
	if e.metrics != nil {
		for id, l := range snap {
			e.metrics.SetPSOCLoad(int(id), l.MLPeers, l.OrdinaryPeers)
		}
	}
	return snap
}

// AllocatePrimary chooses and records the primary PSOC of peer among links.
//
// A peer that already has a primary keeps it; use MigratePrimary to move
// it. A deferred decision means the topology is not usable yet (no links,
// no association link peer, or no eligible link) and nothing was recorded.
func (e *Engine) AllocatePrimary(ctx context.Context, peer *MLPeer, links []LinkCandidate) Decision {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "primary.allocate",
		trace.WithAttributes(attribute.Int("mlo.links", len(links))))
	defer span.End()

	if peer == nil {
		e.finish(ctx, span, e.log, deferred, start, "nil peer")
		return deferred
	}
	span.SetAttributes(attribute.String("mlo.mld", peer.MLDAddr))
	ctx, log := logging.ForPeer(ctx, e.log, peer.MLDAddr)

	if len(links) == 0 {
		e.finish(ctx, span, log, deferred, start, "no link candidates")
		return deferred
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if recorded := peer.PrimaryPSOC(); recorded.Valid() {
		d := Decision{PSOC: recorded, Policy: PolicyRecorded}
		e.finish(ctx, span, log, d, start, "")
		return d
	}

	assocIdx, ok := peer.assocIndexLocked()
	if !ok {
		e.finish(ctx, span, log, deferred, start, "association link peer missing")
		return deferred
	}
	assocLink := peer.entries[assocIdx].LinkID

	in := SelectInput{
		Role:      peer.Role,
		Links:     links,
		AssocLink: assocLink,
		LoadFunc:  e.Load,
	}
	if peer.Role != model.PeerTypeAP {
		in.PeerRSSI = AverageLinkRSSI(e.power, links, assocLink, peer.AssocRSSI)
		peer.avgRSSI.Store(int32(in.PeerRSSI))
	}

	d := e.selector.Select(in)
	if d.Deferred() {
		e.finish(ctx, span, log, d, start, "no eligible link")
		return d
	}
	peer.recordPrimaryLocked(d.PSOC)
	e.finish(ctx, span, log, d, start, "")
	return d
}

func (e *Engine) finish(ctx context.Context, span trace.Span, log logging.Logger, d Decision, start time.Time, reason string) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("mlo.primary_psoc", int(d.PSOC)),
		attribute.String("mlo.policy", string(d.Policy)),
	)
	if e.metrics != nil {
		e.metrics.RecordAllocation(string(d.Policy), d.Deferred(), elapsed)
	}
	if d.Deferred() {
		log.Warn(ctx, "primary assignment deferred", logging.String("reason", reason))
		return
	}
	log.Debug(ctx, "primary assigned",
		logging.Int("psoc", int(d.PSOC)),
		logging.String("policy", string(d.Policy)),
	)
}

// FreePrimary releases the peer's primary bookkeeping: no entry stays
// primary and any in-flight migration is dropped. It is called on
// multi-link peer teardown so later load scans stop attributing the peer.
func (e *Engine) FreePrimary(ctx context.Context, peer *MLPeer) {
	if peer == nil {
		return
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	peer.releaseLocked()
	e.log.Debug(ctx, "primary released", logging.String("mld", peer.MLDAddr))
}

// StartMigration marks psoc as the in-flight primary target. Load scans
// attribute the peer to the target from now on.
func (e *Engine) StartMigration(ctx context.Context, peer *MLPeer, psoc model.PSOCID) error {
	if peer == nil {
		return ErrNilPeer
	}
	if !psoc.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPSOC, psoc)
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if _, ok := peer.indexOnPSOCLocked(psoc); !ok {
		return fmt.Errorf("%w: no link on psoc %d", ErrLinkPeerNotFound, psoc)
	}
	if cur := peer.MigrationTarget(); cur.Valid() && cur != psoc {
		return fmt.Errorf("%w: towards psoc %d", ErrMigrationInProgress, cur)
	}
	peer.migration.Store(int32(psoc))
	e.log.Info(ctx, "primary migration started",
		logging.String("mld", peer.MLDAddr),
		logging.Int("from", int(peer.PrimaryPSOC())),
		logging.Int("to", int(psoc)),
	)
	return nil
}

// AbortMigration drops an in-flight migration target.
func (e *Engine) AbortMigration(ctx context.Context, peer *MLPeer) error {
	if peer == nil {
		return ErrNilPeer
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()

	if !peer.MigrationTarget().Valid() {
		return ErrNoMigration
	}
	peer.migration.Store(int32(model.InvalidPSOC))
	e.recordMigration("aborted")
	e.log.Info(ctx, "primary migration aborted", logging.String("mld", peer.MLDAddr))
	return nil
}

// MigratePrimary makes the link peer on linkID the primary and clears the
// flag everywhere else. It is a successful no-op when that entry already is
// primary.
func (e *Engine) MigratePrimary(ctx context.Context, peer *MLPeer, linkID uint8) error {
	ctx, span := e.tracer.Start(ctx, "primary.migrate",
		trace.WithAttributes(attribute.Int("mlo.link_id", int(linkID))))
	defer span.End()

	if peer == nil {
		span.SetStatus(codes.Error, ErrNilPeer.Error())
		return ErrNilPeer
	}
	span.SetAttributes(attribute.String("mlo.mld", peer.MLDAddr))

	peer.mu.Lock()
	defer peer.mu.Unlock()

	idx := int(linkID)
	if idx >= MaxLinks || !peer.present[idx] {
		err := fmt.Errorf("%w: link %d", ErrLinkPeerNotFound, linkID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.recordMigration("failed")
		return err
	}

	from := peer.PrimaryPSOC()
	if !peer.migrateToLocked(idx) {
		e.recordMigration("noop")
		return nil
	}
	to := peer.entries[idx].PSOC
	span.SetAttributes(attribute.Int("mlo.primary_psoc", int(to)))
	e.recordMigration("migrated")
	e.log.Info(ctx, "primary migrated",
		logging.String("mld", peer.MLDAddr),
		logging.Int("from", int(from)),
		logging.Int("to", int(to)),
		logging.Int("link_id", int(linkID)),
	)
	return nil
}

func (e *Engine) recordMigration(result string) {
	if e.metrics != nil {
		e.metrics.RecordMigration(result)
	}
}
