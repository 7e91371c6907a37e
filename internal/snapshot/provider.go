package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/metrics"
	"github.com/roach88/termgraph/internal/notify"
	"github.com/roach88/termgraph/internal/stamp"
	"github.com/roach88/termgraph/internal/taxonomy"
)

var tracer = otel.Tracer("termgraph/snapshot")

// Provider hands out snapshots and caches them per premise and coordinate.
//
// Tree builds are single-flight: the first request for a key starts the
// build and later requests attach to it. Every cache key embeds the
// generation, so a build started before Invalidate can never be cached
// after it.
type Provider struct {
	records *taxonomy.Records
	stamps  stamp.Lookup
	terms   ir.Terms
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu         sync.Mutex
	generation uint64
	trees      map[string]*Tree
	directs    map[string]*Direct

	refresh *notify.Registry[uint64]
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithMetrics records cache and build metrics.
func WithMetrics(m *metrics.Metrics) ProviderOption {
	return func(p *Provider) {
		p.metrics = m
	}
}

// NewProvider creates a provider over records.
func NewProvider(records *taxonomy.Records, stamps stamp.Lookup, terms ir.Terms, opts ...ProviderOption) *Provider {
	p := &Provider{
		records: records,
		stamps:  stamps,
		terms:   terms,
		logger:  slog.Default(),
		trees:   make(map[string]*Tree),
		directs: make(map[string]*Direct),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.refresh = notify.NewRegistry[uint64]("snapshot-refresh", p.logger)
	return p
}

func cacheKey(premise ir.PremiseType, coord ir.Coordinate) string {
	return premise.String() + "|" + coord.Key()
}

func (p *Provider) source(premise ir.PremiseType, coord ir.Coordinate) source {
	return source{records: p.records, stamps: p.stamps, terms: p.terms, premise: premise, coord: coord}
}

// Generation returns the number of invalidations so far.
func (p *Provider) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Snapshot returns a view for premise and coord. In ModeTree a cached tree is
// returned when there is one; otherwise a build is started and a view that
// answers directly until the build completes is returned.
func (p *Provider) Snapshot(premise ir.PremiseType, coord ir.Coordinate, mode Mode) Snapshot {
	key := cacheKey(premise, coord)
	if mode == ModeDirect {
		return p.direct(key, premise, coord)
	}

	p.mu.Lock()
	gen := p.generation
	tree, ok := p.trees[key]
	p.mu.Unlock()
	if ok {
		p.metrics.SnapshotRequest(mode.String(), "hit")
		return tree
	}
	p.metrics.SnapshotRequest(mode.String(), "pending")

	pending := &pendingTree{direct: p.direct(key, premise, coord)}
	ch := p.startBuild(key, gen, premise, coord)
	go func() {
		res := <-ch
		if res.Err != nil {
			p.logger.Error("taxonomy tree build failed", "premise", premise, "coordinate", coord.Key(), "error", res.Err)
			return
		}
		pending.tree.Store(res.Val.(*Tree))
	}()
	return pending
}

// Tree returns the tree for premise and coord, waiting for a build if needed.
func (p *Provider) Tree(ctx context.Context, premise ir.PremiseType, coord ir.Coordinate) (*Tree, error) {
	key := cacheKey(premise, coord)

	p.mu.Lock()
	gen := p.generation
	tree, ok := p.trees[key]
	p.mu.Unlock()
	if ok {
		p.metrics.SnapshotRequest(ModeTree.String(), "hit")
		return tree, nil
	}
	p.metrics.SnapshotRequest(ModeTree.String(), "miss")

	select {
	case res := <-p.startBuild(key, gen, premise, coord):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Tree), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) direct(key string, premise ir.PremiseType, coord ir.Coordinate) *Direct {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.directs[key]; ok {
		p.metrics.SnapshotRequest(ModeDirect.String(), "hit")
		return d
	}
	p.metrics.SnapshotRequest(ModeDirect.String(), "miss")
	d := newDirect(p.source(premise, coord), p.logger)
	p.directs[key] = d
	return d
}

// startBuild joins or starts the build for key in generation gen. A build
// whose generation has been invalidated by the time it finishes is handed to
// its waiters but not cached.
func (p *Provider) startBuild(key string, gen uint64, premise ir.PremiseType, coord ir.Coordinate) <-chan singleflight.Result {
	flightKey := fmt.Sprintf("%d|%s", gen, key)
	return p.group.DoChan(flightKey, func() (any, error) {
		tree, err := p.build(gen, premise, coord)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.generation != gen {
			return tree, nil
		}
		if existing, ok := p.trees[key]; ok {
			return existing, nil
		}
		p.trees[key] = tree
		return tree, nil
	})
}

func (p *Provider) build(gen uint64, premise ir.PremiseType, coord ir.Coordinate) (*Tree, error) {
	ctx, span := tracer.Start(p.ctx, "snapshot.BuildTree",
		trace.WithAttributes(
			attribute.String("premise", premise.String()),
			attribute.String("coordinate", coord.Key()),
			attribute.Int64("generation", int64(gen)),
		),
	)
	defer span.End()

	start := time.Now()
	tree, err := buildTree(ctx, p.source(premise, coord), gen, p.logger)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	elapsed := time.Since(start)
	p.metrics.ObserveTreeBuild(elapsed)
	span.SetAttributes(attribute.Int("concepts", tree.Len()))
	p.logger.Debug("taxonomy tree built",
		"premise", premise,
		"coordinate", coord.Key(),
		"concepts", tree.Len(),
		"duration", elapsed,
	)
	return tree, nil
}

// Invalidate drops every cached snapshot of both strategies and notifies
// refresh listeners with the new generation.
func (p *Provider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.trees = make(map[string]*Tree)
	p.directs = make(map[string]*Direct)
	p.mu.Unlock()

	p.metrics.Invalidated()
	p.logger.Debug("snapshot cache invalidated", "generation", gen)
	p.refresh.Notify(ctx, gen)
}

// OnRefresh registers fn to be called with the new generation after every
// Invalidate.
func (p *Provider) OnRefresh(fn func(generation uint64)) *notify.Subscription[uint64] {
	return p.refresh.Subscribe(fn)
}

// Drain waits for pending refresh notifications.
func (p *Provider) Drain(ctx context.Context) error {
	return p.refresh.Drain(ctx)
}

// Close cancels running builds and stops refresh delivery.
func (p *Provider) Close() {
	p.cancel()
	p.refresh.Close()
}

// pendingTree answers directly until its tree build completes, then
// switches to the tree.
type pendingTree struct {
	direct *Direct
	tree   atomic.Pointer[Tree]
}

func (s *pendingTree) current() Snapshot {
	if t := s.tree.Load(); t != nil {
		return t
	}
	return s.direct
}

// Ready reports whether the tree has been built.
func (s *pendingTree) Ready() bool { return s.tree.Load() != nil }

func (s *pendingTree) Premise() ir.PremiseType             { return s.direct.Premise() }
func (s *pendingTree) Coordinate() ir.Coordinate           { return s.direct.Coordinate() }
func (s *pendingTree) Parents(c ir.Nid) []ir.Nid           { return s.current().Parents(c) }
func (s *pendingTree) Children(c ir.Nid) []ir.Nid          { return s.current().Children(c) }
func (s *pendingTree) IsChildOf(child, parent ir.Nid) bool { return s.current().IsChildOf(child, parent) }
func (s *pendingTree) IsKindOf(concept, anc ir.Nid) bool   { return s.current().IsKindOf(concept, anc) }
func (s *pendingTree) Roots() []ir.Nid                     { return s.current().Roots() }
