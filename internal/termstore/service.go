// Package termstore wires the versioned terminology store together: the
// identifier service, stamps, chronicles, the taxonomy engine, the snapshot
// provider and the commit coordinator, over one durable object store.
//
// Edits go through NewConcept, SetLogicGraph and RetireConcept, become
// visible to taxonomy queries when committed, and reach disk on Sync.
package termstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"

	"github.com/roach88/termgraph/internal/chronicle"
	"github.com/roach88/termgraph/internal/commit"
	"github.com/roach88/termgraph/internal/config"
	"github.com/roach88/termgraph/internal/identifier"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/metrics"
	"github.com/roach88/termgraph/internal/snapshot"
	"github.com/roach88/termgraph/internal/spinemap"
	"github.com/roach88/termgraph/internal/stamp"
	"github.com/roach88/termgraph/internal/store"
	"github.com/roach88/termgraph/internal/taxonomy"
	"github.com/roach88/termgraph/internal/workpool"
)

// DatabaseFile is the SQLite file holding the commit log, created under the
// data directory.
const DatabaseFile = "termgraph.db"

var tracer = otel.Tracer("termgraph/termstore")

// Service is an open terminology store.
type Service struct {
	cfg     config.Config
	mode    snapshot.Mode
	logger  *slog.Logger
	metrics *metrics.Metrics

	db      *store.Store
	objects *store.Sealed
	closers []func() error

	ids         *identifier.Service
	terms       ir.Terms
	stamps      *stamp.Service
	chronicles  *chronicle.Store
	records     *taxonomy.Records
	engine      *taxonomy.Engine
	snapshots   *snapshot.Provider
	coordinator *commit.Coordinator
	pool        *workpool.Pool
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	checkers []commit.Checker
	now      func() int64
}

// WithLogger sets the logger every component logs to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCheckers adds change checkers after the built-in logic graph check.
func WithCheckers(checkers ...commit.Checker) Option {
	return func(o *options) {
		o.checkers = append(o.checkers, checkers...)
	}
}

// WithTimeSource sets where commit times come from.
func WithTimeSource(now func() int64) Option {
	return func(o *options) {
		o.now = now
	}
}

// Open opens or creates the store described by cfg and loads its persisted
// state. Taxonomy records are derived data and are rebuilt from the
// chronicles. Any load failure is unrecoverable.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := snapshot.ParseMode(cfg.TreeMode)
	if err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{cfg: cfg, mode: mode, logger: o.logger, metrics: o.metrics}
	if err := s.open(ctx, o); err != nil {
		s.closeAll()
		return nil, err
	}
	return s, nil
}

func loadFailed(op string, err error) error {
	return &commit.CoordinatorError{Code: commit.CodeLoadFailed, Op: op, Err: err}
}

func (s *Service) open(ctx context.Context, o options) error {
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return loadFailed("create data dir", err)
	}
	db, err := store.Open(filepath.Join(s.cfg.DataDir, DatabaseFile))
	if err != nil {
		return loadFailed("open database", err)
	}
	s.db = db
	s.closers = append(s.closers, db.Close)

	var backend store.ObjectStore
	switch s.cfg.Backend {
	case config.BackendSQLite:
		backend = db
	case config.BackendBadger:
		b, err := store.OpenBadger(store.BadgerConfig{Path: filepath.Join(s.cfg.DataDir, "objects")})
		if err != nil {
			return loadFailed("open badger", err)
		}
		s.closers = append(s.closers, b.Close)
		backend = b
	case config.BackendMemory:
		backend = store.NewMemoryStore()
	default:
		return loadFailed("open", fmt.Errorf("unknown backend %q", s.cfg.Backend))
	}
	sealed, err := store.NewSealed(backend, s.cfg.CompressBlobs)
	if err != nil {
		return loadFailed("open object store", err)
	}
	s.objects = sealed
	s.closers = append(s.closers, sealed.Close)

	ids, _, err := identifier.Load(ctx, sealed, identifier.WithLogger(s.logger))
	if err != nil {
		return loadFailed("load identifiers", err)
	}
	s.ids = ids
	s.terms = ids.Terms()

	stamps, _, err := stamp.Load(ctx, sealed)
	if err != nil {
		return loadFailed("load stamps", err)
	}
	s.stamps = stamps

	chronicles, err := chronicle.Load(ctx, sealed, chronicle.WithSpineSize(s.cfg.SpineSize))
	if err != nil {
		return loadFailed("load chronicles", err)
	}
	s.chronicles = chronicles

	s.records = taxonomy.NewRecords(spinemap.WithSpineSize(s.cfg.SpineSize))
	s.reserve()
	s.engine = taxonomy.NewEngine(s.records, stamps, chronicles, s.terms, taxonomy.WithLogger(s.logger))
	if err := s.engine.Rebuild(ctx); err != nil {
		return loadFailed("rebuild taxonomy", err)
	}

	s.pool = workpool.New(s.cfg.Workers, workpool.WithLogger(s.logger))
	s.closers = append(s.closers, func() error { s.pool.Close(); return nil })

	s.snapshots = snapshot.NewProvider(s.records, stamps, s.terms,
		snapshot.WithLogger(s.logger),
		snapshot.WithMetrics(s.metrics),
	)
	s.closers = append(s.closers, func() error { s.snapshots.Close(); return nil })

	coordOpts := []commit.Option{
		commit.WithLogger(s.logger),
		commit.WithMetrics(s.metrics),
		commit.WithPermits(s.cfg.WritePermits),
		commit.WithPool(s.pool),
		commit.WithHook(s.updateTaxonomy),
		commit.WithCheckers(graphChecker(s.terms)),
		commit.WithCheckers(o.checkers...),
	}
	if o.now != nil {
		coordOpts = append(coordOpts, commit.WithTimeSource(o.now))
	}
	s.coordinator = commit.New(stamps, chronicles, db, sealed, coordOpts...)
	s.closers = append(s.closers, func() error { s.coordinator.Close(); return nil })

	restarted, err := s.coordinator.Load(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("termstore opened",
		"data_dir", s.cfg.DataDir,
		"backend", s.cfg.Backend,
		"restarted", restarted,
		"nids", ids.Len(),
		"stamps", stamps.Len(),
		"chronologies", chronicles.Len(),
		"commit_sequence", s.coordinator.Sequence(),
	)
	return nil
}

// reserve makes every assigned nid addressable in the chronicle and
// taxonomy maps, which are written out of nid order.
func (s *Service) reserve() {
	n := s.ids.Len()
	s.chronicles.Reserve(n)
	s.records.Reserve(n)
}

// graphChecker rejects structurally invalid logic graphs.
func graphChecker(terms ir.Terms) commit.Checker {
	return commit.CheckerFunc(func(_ context.Context, u commit.Unit, _ commit.Phase) error {
		if _, ok := terms.PremiseFor(u.Chronology.Assemblage); !ok {
			return nil
		}
		if err := u.Version.Graph.Validate(); err != nil {
			return fmt.Errorf("logic graph %d: %w", u.Chronology.Nid, err)
		}
		return nil
	})
}

// Sync waits for scheduled work, then writes identifiers, stamps, changed
// chronicles and coordinator state durably. Failures are unrecoverable.
func (s *Service) Sync(ctx context.Context) error {
	fail := func(op string, err error) error {
		return &commit.CoordinatorError{Code: commit.CodeSyncFailed, Op: op, Err: err}
	}
	if err := s.coordinator.Drain(ctx); err != nil {
		return fail("drain", err)
	}
	if err := s.ids.Save(ctx, s.objects); err != nil {
		return fail("save identifiers", err)
	}
	if err := s.stamps.Save(ctx, s.objects); err != nil {
		return fail("save stamps", err)
	}
	written, err := s.chronicles.Save(ctx, s.objects)
	if err != nil {
		return fail("save chronicles", err)
	}
	if err := s.coordinator.Sync(ctx); err != nil {
		return err
	}
	if s.cfg.Backend != config.BackendSQLite {
		if err := s.db.Sync(ctx); err != nil {
			return fail("sync commit log", err)
		}
	}
	s.logger.Debug("termstore synced", "chronologies_written", written)
	return nil
}

// Close syncs and releases every resource. The service is unusable
// afterwards.
func (s *Service) Close(ctx context.Context) error {
	err := s.Sync(ctx)
	return errors.Join(err, s.closeAll())
}

// closeAll releases resources in reverse order of acquisition.
func (s *Service) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Terms returns the well-known concepts.
func (s *Service) Terms() ir.Terms {
	return s.terms
}

// Identifiers returns the identifier service.
func (s *Service) Identifiers() *identifier.Service {
	return s.ids
}

// Stamps returns the stamp table.
func (s *Service) Stamps() *stamp.Service {
	return s.stamps
}

// Coordinator returns the commit coordinator.
func (s *Service) Coordinator() *commit.Coordinator {
	return s.coordinator
}

// Mode returns the configured snapshot strategy.
func (s *Service) Mode() snapshot.Mode {
	return s.mode
}
