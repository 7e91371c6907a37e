// Package commit owns the boundary between in-memory edits and committed,
// durably versioned facts.
//
// Edits enter as uncommitted units. Each unit is checked and written on a
// worker while holding one permit of a bounded write-permit pool. Commit
// swaps in a fresh pool and drains the old one, so it never races the
// writes of the batch it is committing. It then stamps every pending unit of
// one author with a single commit time and logs an immutable commit record.
package commit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/termgraph/internal/chronicle"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/metrics"
	"github.com/roach88/termgraph/internal/notify"
	"github.com/roach88/termgraph/internal/stamp"
	"github.com/roach88/termgraph/internal/store"
	"github.com/roach88/termgraph/internal/workpool"
)

// DefaultPermits bounds concurrent uncommitted writes.
const DefaultPermits = 64

// ErrClosed is returned for edits registered after Close.
var ErrClosed = errors.New("commit: coordinator closed")

var tracer = otel.Tracer("termgraph/commit")

// Stamps is the part of the stamp service the coordinator needs.
type Stamps interface {
	stamp.Lookup
	Commit(seq ir.StampSeq, time int64) (ir.StampSeq, error)
}

// Chronicles is the part of the chronicle store the coordinator writes to.
type Chronicles interface {
	Get(nid ir.Nid) (chronicle.Chronology, bool)
	AddVersion(template chronicle.Chronology, v chronicle.Version) (chronicle.Chronology, error)
	RewriteStamps(nid ir.Nid, mapping map[ir.StampSeq]ir.StampSeq) (chronicle.Chronology, error)
	RemoveVersions(nid ir.Nid, stamps []ir.StampSeq) (int, error)
}

// CommitLog persists commit records.
type CommitLog interface {
	WriteCommitRecord(ctx context.Context, rec ir.CommitRecord) error
	ReadCommitRecords(ctx context.Context, from int64) ([]ir.CommitRecord, error)
	LatestCommitSequence(ctx context.Context) (int64, error)
}

// Hook runs synchronously after a commit is logged and before listeners are
// notified.
type Hook func(ctx context.Context, rec ir.CommitRecord) error

// Coordinator tracks uncommitted units and turns them into commits.
type Coordinator struct {
	stamps     Stamps
	chronicles Chronicles
	log        CommitLog
	objects    store.ObjectStore

	logger   *slog.Logger
	metrics  *metrics.Metrics
	checkers []Checker
	hook     Hook
	now      func() int64

	pool      *workpool.Pool
	ownsPool  bool
	listeners *notify.Registry[ir.CommitRecord]

	clock *Clock
	sets  *uncommittedSets

	// submitted numbers registrations so an author's last edit of a
	// component is the one that commits.
	submitted atomic.Uint64

	maxPermits int64
	admitMu    sync.RWMutex
	closed     bool
	permits    atomic.Pointer[semaphore.Weighted]

	// commitMu serializes commits, cancels and replay subscriptions.
	commitMu sync.Mutex
	lastTime int64

	metaMu   sync.Mutex
	aliases  map[ir.StampSeq][]ir.StampSeq
	comments map[ir.StampSeq]string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics records commit metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithPermits sets the size of the write-permit pool.
func WithPermits(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxPermits = int64(n)
		}
	}
}

// WithPool runs check and write units on p instead of a private pool.
func WithPool(p *workpool.Pool) Option {
	return func(c *Coordinator) {
		c.pool = p
	}
}

// WithCheckers installs change checkers.
func WithCheckers(checkers ...Checker) Option {
	return func(c *Coordinator) {
		c.checkers = append(c.checkers, checkers...)
	}
}

// WithHook installs the post-commit hook.
func WithHook(h Hook) Option {
	return func(c *Coordinator) {
		c.hook = h
	}
}

// WithTimeSource sets where commit times come from. Commit times are forced
// to increase even if the source does not.
func WithTimeSource(now func() int64) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a coordinator. Call Load before use to restore persisted
// state.
func New(stamps Stamps, chronicles Chronicles, log CommitLog, objects store.ObjectStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		stamps:     stamps,
		chronicles: chronicles,
		log:        log,
		objects:    objects,
		logger:     slog.Default(),
		now:        func() int64 { return time.Now().UnixMilli() },
		clock:      NewClock(),
		sets:       newUncommittedSets(),
		maxPermits: DefaultPermits,
		aliases:    make(map[ir.StampSeq][]ir.StampSeq),
		comments:   make(map[ir.StampSeq]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = workpool.New(0, workpool.WithLogger(c.logger))
		c.ownsPool = true
	}
	c.permits.Store(semaphore.NewWeighted(c.maxPermits))
	c.listeners = notify.NewRegistry[ir.CommitRecord]("commit", c.logger)
	return c
}

// AddUncommitted registers u and schedules its check and write. The
// returned future fails with a CHECK_FAILED error when a checker rejects the
// unit; the version is written anyway and stays uncommitted until it is
// amended, canceled, or passes the commit-time checks.
//
// AddUncommitted blocks while every write permit is taken.
func (c *Coordinator) AddUncommitted(ctx context.Context, u Unit) (*workpool.Future, error) {
	return c.add(ctx, u, true)
}

// AddUncommittedNoChecks is AddUncommitted without change checkers, at
// registration or at commit.
func (c *Coordinator) AddUncommittedNoChecks(ctx context.Context, u Unit) (*workpool.Future, error) {
	return c.add(ctx, u, false)
}

func (c *Coordinator) add(ctx context.Context, u Unit, checked bool) (*workpool.Future, error) {
	nid := u.Chronology.Nid
	st, ok := c.stamps.Stamp(u.Version.Stamp)
	if !ok || !st.IsUncommitted() {
		return nil, &CoordinatorError{
			Code: CodeNotUncommitted,
			Op:   "add uncommitted",
			Nid:  nid,
			Err:  fmt.Errorf("stamp %d is not an uncommitted stamp", u.Version.Stamp),
		}
	}

	u.Version.Submitted = c.submitted.Add(1)

	c.admitMu.RLock()
	defer c.admitMu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	sem := c.permits.Load()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("add uncommitted %d: acquire write permit: %w", nid, err)
	}

	set := setFor(u.Chronology.Kind, checked)
	c.sets.begin(set, nid)
	c.metrics.SetUncommitted(set.String(), c.sets.len(set))

	return c.pool.Submit(context.WithoutCancel(ctx), func(ctx context.Context) error {
		defer sem.Release(1)
		defer c.sets.done(nid)

		var checkErr error
		if checked {
			checkErr = c.check(ctx, u, PhaseAddUncommitted)
		}
		if _, err := c.chronicles.AddVersion(u.Chronology, u.Version); err != nil {
			return fmt.Errorf("write uncommitted %d: %w", nid, err)
		}
		return checkErr
	}), nil
}

// drainPermits installs a fresh permit pool and waits until every permit of
// the old one is back, that is until every write registered before the swap
// has finished.
func (c *Coordinator) drainPermits(ctx context.Context) error {
	c.admitMu.Lock()
	old := c.permits.Swap(semaphore.NewWeighted(c.maxPermits))
	c.admitMu.Unlock()

	if err := old.Acquire(ctx, c.maxPermits); err != nil {
		return fmt.Errorf("await uncommitted writes: %w", err)
	}
	return nil
}

// pendingUnit is one component with uncommitted versions of one author.
type pendingUnit struct {
	chronology chronicle.Chronology
	versions   []chronicle.Version
	checked    bool
}

func (p pendingUnit) stamps() []ir.StampSeq {
	out := make([]ir.StampSeq, len(p.versions))
	for i, v := range p.versions {
		out[i] = v.Stamp
	}
	return out
}

// latest returns the version registered last and the stamps of the earlier
// versions it supersedes.
func (p pendingUnit) latest() (chronicle.Version, []ir.StampSeq) {
	last := p.versions[0]
	for _, v := range p.versions[1:] {
		if v.Submitted > last.Submitted || (v.Submitted == last.Submitted && v.Stamp > last.Stamp) {
			last = v
		}
	}
	var superseded []ir.StampSeq
	for _, v := range p.versions {
		if v.Stamp != last.Stamp {
			superseded = append(superseded, v.Stamp)
		}
	}
	return last, superseded
}

// pendingFor collects the uncommitted versions of author, restricted to
// only unless it is NoNid. Units come back in nid order.
func (c *Coordinator) pendingFor(author, only ir.Nid) []pendingUnit {
	byNid := make(map[ir.Nid]*pendingUnit)
	skip := make(map[ir.Nid]bool)
	for set := range setCount {
		for _, nid := range c.sets.members(set) {
			if (only != ir.NoNid && nid != only) || skip[nid] {
				continue
			}
			p, ok := byNid[nid]
			if !ok {
				chron, found := c.chronicles.Get(nid)
				versions := c.uncommittedVersions(chron, author)
				if !found || len(versions) == 0 {
					skip[nid] = true
					continue
				}
				p = &pendingUnit{chronology: chron, versions: versions}
				byNid[nid] = p
			}
			p.checked = p.checked || set.Checked()
		}
	}

	out := make([]pendingUnit, 0, len(byNid))
	for _, p := range byNid {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b pendingUnit) int { return cmp.Compare(a.chronology.Nid, b.chronology.Nid) })
	return out
}

// uncommittedVersions returns the versions of chron carrying an uncommitted
// stamp of author. NoNid matches every author.
func (c *Coordinator) uncommittedVersions(chron chronicle.Chronology, author ir.Nid) []chronicle.Version {
	var out []chronicle.Version
	for _, v := range chron.Versions {
		st, ok := c.stamps.Stamp(v.Stamp)
		if !ok || !st.IsUncommitted() {
			continue
		}
		if author == ir.NoNid || st.Author == author {
			out = append(out, v)
		}
	}
	return out
}

// settle drops nid from the uncommitted sets once no author has anything
// pending on it.
func (c *Coordinator) settle(nid ir.Nid) {
	if chron, ok := c.chronicles.Get(nid); ok && len(c.uncommittedVersions(chron, ir.NoNid)) > 0 {
		return
	}
	c.sets.removeIdle(nid)
}

func (c *Coordinator) reportSets() {
	for set := range setCount {
		c.metrics.SetUncommitted(set.String(), c.sets.len(set))
	}
}

func (c *Coordinator) nextTime() int64 {
	t := c.now()
	if t <= c.lastTime {
		t = c.lastTime + 1
	}
	c.lastTime = t
	return t
}

// Commit commits every uncommitted unit of ec's author. Units of other
// authors are left untouched. When the author has nothing pending, Commit
// returns an empty record without consuming a sequence number.
//
// A unit the author edited more than once commits only its last registered
// version; the earlier ones are dropped.
//
// If a commit-time check fails nothing is committed and the error reports
// every failing unit. A hook failure is returned together with the record,
// which is already durable.
func (c *Coordinator) Commit(ctx context.Context, ec ir.EditCoordinate, comment string) (ir.CommitRecord, error) {
	ctx, span := tracer.Start(ctx, "commit.Commit", trace.WithAttributes(attribute.Int("author", int(ec.Author))))
	defer span.End()

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	start := time.Now()
	comment = norm.NFC.String(comment)
	if err := c.drainPermits(ctx); err != nil {
		span.RecordError(err)
		return ir.CommitRecord{}, fmt.Errorf("commit: %w", err)
	}

	units := c.pendingFor(ec.Author, ir.NoNid)
	if len(units) == 0 {
		return ir.CommitRecord{Author: ec.Author, Comment: comment}, nil
	}

	kept := make([]chronicle.Version, len(units))
	superseded := make([][]ir.StampSeq, len(units))
	for i, u := range units {
		kept[i], superseded[i] = u.latest()
	}

	var failures []error
	for i, u := range units {
		if !u.checked {
			continue
		}
		if err := c.check(ctx, Unit{Chronology: u.chronology, Version: kept[i]}, PhaseCommit); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		err := errors.Join(failures...)
		span.RecordError(err)
		return ir.CommitRecord{}, fmt.Errorf("commit: %w", err)
	}

	rec := ir.CommitRecord{
		Sequence: c.clock.Next(),
		Time:     c.nextTime(),
		Author:   ec.Author,
		Comment:  comment,
	}

	mapping := make(map[ir.StampSeq]ir.StampSeq)
	for _, v := range kept {
		if _, done := mapping[v.Stamp]; done {
			continue
		}
		committed, err := c.stamps.Commit(v.Stamp, rec.Time)
		if err != nil {
			return ir.CommitRecord{}, fmt.Errorf("commit %d: %w", rec.Sequence, err)
		}
		mapping[v.Stamp] = committed
	}

	// Units are rewritten one at a time; on failure the ones already
	// rewritten go back to their uncommitted stamps.
	var rewritten []int
	rollback := func() {
		for _, i := range rewritten {
			nid := units[i].chronology.Nid
			back := map[ir.StampSeq]ir.StampSeq{mapping[kept[i].Stamp]: kept[i].Stamp}
			if _, err := c.chronicles.RewriteStamps(nid, back); err != nil {
				c.logger.Error("roll back commit", "sequence", rec.Sequence, "nid", nid, "error", err)
			}
		}
	}

	var concepts, semantics int
	for i, u := range units {
		nid := u.chronology.Nid
		if _, err := c.chronicles.RewriteStamps(nid, map[ir.StampSeq]ir.StampSeq{kept[i].Stamp: mapping[kept[i].Stamp]}); err != nil {
			rollback()
			span.RecordError(err)
			return ir.CommitRecord{}, fmt.Errorf("commit %d: %w", rec.Sequence, err)
		}
		rewritten = append(rewritten, i)
		rec.Nids = append(rec.Nids, nid)
		if u.chronology.Kind == ir.KindConceptChronology {
			concepts++
		} else {
			semantics++
		}
	}
	for _, committed := range mapping {
		rec.Stamps = append(rec.Stamps, committed)
	}
	slices.Sort(rec.Stamps)

	id, err := ir.CommitID(rec)
	if err != nil {
		rollback()
		return ir.CommitRecord{}, fmt.Errorf("commit %d: %w", rec.Sequence, err)
	}
	rec.ID = id
	if err := c.log.WriteCommitRecord(ctx, rec); err != nil {
		rollback()
		span.RecordError(err)
		return ir.CommitRecord{}, fmt.Errorf("commit %d: %w", rec.Sequence, err)
	}

	for i, u := range units {
		nid := u.chronology.Nid
		if len(superseded[i]) > 0 {
			if _, err := c.chronicles.RemoveVersions(nid, superseded[i]); err != nil {
				c.logger.Error("drop superseded versions", "sequence", rec.Sequence, "nid", nid, "error", err)
			}
		}
		c.settle(nid)
	}

	if comment != "" {
		c.metaMu.Lock()
		for _, s := range rec.Stamps {
			c.comments[s] = comment
		}
		c.metaMu.Unlock()
	}

	c.metrics.ObserveCommit(time.Since(start), concepts, semantics)
	c.reportSets()
	span.SetAttributes(
		attribute.Int64("sequence", rec.Sequence),
		attribute.Int("units", len(rec.Nids)),
	)
	c.logger.Info("commit",
		"sequence", rec.Sequence,
		"author", rec.Author,
		"units", len(rec.Nids),
		"stamps", len(rec.Stamps),
	)

	var hookErr error
	if c.hook != nil {
		if err := c.hook(ctx, rec); err != nil {
			span.RecordError(err)
			hookErr = fmt.Errorf("commit %d: hook: %w", rec.Sequence, err)
		}
	}
	c.listeners.Notify(ctx, rec)
	return rec, hookErr
}

// Cancel reverts every uncommitted version of ec's author and returns how
// many versions were dropped. Other authors' edits and committed versions
// are never touched.
func (c *Coordinator) Cancel(ctx context.Context, ec ir.EditCoordinate) (int, error) {
	return c.cancel(ctx, ec.Author, ir.NoNid)
}

// CancelUnit is Cancel restricted to one component. It fails with
// WRONG_AUTHOR when the component only has other authors' edits pending.
func (c *Coordinator) CancelUnit(ctx context.Context, ec ir.EditCoordinate, nid ir.Nid) (int, error) {
	return c.cancel(ctx, ec.Author, nid)
}

func (c *Coordinator) cancel(ctx context.Context, author, only ir.Nid) (int, error) {
	ctx, span := tracer.Start(ctx, "commit.Cancel", trace.WithAttributes(attribute.Int("author", int(author))))
	defer span.End()

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	if err := c.drainPermits(ctx); err != nil {
		return 0, fmt.Errorf("cancel: %w", err)
	}

	units := c.pendingFor(author, only)
	if only != ir.NoNid && len(units) == 0 {
		if chron, ok := c.chronicles.Get(only); ok && len(c.uncommittedVersions(chron, ir.NoNid)) > 0 {
			return 0, &CoordinatorError{
				Code: CodeWrongAuthor,
				Op:   "cancel",
				Nid:  only,
				Err:  fmt.Errorf("no uncommitted edits by author %d", author),
			}
		}
	}

	canceled := 0
	for _, u := range units {
		nid := u.chronology.Nid
		if _, err := c.chronicles.RemoveVersions(nid, u.stamps()); err != nil {
			return canceled, fmt.Errorf("cancel %d: %w", nid, err)
		}
		canceled += len(u.versions)
		c.settle(nid)
	}

	c.metrics.ObserveCancel()
	c.reportSets()
	c.logger.Info("uncommitted edits canceled", "author", author, "units", len(units), "versions", canceled)
	return canceled, nil
}

// Uncommitted returns the members of one uncommitted set in nid order.
func (c *Coordinator) Uncommitted(set Set) []ir.Nid {
	out := c.sets.members(set)
	slices.Sort(out)
	return out
}

// IsUncommitted reports whether nid is in any uncommitted set.
func (c *Coordinator) IsUncommitted(nid ir.Nid) bool {
	for set := range setCount {
		if c.sets.contains(set, nid) {
			return true
		}
	}
	return false
}

// Sequence returns the last commit sequence handed out.
func (c *Coordinator) Sequence() int64 {
	return c.clock.Current()
}

// AddAlias records alias as a secondary identifier of seq.
func (c *Coordinator) AddAlias(seq, alias ir.StampSeq) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if !slices.Contains(c.aliases[seq], alias) {
		c.aliases[seq] = append(c.aliases[seq], alias)
	}
}

// Aliases returns the aliases of seq in ascending order.
func (c *Coordinator) Aliases(seq ir.StampSeq) []ir.StampSeq {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	out := slices.Clone(c.aliases[seq])
	slices.Sort(out)
	return out
}

// AddComment attaches free text to seq, replacing any earlier comment.
func (c *Coordinator) AddComment(seq ir.StampSeq, comment string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.comments[seq] = norm.NFC.String(comment)
}

// Comment returns the comment attached to seq.
func (c *Coordinator) Comment(seq ir.StampSeq) (string, bool) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	s, ok := c.comments[seq]
	return s, ok
}

// OnCommit registers fn for every future commit. Delivery is asynchronous
// and ordered.
func (c *Coordinator) OnCommit(fn func(ir.CommitRecord)) *notify.Subscription[ir.CommitRecord] {
	return c.listeners.Subscribe(fn)
}

// OnCommitFrom registers fn and first replays every logged commit with
// sequence >= from. Replayed and live records reach fn in sequence order
// without gaps or duplicates.
func (c *Coordinator) OnCommitFrom(ctx context.Context, from int64, fn func(ir.CommitRecord)) (*notify.Subscription[ir.CommitRecord], error) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	history, err := c.log.ReadCommitRecords(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("replay commits from %d: %w", from, err)
	}
	sub := c.listeners.Subscribe(fn)
	c.listeners.Deliver(ctx, sub, history)
	return sub, nil
}

// Drain waits for scheduled writes and listener deliveries.
func (c *Coordinator) Drain(ctx context.Context) error {
	if err := c.pool.Drain(ctx); err != nil {
		return err
	}
	return c.listeners.Drain(ctx)
}

// Close stops accepting edits, then waits for scheduled work and
// deliveries to finish.
func (c *Coordinator) Close() {
	c.admitMu.Lock()
	c.closed = true
	c.admitMu.Unlock()
	if c.ownsPool {
		c.pool.Close()
	}
	c.listeners.Close()
}
