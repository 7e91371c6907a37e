package commit

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/termgraph/internal/ir"
)

// Object keys of the persisted coordinator state. Each part is written
// independently.
const (
	sequenceKey  = "commit/sequence"
	aliasesKey   = "commit/aliases"
	commentsKey  = "commit/comments"
	setKeyPrefix = "commit/uncommitted/"
)

type sequenceState struct {
	Sequence int64 `msgpack:"seq"`
	LastTime int64 `msgpack:"time"`
	// Submitted is the last registration number handed out.
	Submitted uint64 `msgpack:"sub,omitempty"`
}

// Sync waits for every scheduled write and delivery, then writes the
// sequence counter, the uncommitted sets, and the alias and comment maps
// durably. Failures are SYNC_FAILED and unrecoverable.
func (c *Coordinator) Sync(ctx context.Context) error {
	fail := func(err error) error {
		return &CoordinatorError{Code: CodeSyncFailed, Op: "sync", Err: err}
	}
	if err := c.Drain(ctx); err != nil {
		return fail(err)
	}

	c.commitMu.Lock()
	seq := sequenceState{Sequence: c.clock.Current(), LastTime: c.lastTime, Submitted: c.submitted.Load()}
	c.commitMu.Unlock()

	c.metaMu.Lock()
	aliases, aliasErr := msgpack.Marshal(c.aliases)
	comments, commentErr := msgpack.Marshal(c.comments)
	c.metaMu.Unlock()
	if aliasErr != nil {
		return fail(fmt.Errorf("encode aliases: %w", aliasErr))
	}
	if commentErr != nil {
		return fail(fmt.Errorf("encode comments: %w", commentErr))
	}
	seqData, err := msgpack.Marshal(&seq)
	if err != nil {
		return fail(fmt.Errorf("encode sequence: %w", err))
	}

	writes := map[string][]byte{
		aliasesKey:  aliases,
		commentsKey: comments,
	}
	for set := range setCount {
		writes[setKeyPrefix+set.String()] = c.sets.encode(set)
	}
	for key, value := range writes {
		if err := c.objects.Put(ctx, key, value); err != nil {
			return fail(err)
		}
	}
	// The sequence goes last: its presence marks a complete state.
	if err := c.objects.Put(ctx, sequenceKey, seqData); err != nil {
		return fail(err)
	}
	if err := c.objects.Sync(ctx); err != nil {
		return fail(err)
	}
	c.logger.Debug("commit coordinator synced", "sequence", seq.Sequence)
	return nil
}

// Load restores persisted state. It reports false on a first run, when
// nothing has been synced yet; the sequence still resumes after the last
// logged commit. Failures are LOAD_FAILED and unrecoverable.
func (c *Coordinator) Load(ctx context.Context) (bool, error) {
	fail := func(err error) (bool, error) {
		return false, &CoordinatorError{Code: CodeLoadFailed, Op: "load", Err: err}
	}

	latest, err := c.log.LatestCommitSequence(ctx)
	if err != nil {
		return fail(err)
	}
	var latestTime int64
	if latest > 0 {
		recs, err := c.log.ReadCommitRecords(ctx, latest)
		if err != nil {
			return fail(err)
		}
		for _, r := range recs {
			latestTime = max(latestTime, r.Time)
		}
	}

	data, ok, err := c.objects.Get(ctx, sequenceKey)
	if err != nil {
		return fail(err)
	}
	var seq sequenceState
	if ok {
		if err := msgpack.Unmarshal(data, &seq); err != nil {
			return fail(fmt.Errorf("decode sequence: %w", err))
		}
	}

	c.commitMu.Lock()
	c.clock.advanceTo(max(seq.Sequence, latest))
	c.lastTime = max(c.lastTime, seq.LastTime, latestTime)
	c.commitMu.Unlock()
	if seq.Submitted > c.submitted.Load() {
		c.submitted.Store(seq.Submitted)
	}
	if !ok {
		return false, nil
	}

	for set := range setCount {
		data, found, err := c.objects.Get(ctx, setKeyPrefix+set.String())
		if err != nil {
			return fail(err)
		}
		if found {
			c.sets.decode(set, data)
		}
	}

	aliases := make(map[ir.StampSeq][]ir.StampSeq)
	comments := make(map[ir.StampSeq]string)
	if err := c.loadMap(ctx, aliasesKey, &aliases); err != nil {
		return fail(err)
	}
	if err := c.loadMap(ctx, commentsKey, &comments); err != nil {
		return fail(err)
	}
	c.metaMu.Lock()
	c.aliases = aliases
	c.comments = comments
	c.metaMu.Unlock()

	c.reportSets()
	c.logger.Info("commit coordinator loaded",
		"sequence", c.clock.Current(),
		"uncommitted", len(c.pendingFor(ir.NoNid, ir.NoNid)),
	)
	return true, nil
}

func (c *Coordinator) loadMap(ctx context.Context, key string, into any) error {
	data, ok, err := c.objects.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if err := msgpack.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
