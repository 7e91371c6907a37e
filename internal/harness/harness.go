package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/termgraph/internal/compiler"
	"github.com/roach88/termgraph/internal/config"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/termstore"
	"github.com/roach88/termgraph/internal/testutil"
)

// Harness executes one scenario against its own store.
type Harness struct {
	svc     *termstore.Service
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	authors map[string]ir.Nid
	last    ir.CommitRecord
	result  *Result
}

// Run executes a scenario and returns its result. The returned error covers
// setup and step failures; failed assertions are reported in the result.
//
// Execution flow:
//  1. Open a fresh store in a temporary directory
//  2. Stage and commit the definitions in the scenario's specs
//  3. Execute each step
//  4. Render the latest stated taxonomy and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "termgraph-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Backend = config.BackendMemory
	cfg.Workers = 2

	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := termstore.Open(ctx, cfg,
		termstore.WithLogger(logger),
		termstore.WithTimeSource(clock.Next),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer svc.Close(ctx)

	h := &Harness{
		svc:     svc,
		clock:   clock,
		logger:  logger,
		authors: make(map[string]ir.Nid),
		result:  NewResult(),
	}

	if len(scenario.Specs) > 0 {
		if err := h.loadSpecs(ctx, scenario.Specs); err != nil {
			return nil, fmt.Errorf("failed to load specs: %w", err)
		}
	}
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	path := svc.Terms().DevelopmentPath
	tree, err := svc.Tree(ctx, ir.PremiseStated, ir.LatestCoordinate(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build taxonomy: %w", err)
	}
	h.result.Tree = tree.Render(svc.Name)

	actx := &AssertionContext{
		Service: svc,
		Ctx:     ctx,
		Marks:   h.result.Marks,
		Path:    path,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) loadSpecs(ctx context.Context, paths []string) error {
	defs, errs := compiler.LoadFiles(paths...)
	if len(errs) > 0 {
		return errs[0]
	}
	if err := h.define(ctx, 0, "", defs); err != nil {
		return err
	}
	return h.commit(ctx, 0, "", "specs")
}

// execute runs one step.
func (h *Harness) execute(ctx context.Context, n int, step Step) error {
	var err error
	switch {
	case len(step.Define) > 0:
		err = h.define(ctx, n, step.Author, step.Define)
	case step.Retire != "":
		err = h.retire(ctx, n, step.Author, step.Retire)
	case step.Commit != nil:
		err = h.commit(ctx, n, step.Author, *step.Commit)
	case step.Cancel:
		err = h.cancel(ctx, n, step.Author)
	}
	if err != nil {
		return err
	}
	if step.Mark != "" {
		h.result.Marks[step.Mark] = h.last.Time
		h.result.record(n, "mark", "%s=%d", step.Mark, h.last.Time)
	}
	h.logger.Info("scenario step completed", "step", n)
	return nil
}

// editor returns the edit coordinate of the named author. Authors other than
// the default user are created on first use.
func (h *Harness) editor(author string) (ir.EditCoordinate, error) {
	ec := h.svc.Terms().DefaultEditCoordinate()
	if author == "" {
		return ec, nil
	}
	nid, ok := h.authors[author]
	if !ok {
		var err error
		nid, err = h.svc.Identifiers().NidFor(termstore.ConceptUUID("author/" + author))
		if err != nil {
			return ec, err
		}
		if err := h.svc.Identifiers().SetName(nid, author); err != nil {
			return ec, err
		}
		h.authors[author] = nid
	}
	ec.Author = nid
	return ec, nil
}

func by(author string) string {
	if author == "" {
		return ""
	}
	return " (" + author + ")"
}

func (h *Harness) define(ctx context.Context, n int, author string, defs []compiler.Definition) error {
	ec, err := h.editor(author)
	if err != nil {
		return err
	}
	edit, err := h.svc.Define(ctx, ec, defs...)
	if err != nil {
		return err
	}
	if err := edit.Wait(ctx); err != nil {
		return err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	h.result.record(n, "define", "%s%s", strings.Join(names, ", "), by(author))
	return nil
}

func (h *Harness) retire(ctx context.Context, n int, author, name string) error {
	ec, err := h.editor(author)
	if err != nil {
		return err
	}
	concept, ok := h.svc.Concept(name)
	if !ok {
		return fmt.Errorf("retire: unknown concept %q", name)
	}
	edit, err := h.svc.RetireConcept(ctx, ec, concept)
	if err != nil {
		return err
	}
	if err := edit.Wait(ctx); err != nil {
		return err
	}
	h.result.record(n, "retire", "%s%s", name, by(author))
	return nil
}

func (h *Harness) commit(ctx context.Context, n int, author, comment string) error {
	ec, err := h.editor(author)
	if err != nil {
		return err
	}
	rec, err := h.svc.Commit(ctx, ec, comment)
	if err != nil {
		return err
	}
	if rec.IsEmpty() {
		h.result.record(n, "commit", "empty%s", by(author))
		return nil
	}
	h.last = rec
	h.result.record(n, "commit", "seq=%d time=%d units=%d %q%s", rec.Sequence, rec.Time, len(rec.Nids), rec.Comment, by(author))
	return nil
}

func (h *Harness) cancel(ctx context.Context, n int, author string) error {
	ec, err := h.editor(author)
	if err != nil {
		return err
	}
	count, err := h.svc.Cancel(ctx, ec)
	if err != nil {
		return err
	}
	h.result.record(n, "cancel", "versions=%d%s", count, by(author))
	return nil
}
