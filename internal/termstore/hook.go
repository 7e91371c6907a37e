package termstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/taxonomy"
)

// updateTaxonomy is the commit hook. Every committed logic graph version is
// folded into the taxonomy and every committed concept refreshes its status
// edge, in parallel; records merge by union so order does not matter. A
// semantic with an unsupported node kind is logged and skipped without
// failing the others. The snapshot cache is dropped afterwards.
func (s *Service) updateTaxonomy(ctx context.Context, rec ir.CommitRecord) error {
	ctx, span := s.startSpan(ctx, rec)
	defer span.End()

	s.reserve()

	var edges, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Workers, 1) * 4)
	for _, nid := range rec.Nids {
		chron, ok := s.chronicles.Get(nid)
		if !ok {
			continue
		}
		switch chron.Kind {
		case ir.KindConceptChronology:
			g.Go(func() error {
				n, err := s.engine.UpdateConcept(gctx, nid)
				if err != nil {
					return err
				}
				s.metrics.EdgesWritten("concept", n)
				edges.Add(int64(n))
				return nil
			})
		case ir.KindSemanticChronology:
			for _, seq := range rec.Stamps {
				if _, ok := chron.Version(seq); !ok {
					continue
				}
				g.Go(func() error {
					res, err := s.engine.UpdateSemantic(gctx, nid, seq)
					if taxonomy.IsUnsupportedNodeKindError(err) {
						s.logger.Error("taxonomy update aborted for semantic",
							"semantic", nid,
							"commit", rec.Sequence,
							"error", err,
						)
						s.metrics.TaxonomyFailed()
						failed.Add(1)
						return nil
					}
					if err != nil {
						return err
					}
					s.metrics.EdgesWritten("semantic", res.Edges())
					edges.Add(int64(res.Edges()))
					return nil
				})
			}
		}
	}
	err := g.Wait()

	// Whatever was merged is visible now, so drop snapshots even on error.
	s.snapshots.Invalidate(ctx)
	span.SetAttributes(
		attribute.Int64("edges", edges.Load()),
		attribute.Int64("skipped", failed.Load()),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update taxonomy for commit %d: %w", rec.Sequence, err)
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, rec ir.CommitRecord) (context.Context, trace.Span) {
	return tracer.Start(ctx, "termstore.UpdateTaxonomy", trace.WithAttributes(
		attribute.Int64("sequence", rec.Sequence),
		attribute.Int("units", len(rec.Nids)),
	))
}
