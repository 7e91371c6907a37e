package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/termstore"
)

// QueryOptions holds the position flags shared by the taxonomy queries.
type QueryOptions struct {
	*RootOptions
	At      int64  // commit time; 0 means the latest coordinate
	Premise string // "stated" | "inferred"
}

func (o *QueryOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&o.At, "at", 0, "commit time to query at (default latest)")
	cmd.Flags().StringVar(&o.Premise, "premise", "stated", "premise (stated|inferred)")
}

func (o *QueryOptions) premise() (ir.PremiseType, error) {
	switch o.Premise {
	case "stated":
		return ir.PremiseStated, nil
	case "inferred":
		return ir.PremiseInferred, nil
	}
	return 0, NewExitError(ExitCommandError, ErrCodeBadArgument, fmt.Sprintf("invalid premise %q: must be stated or inferred", o.Premise))
}

func (o *QueryOptions) coordinate(svc *termstore.Service) (ir.Coordinate, error) {
	path := svc.Terms().DevelopmentPath
	switch {
	case o.At == 0:
		return ir.LatestCoordinate(path), nil
	case o.At < 0:
		return ir.Coordinate{}, NewExitError(ExitCommandError, ErrCodeBadArgument, fmt.Sprintf("invalid --at %d", o.At))
	}
	return ir.CoordinateAt(path, o.At), nil
}

// ConceptList is the output of parents, children and roots.
type ConceptList struct {
	Concept  string   `json:"concept,omitempty"`
	Relation string   `json:"relation"`
	Concepts []string `json:"concepts"`
}

// query opens the store, resolves the position flags and runs fn.
func (o *QueryOptions) query(cmd *cobra.Command, fn func(q *queryContext) error) error {
	formatter := o.formatter(cmd)
	premise, err := o.premise()
	if err != nil {
		return formatter.Fail(err, nil)
	}
	svc, err := o.openStore(cmd.Context(), cmd)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	defer svc.Close(cmd.Context())
	coord, err := o.coordinate(svc)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	q := &queryContext{svc: svc, premise: premise, coord: coord, formatter: formatter}
	if err := fn(q); err != nil {
		return formatter.Fail(err, nil)
	}
	return nil
}

type queryContext struct {
	svc       *termstore.Service
	premise   ir.PremiseType
	coord     ir.Coordinate
	formatter *OutputFormatter
}

func (q *queryContext) concept(name string) (ir.Nid, error) {
	nid, ok := q.svc.Concept(name)
	if !ok {
		return ir.NoNid, NewExitError(ExitCommandError, ErrCodeUnknown, fmt.Sprintf("unknown concept %q", name))
	}
	return nid, nil
}

func (q *queryContext) names(nids []ir.Nid) []string {
	out := make([]string, len(nids))
	for i, n := range nids {
		out[i] = q.svc.Name(n)
	}
	slices.Sort(out)
	return out
}

func (q *queryContext) emitList(list ConceptList) error {
	return q.formatter.Emit(list, func(w io.Writer) {
		for _, name := range list.Concepts {
			fmt.Fprintln(w, name)
		}
	})
}

func newRelationCommand(rootOpts *RootOptions, relation, short string) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           relation + " <concept>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.query(cmd, func(q *queryContext) error {
				concept, err := q.concept(args[0])
				if err != nil {
					return err
				}
				snap := q.svc.Snapshot(q.premise, q.coord, q.svc.Mode())
				nids := snap.Parents(concept)
				if relation == "children" {
					nids = snap.Children(concept)
				}
				return q.emitList(ConceptList{Concept: args[0], Relation: relation, Concepts: q.names(nids)})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewParentsCommand creates the parents command.
func NewParentsCommand(rootOpts *RootOptions) *cobra.Command {
	return newRelationCommand(rootOpts, "parents", "List the direct parents of a concept")
}

// NewChildrenCommand creates the children command.
func NewChildrenCommand(rootOpts *RootOptions) *cobra.Command {
	return newRelationCommand(rootOpts, "children", "List the direct children of a concept")
}

// KindOfOutput is the output of kindof.
type KindOfOutput struct {
	Concept  string `json:"concept"`
	Ancestor string `json:"ancestor"`
	Holds    bool   `json:"holds"`
}

// NewKindOfCommand creates the kindof command.
func NewKindOfCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "kindof <concept> <ancestor>",
		Short: "Test whether a concept is subsumed by another",
		Long: `Report whether <ancestor> is reachable from <concept> over parent
edges. Every concept is a kind of itself.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.query(cmd, func(q *queryContext) error {
				concept, err := q.concept(args[0])
				if err != nil {
					return err
				}
				ancestor, err := q.concept(args[1])
				if err != nil {
					return err
				}
				out := KindOfOutput{
					Concept:  args[0],
					Ancestor: args[1],
					Holds:    q.svc.Snapshot(q.premise, q.coord, q.svc.Mode()).IsKindOf(concept, ancestor),
				}
				return q.formatter.Emit(out, func(w io.Writer) {
					fmt.Fprintln(w, out.Holds)
				})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewRootsCommand creates the roots command.
func NewRootsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "roots",
		Short:         "List concepts that have children but no parents",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.query(cmd, func(q *queryContext) error {
				roots := q.svc.Snapshot(q.premise, q.coord, q.svc.Mode()).Roots()
				return q.emitList(ConceptList{Relation: "roots", Concepts: q.names(roots)})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// TreeOutput is the output of tree.
type TreeOutput struct {
	Generation uint64 `json:"generation"`
	Concepts   int    `json:"concepts"`
	Rendering  string `json:"rendering"`
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "tree",
		Short:         "Print the taxonomy as an indented tree",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.query(cmd, func(q *queryContext) error {
				tree, err := q.svc.Tree(cmd.Context(), q.premise, q.coord)
				if err != nil {
					return WrapExitError(ExitCommandError, ErrCodeStore, "build tree", err)
				}
				out := TreeOutput{
					Generation: tree.Generation(),
					Concepts:   tree.Len(),
					Rendering:  tree.Render(q.svc.Name),
				}
				return q.formatter.Emit(out, func(w io.Writer) {
					io.WriteString(w, out.Rendering)
				})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewCommitsCommand creates the commits command.
func NewCommitsCommand(rootOpts *RootOptions) *cobra.Command {
	var from int64

	cmd := &cobra.Command{
		Use:           "commits",
		Short:         "List the commit log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			svc, err := rootOpts.openStore(cmd.Context(), cmd)
			if err != nil {
				return formatter.Fail(err, nil)
			}
			defer svc.Close(cmd.Context())

			recs, err := svc.Commits(cmd.Context(), from)
			if err != nil {
				return formatter.Fail(WrapExitError(ExitCommandError, ErrCodeStore, "read commit log", err), nil)
			}
			return formatter.Emit(recs, func(w io.Writer) {
				for _, r := range recs {
					fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
						r.Sequence, r.Time, svc.Name(r.Author), len(r.Nids), r.ID, r.Comment)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 1, "first commit sequence to list")

	return cmd
}
