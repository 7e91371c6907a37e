package ir

import (
	"fmt"
	"slices"
	"strings"
)

// NodeKind discriminates logic graph nodes.
type NodeKind uint8

const (
	NodeDefinitionRoot NodeKind = iota + 1
	NodeNecessarySet
	NodeSufficientSet
	NodeAnd
	NodeOr
	NodeConcept
	NodeRoleSome
	NodeRoleAll
	NodeFeature
)

func (k NodeKind) String() string {
	switch k {
	case NodeDefinitionRoot:
		return "DEFINITION_ROOT"
	case NodeNecessarySet:
		return "NECESSARY_SET"
	case NodeSufficientSet:
		return "SUFFICIENT_SET"
	case NodeAnd:
		return "AND"
	case NodeOr:
		return "OR"
	case NodeConcept:
		return "CONCEPT"
	case NodeRoleSome:
		return "ROLE_SOME"
	case NodeRoleAll:
		return "ROLE_ALL"
	case NodeFeature:
		return "FEATURE"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Operator is the comparison used by a feature node.
type Operator uint8

const (
	OpEqual Operator = iota
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
)

func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	default:
		return fmt.Sprintf("Operator(%d)", uint8(o))
	}
}

// GraphNode is one entry in a logic graph's node table.
//
// Which fields are meaningful depends on Kind:
//   - NodeConcept: Concept
//   - NodeRoleSome, NodeRoleAll: Type, Children[0] is the filler
//   - NodeFeature: Type, Operator, Literal
//   - every other kind: Children
type GraphNode struct {
	Kind     NodeKind `json:"kind" msgpack:"k"`
	Concept  Nid      `json:"concept,omitempty" msgpack:"c,omitempty"`
	Type     Nid      `json:"type,omitempty" msgpack:"t,omitempty"`
	Operator Operator `json:"operator,omitempty" msgpack:"o,omitempty"`
	Literal  string   `json:"literal,omitempty" msgpack:"l,omitempty"`
	Children []int    `json:"children,omitempty" msgpack:"ch,omitempty"`
}

// LogicGraph is a description-logic expression stored as a flat node table.
// Node 0 is always the definition root.
type LogicGraph struct {
	Nodes []GraphNode `json:"nodes" msgpack:"n"`
}

// Root returns the index of the definition root.
func (g LogicGraph) Root() int { return 0 }

// Len returns the number of nodes.
func (g LogicGraph) Len() int { return len(g.Nodes) }

// Node returns the node at index i.
func (g LogicGraph) Node(i int) GraphNode { return g.Nodes[i] }

// IsEmpty reports whether the graph has no definition root.
func (g LogicGraph) IsEmpty() bool { return len(g.Nodes) == 0 }

// Validate checks the node table is structurally sound: a definition root at
// index 0, child indexes in range, role nodes with exactly one filler, and no
// node reachable from itself.
func (g LogicGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("logic graph has no nodes")
	}
	if g.Nodes[0].Kind != NodeDefinitionRoot {
		return fmt.Errorf("node 0 is %s, want %s", g.Nodes[0].Kind, NodeDefinitionRoot)
	}
	for i, n := range g.Nodes {
		for _, c := range n.Children {
			if c <= 0 || c >= len(g.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", i, c)
			}
		}
		switch n.Kind {
		case NodeRoleSome, NodeRoleAll:
			if len(n.Children) != 1 {
				return fmt.Errorf("node %d: %s needs exactly one filler, has %d", i, n.Kind, len(n.Children))
			}
		case NodeConcept, NodeFeature:
			if len(n.Children) != 0 {
				return fmt.Errorf("node %d: %s cannot have children", i, n.Kind)
			}
		case NodeDefinitionRoot:
			if i != 0 {
				return fmt.Errorf("node %d: definition root must be node 0", i)
			}
		case NodeNecessarySet, NodeSufficientSet, NodeAnd, NodeOr:
		default:
			return fmt.Errorf("node %d: unknown kind %s", i, n.Kind)
		}
	}

	// Reject cycles through the child relation.
	state := make([]uint8, len(g.Nodes))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case 1:
			return fmt.Errorf("node %d is reachable from itself", i)
		case 2:
			return nil
		}
		state[i] = 1
		for _, c := range g.Nodes[i].Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		state[i] = 2
		return nil
	}
	return visit(0)
}

// Key returns a canonical structural key for the subtree rooted at i.
// Two subtrees are isomorphic exactly when their keys are equal; AND, OR and
// set children are order-insensitive.
func (g LogicGraph) Key(i int) string {
	var b strings.Builder
	g.writeKey(&b, i)
	return b.String()
}

func (g LogicGraph) writeKey(b *strings.Builder, i int) {
	n := g.Nodes[i]
	switch n.Kind {
	case NodeConcept:
		fmt.Fprintf(b, "C%d", n.Concept)
	case NodeRoleSome:
		fmt.Fprintf(b, "S%d(", n.Type)
		g.writeKey(b, n.Children[0])
		b.WriteByte(')')
	case NodeRoleAll:
		fmt.Fprintf(b, "A%d(", n.Type)
		g.writeKey(b, n.Children[0])
		b.WriteByte(')')
	case NodeFeature:
		fmt.Fprintf(b, "F%d%s%q", n.Type, n.Operator, n.Literal)
	case NodeDefinitionRoot, NodeNecessarySet, NodeSufficientSet, NodeAnd, NodeOr:
		b.WriteString(setPrefix(n.Kind))
		b.WriteByte('(')
		keys := make([]string, len(n.Children))
		for j, c := range n.Children {
			keys[j] = g.Key(c)
		}
		slices.Sort(keys)
		b.WriteString(strings.Join(keys, ","))
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "?%d", n.Kind)
	}
}

func setPrefix(k NodeKind) string {
	switch k {
	case NodeDefinitionRoot:
		return "R"
	case NodeNecessarySet:
		return "N"
	case NodeSufficientSet:
		return "U"
	case NodeAnd:
		return "&"
	case NodeOr:
		return "|"
	}
	return "?"
}

// GraphBuilder assembles a LogicGraph bottom-up. Leaf constructors return node
// indexes that are passed to their parents; Necessary and Sufficient attach
// themselves to the definition root.
type GraphBuilder struct {
	nodes []GraphNode
}

// NewGraphBuilder starts a graph with an empty definition root.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{nodes: []GraphNode{{Kind: NodeDefinitionRoot}}}
}

func (b *GraphBuilder) add(n GraphNode) int {
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1
}

// Concept adds a concept reference.
func (b *GraphBuilder) Concept(nid Nid) int {
	return b.add(GraphNode{Kind: NodeConcept, Concept: nid})
}

// Some adds an existential role restriction.
func (b *GraphBuilder) Some(roleType Nid, filler int) int {
	return b.add(GraphNode{Kind: NodeRoleSome, Type: roleType, Children: []int{filler}})
}

// All adds a universal role restriction.
func (b *GraphBuilder) All(roleType Nid, filler int) int {
	return b.add(GraphNode{Kind: NodeRoleAll, Type: roleType, Children: []int{filler}})
}

// Feature adds a concrete-domain feature.
func (b *GraphBuilder) Feature(featureType Nid, op Operator, literal string) int {
	return b.add(GraphNode{Kind: NodeFeature, Type: featureType, Operator: op, Literal: literal})
}

// And adds a conjunction.
func (b *GraphBuilder) And(children ...int) int {
	return b.add(GraphNode{Kind: NodeAnd, Children: slices.Clone(children)})
}

// Or adds a disjunction.
func (b *GraphBuilder) Or(children ...int) int {
	return b.add(GraphNode{Kind: NodeOr, Children: slices.Clone(children)})
}

// Group adds a role group: an existential restriction over the reserved
// role-group type whose filler is a conjunction of role restrictions.
func (b *GraphBuilder) Group(roleGroup Nid, roles ...int) int {
	return b.Some(roleGroup, b.And(roles...))
}

// Necessary adds a necessary set and attaches it to the root.
func (b *GraphBuilder) Necessary(children ...int) int {
	i := b.add(GraphNode{Kind: NodeNecessarySet, Children: slices.Clone(children)})
	b.nodes[0].Children = append(b.nodes[0].Children, i)
	return i
}

// Sufficient adds a sufficient set and attaches it to the root.
func (b *GraphBuilder) Sufficient(children ...int) int {
	i := b.add(GraphNode{Kind: NodeSufficientSet, Children: slices.Clone(children)})
	b.nodes[0].Children = append(b.nodes[0].Children, i)
	return i
}

// Build returns the assembled graph. The builder must not be reused.
func (b *GraphBuilder) Build() LogicGraph {
	return LogicGraph{Nodes: b.nodes}
}

// IsAGraph returns a primitive definition: one necessary set whose conjunction
// references each parent.
func IsAGraph(parents ...Nid) LogicGraph {
	b := NewGraphBuilder()
	refs := make([]int, len(parents))
	for i, p := range parents {
		refs[i] = b.Concept(p)
	}
	b.Necessary(b.And(refs...))
	return b.Build()
}
