package ir

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Precedence decides which visible stamp is current when several compete.
type Precedence uint8

const (
	// PrecedenceTime selects the visible stamp with the greatest time.
	PrecedenceTime Precedence = iota
	// PrecedencePath prefers stamps on the coordinate's own path over origin
	// paths, then the greatest time.
	PrecedencePath
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceTime:
		return "TIME"
	case PrecedencePath:
		return "PATH"
	default:
		return fmt.Sprintf("Precedence(%d)", uint8(p))
	}
}

// Position is a point on a path: every stamp on Path with time <= Time is visible.
type Position struct {
	Path Nid   `json:"path" yaml:"path"`
	Time int64 `json:"time" yaml:"time"`
}

// Coordinate is a query-time filter selecting one applicable stamp among candidates.
type Coordinate struct {
	Precedence Precedence `json:"precedence"`
	Position   Position   `json:"position"`
	// Origins are additional paths visible up to their own times.
	Origins []Position `json:"origins,omitempty"`
	// Modules restricts visible stamps to these modules. Empty allows all.
	Modules []Nid `json:"modules,omitempty"`
	// Statuses is applied after selection.
	Statuses StatusSet `json:"statuses"`
}

// LatestCoordinate returns a TIME coordinate positioned after every stamp on path,
// including uncommitted ones, that accepts only ACTIVE results.
func LatestCoordinate(path Nid) Coordinate {
	return Coordinate{
		Precedence: PrecedenceTime,
		Position:   Position{Path: path, Time: TimeLatest},
		Statuses:   ActiveOnly,
	}
}

// CoordinateAt returns a TIME coordinate positioned at time t on path, accepting
// only ACTIVE results.
func CoordinateAt(path Nid, t int64) Coordinate {
	return Coordinate{
		Precedence: PrecedenceTime,
		Position:   Position{Path: path, Time: t},
		Statuses:   ActiveOnly,
	}
}

// WithTime returns a copy of the coordinate positioned at t.
func (c Coordinate) WithTime(t int64) Coordinate {
	c.Position.Time = t
	return c
}

// WithStatuses returns a copy of the coordinate with a different allowed status set.
func (c Coordinate) WithStatuses(set StatusSet) Coordinate {
	c.Statuses = set
	return c
}

// WithModules returns a copy of the coordinate restricted to modules.
func (c Coordinate) WithModules(modules ...Nid) Coordinate {
	c.Modules = slices.Clone(modules)
	return c
}

// WithOrigins returns a copy of the coordinate with origin path positions.
func (c Coordinate) WithOrigins(origins ...Position) Coordinate {
	c.Origins = slices.Clone(origins)
	return c
}

// AllowsModule reports whether stamps from module are visible.
func (c Coordinate) AllowsModule(module Nid) bool {
	if len(c.Modules) == 0 {
		return true
	}
	return slices.Contains(c.Modules, module)
}

// AllowsStatus reports whether a selected stamp with status s is accepted.
func (c Coordinate) AllowsStatus(s Status) bool {
	return c.Statuses.Contains(s)
}

// Key returns a deterministic string identifying the coordinate, suitable as a
// cache key. Module and origin order do not affect the key.
func (c Coordinate) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d:%d", c.Precedence, c.Position.Path, c.Position.Time)

	if len(c.Origins) > 0 {
		origins := slices.Clone(c.Origins)
		slices.SortFunc(origins, func(a, b Position) int {
			if c := cmp.Compare(a.Path, b.Path); c != 0 {
				return c
			}
			return cmp.Compare(a.Time, b.Time)
		})
		b.WriteString("|o")
		for _, o := range origins {
			fmt.Fprintf(&b, ":%d@%d", o.Path, o.Time)
		}
	}

	if len(c.Modules) > 0 {
		modules := slices.Clone(c.Modules)
		slices.Sort(modules)
		b.WriteString("|m")
		for _, m := range modules {
			fmt.Fprintf(&b, ":%d", m)
		}
	}

	fmt.Fprintf(&b, "|s:%d", c.Statuses)
	return b.String()
}
