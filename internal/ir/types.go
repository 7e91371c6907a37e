package ir

import (
	"fmt"
	"math"
)

// Nid is a dense, process-local identifier for any versioned component.
type Nid int32

// NoNid is the zero value, never assigned to a component.
const NoNid Nid = 0

// StampSeq is the interned sequence of a stamp tuple. Sequences start at 1.
type StampSeq int32

// NoStamp marks an absent stamp sequence.
const NoStamp StampSeq = 0

// Reserved stamp times.
const (
	// TimeUncommitted is carried by every stamp that has not been committed yet.
	TimeUncommitted int64 = math.MaxInt64

	// TimeCanceled is carried by stamps whose edits were canceled.
	TimeCanceled int64 = math.MinInt64

	// TimeLatest positions a coordinate after every committed and uncommitted stamp.
	TimeLatest int64 = math.MaxInt64
)

// Status is the lifecycle status recorded on a stamp.
type Status uint8

const (
	StatusPrimordial Status = iota
	StatusActive
	StatusInactive
	StatusCanceled
)

// String returns the upper-case status name.
func (s Status) String() string {
	switch s {
	case StatusPrimordial:
		return "PRIMORDIAL"
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	case StatusCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// IsActive reports whether the status counts as active. Only ACTIVE does.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// ParseStatus converts a status name into a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "PRIMORDIAL":
		return StatusPrimordial, nil
	case "ACTIVE":
		return StatusActive, nil
	case "INACTIVE":
		return StatusInactive, nil
	case "CANCELED":
		return StatusCanceled, nil
	default:
		return 0, fmt.Errorf("unknown status %q", name)
	}
}

// StatusSet is a small bit set of statuses.
type StatusSet uint8

// StatusSetOf builds a set from the given statuses.
func StatusSetOf(statuses ...Status) StatusSet {
	var set StatusSet
	for _, s := range statuses {
		set |= 1 << s
	}
	return set
}

// Common status sets.
var (
	ActiveOnly        = StatusSetOf(StatusActive)
	ActiveAndInactive = StatusSetOf(StatusActive, StatusInactive)
)

// Contains reports whether s is in the set.
func (set StatusSet) Contains(s Status) bool {
	return set&(1<<s) != 0
}

// Stamp is the provenance tuple attached to every version.
// Stamp is comparable; equal tuples always intern to the same StampSeq.
type Stamp struct {
	Status Status `json:"status" msgpack:"s"`
	Time   int64  `json:"time" msgpack:"t"`
	Author Nid    `json:"author" msgpack:"a"`
	Module Nid    `json:"module" msgpack:"m"`
	Path   Nid    `json:"path" msgpack:"p"`
}

// IsUncommitted reports whether the stamp is still pending commit.
func (s Stamp) IsUncommitted() bool {
	return s.Time == TimeUncommitted
}

// IsCanceled reports whether the stamp belongs to canceled edits.
func (s Stamp) IsCanceled() bool {
	return s.Time == TimeCanceled || s.Status == StatusCanceled
}

// WithStatus returns a copy of the stamp with a different status.
func (s Stamp) WithStatus(status Status) Stamp {
	s.Status = status
	return s
}

// WithTime returns a copy of the stamp with a different time.
func (s Stamp) WithTime(t int64) Stamp {
	s.Time = t
	return s
}

func (s Stamp) String() string {
	t := fmt.Sprintf("%d", s.Time)
	switch s.Time {
	case TimeUncommitted:
		t = "uncommitted"
	case TimeCanceled:
		t = "canceled"
	}
	return fmt.Sprintf("%s t:%s a:%d m:%d p:%d", s.Status, t, s.Author, s.Module, s.Path)
}

// EditCoordinate identifies who is editing, in which module, on which path.
type EditCoordinate struct {
	Author Nid `json:"author" yaml:"author"`
	Module Nid `json:"module" yaml:"module"`
	Path   Nid `json:"path" yaml:"path"`
}

// UncommittedStamp returns the pending stamp this edit coordinate writes with.
func (ec EditCoordinate) UncommittedStamp(status Status) Stamp {
	return Stamp{
		Status: status,
		Time:   TimeUncommitted,
		Author: ec.Author,
		Module: ec.Module,
		Path:   ec.Path,
	}
}

// ChronologyKind distinguishes concept chronologies from semantic ones.
type ChronologyKind uint8

const (
	KindConceptChronology ChronologyKind = iota + 1
	KindSemanticChronology
)

func (k ChronologyKind) String() string {
	switch k {
	case KindConceptChronology:
		return "concept"
	case KindSemanticChronology:
		return "semantic"
	default:
		return fmt.Sprintf("ChronologyKind(%d)", uint8(k))
	}
}

// PremiseType distinguishes stated from inferred taxonomy edges.
type PremiseType uint8

const (
	PremiseStated PremiseType = iota + 1
	PremiseInferred
)

func (p PremiseType) String() string {
	switch p {
	case PremiseStated:
		return "STATED"
	case PremiseInferred:
		return "INFERRED"
	default:
		return fmt.Sprintf("PremiseType(%d)", uint8(p))
	}
}

// ParsePremiseType converts "stated"/"inferred" (any case) into a PremiseType.
func ParsePremiseType(name string) (PremiseType, error) {
	switch name {
	case "stated", "STATED":
		return PremiseStated, nil
	case "inferred", "INFERRED":
		return PremiseInferred, nil
	default:
		return 0, fmt.Errorf("unknown premise type %q", name)
	}
}
