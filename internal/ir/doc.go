// Package ir provides the foundational value types for termgraph.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps IR the bottom layer with
// no circular dependencies.
//
// Key design constraints:
//   - Identifiers (Nid) are dense, process-local int32 values; negative values
//     are normal and are remapped to non-negative indexes by the identifier service
//   - Stamps are comparable value types so equal tuples intern to one sequence
//   - Logic graphs are a flat node table with a Kind discriminator; every switch
//     over NodeKind must be exhaustive
//   - Commit records are immutable once built; their ID is content addressed
package ir
