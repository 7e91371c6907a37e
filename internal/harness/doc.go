// Package harness runs taxonomy scenarios against a fresh terminology store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: amend_then_revert
//	description: "Reverting a logic graph restores the original parent"
//	specs:
//	  - fixtures/anatomy.cue
//	steps:
//	  - define:
//	      - {name: Heart, parents: [Organ]}
//	  - commit: "first"
//	    mark: t1
//	  - define:
//	      - {name: Heart, parents: [Muscle]}
//	    author: alice
//	  - commit: "amend"
//	    author: alice
//	  - retire: Heart
//	  - cancel: true
//	assertions:
//	  - type: parents
//	    concept: Heart
//	    expect: [Muscle]
//	  - type: parents
//	    concept: Heart
//	    at: t1
//	    expect: [Organ]
//	  - type: kind_of
//	    concept: Heart
//	    ancestor: root
//	    holds: true
//
// Concept definitions in specs are staged and committed before the first
// step. A step's mark records the time of the latest commit under a label
// that assertions can position themselves at.
//
// # Assertion Types
//
//   - parents, children: direct neighbours of a concept, by name
//   - roots: concepts with children and no parents
//   - kind_of: subsumption, with holds true or false
//   - active: the concept's status, with holds true or false
//   - commits: the number of commits logged
//
// # Deterministic Testing
//
// Every scenario runs in its own temporary store driven by
// testutil.DeterministicClock, so commit times and rendered trees are
// identical across runs and can be compared against golden files.
package harness
