package ir

// Terms holds the nids of the well-known concepts the taxonomy engine and
// commit coordinator depend on. It is created by the identifier service at
// bootstrap and passed explicitly to every component that needs it.
type Terms struct {
	// Edge types.
	IsA           Nid
	RoleGroup     Nid
	ConceptStatus Nid

	// Assemblages.
	ConceptAssemblage  Nid
	StatedAssemblage   Nid
	InferredAssemblage Nid

	// Provenance defaults.
	DevelopmentPath Nid
	CoreModule      Nid
	User            Nid

	// Root is the top of every taxonomy.
	Root Nid
}

// PremiseFor returns the premise type a logic-graph assemblage carries, or
// false when the assemblage holds no logic graphs.
func (t Terms) PremiseFor(assemblage Nid) (PremiseType, bool) {
	switch assemblage {
	case t.StatedAssemblage:
		return PremiseStated, true
	case t.InferredAssemblage:
		return PremiseInferred, true
	default:
		return 0, false
	}
}

// AssemblageFor returns the logic-graph assemblage for a premise type.
func (t Terms) AssemblageFor(p PremiseType) Nid {
	if p == PremiseInferred {
		return t.InferredAssemblage
	}
	return t.StatedAssemblage
}

// DefaultEditCoordinate edits as the default user on the core module and
// development path.
func (t Terms) DefaultEditCoordinate() EditCoordinate {
	return EditCoordinate{Author: t.User, Module: t.CoreModule, Path: t.DevelopmentPath}
}
