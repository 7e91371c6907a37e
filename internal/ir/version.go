package ir

// Version constants for persisted formats.
const (
	// SchemaVersion is the version of the persisted record layouts.
	SchemaVersion = "1"

	// EngineVersion is the termgraph engine version.
	EngineVersion = "0.1.0"
)
