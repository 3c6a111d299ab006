package ir

// Version constants recorded on every run.
const (
	// IRVersion is the document schema version.
	IRVersion = "1"

	// EngineVersion is the genmerge engine version.
	EngineVersion = "0.1.0"
)
