package ir

// Version constants for key encoding and runtime.
const (
	// KeyVersion is the key derivation version. Bumping it changes every
	// content and positional key.
	KeyVersion = "1"

	// EngineVersion is the rxstore runtime version.
	EngineVersion = "0.1.0"
)
