package pipeline

import "fmt"

// Stage errors. Every fatal condition aborts the remaining stages; the
// type says which stage broke and what it was holding when it did.

// BuildError wraps a failed builder invocation.
type BuildError struct {
	Tags []string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for %d tag(s): %v", len(e.Tags), e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// DigestError wraps a failed digest extraction after a successful push.
// Artifact carries the raw metadata document for diagnosis.
type DigestError struct {
	MetadataPath string
	Artifact     string
	Err          error
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("digest extraction failed for %s: %v", e.MetadataPath, e.Err)
}

func (e *DigestError) Unwrap() error { return e.Err }

// InconsistencyError signals a pushed, digested build with no sign
// targets — a derivation defect, not an operational failure.
type InconsistencyError struct {
	Digest string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("pushed build with digest %s has no sign targets: derivation defect", e.Digest)
}

// SigningError wraps per-target signing failures, listing both sides.
type SigningError struct {
	Signed []string
	Failed []string
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signed %d, failed %d: %v", len(e.Signed), len(e.Failed), e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
