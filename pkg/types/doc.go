// Package types provides shared type definitions for the audiomark annotation core.
//
// This package defines the identity and value types used across the indexer,
// the entry store, the iteration engine and the persistence layer.
//
// # Core Types
//
// Fingerprint identifies an audio file by content rather than by location. It is
// the MD5 digest of the raw file bytes, so renaming or moving a file keeps its
// identity (and therefore its labels):
//
//	fp := types.FingerprintOf(data)
//	fmt.Println(fp) // 9e107d9d372bb6826bd81d3542a419d6
//
// LabelSpan is a labeled sub-region of an audio file, in milliseconds:
//
//	span := types.LabelSpan{Start: 0, End: 1000, Description: "intro"}
//	if err := span.Validate(500); err != nil {
//	    // shorter than the configured minimum, or malformed
//	}
//
// FileRecord is one hit of a directory scan: a fingerprint and the slash
// separated path where it was found, relative to the dataset root.
//
// # Errors
//
// Failures are classified by sentinel kinds that callers match with errors.Is:
//
//	ErrNotFound         // unknown fingerprint, missing project file or audio file
//	ErrInvalidArgument  // malformed input, bad label index, unknown policy tag
//	ErrIO               // read/write failure during scan, save or export
//	ErrNotProject       // file exists but does not hold a project
//	ErrUnsupportedMedia // media probe could not decode a file
//	ErrBusy             // a rescan is already running
//
// Operations wrap the kind together with the underlying cause, so both remain
// reachable through errors.Is and errors.As.
package types
