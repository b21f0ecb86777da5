// Package dataset holds the entry store: one record per content fingerprint with
// the file's current location, its corruption flag and its label history.
//
// The store is keyed by fingerprint only; a filesystem path is never used as a
// key. Entries keep the order in which they were first seen by the scanner
// ("appearance" order), and every read hands out a View, a value snapshot that
// is decoupled from the store's internal layout.
//
// # Reconciliation
//
//	stats := store.Reconcile(scan.Files)
//
// Every scanned fingerprint is upserted: a known entry gets its relative path
// updated and its corruption flag cleared, an unknown one is created with no
// labels. A known fingerprint missing from the scan is flagged corrupted and kept.
// Reconciliation never drops or reorders labels.
//
// # Labels
//
// Label operations are bounds-checked and validated before anything is written,
// so a failing call leaves the entry untouched. A span validator installed with
// WithSpanValidator is the single enforcement point for span constraints such as
// a minimum duration.
//
// The store is not safe for concurrent use. Callers that share it across
// goroutines must serialise every mutation together with the iterator refresh
// that depends on it.
package dataset
