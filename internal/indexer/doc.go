// Package indexer fingerprints the audio files of a dataset directory.
//
// A scan walks the dataset root recursively, keeps the files whose extension
// (case-insensitive) is in the configured suffix set, and computes an MD5 digest
// over each file's full contents. The digest is the file's identity: it survives
// renames and moves, which is what lets labels follow a file around the dataset.
//
// # Basic Usage
//
//	scanner := indexer.New(&indexer.Config{Workers: 4})
//
//	result, err := scanner.Scan(ctx, "/data/fragments", indexer.DefaultSuffixes)
//	if err != nil {
//	    return err
//	}
//
//	for _, rec := range result.Files {
//	    fmt.Println(rec.Fingerprint, rec.RelativePath)
//	}
//
// # Ordering
//
// Files are discovered in lexical walk order and hashed on a worker pool, but the
// result is always assembled in discovery order. Two scans of an unchanged tree
// therefore produce identical results, including their order, which the iteration
// engine relies on for its "appearance" ordering.
//
// # Failure Policy
//
// A file that cannot be read is skipped with a warning and listed in
// Statistics.ErrorMessages; a partial dataset should not block annotation work.
// A missing or non-directory root is an ErrInvalidArgument, and a failed walk of
// the root itself is an ErrIO.
//
// # Duplicate Content
//
// Byte-identical files share a fingerprint and collapse into a single entry. The
// first path in traversal order is kept; the others are reported in
// ScanResult.Duplicates.
//
// # Tree Digest
//
// ScanResult.TreeDigest folds, for every file in order, its relative path parts
// joined by '|' and its content fingerprint into one digest. Comparing it with the
// digest of the previous scan answers "did anything change at all" without running
// a reconciliation.
//
// # Concurrency
//
// Scans are pure reads and safe to run repeatedly. IndexLock lets an outer layer
// reject a rescan while another one is still running:
//
//	if !lock.TryAcquire() {
//	    return types.ErrBusy
//	}
//	defer lock.Release()
package indexer
