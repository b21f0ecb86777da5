// Package project bundles a dataset's entry store, iteration state and
// metadata into one unit that can be created from a directory, saved to a
// single .mmp file, loaded back and exported as tabular markup.
//
// Creating a project scans the dataset; loading one re-scans it and
// reconciles the saved entries, so drift since the last save (renamed,
// deleted or restored files) is visible before the caller touches anything.
// Labels follow content fingerprints and are never dropped by reconciliation.
package project
