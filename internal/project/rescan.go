package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/internal/export"
	"github.com/dshills/audiomark-mcp/internal/indexer"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// RescanReport describes the outcome of Rescan
type RescanReport struct {
	Changed    bool // False when the tree digest matched and nothing was reconciled
	TreeDigest string
	Reconcile  dataset.ReconcileStats
	Scan       indexer.Statistics
	Duplicates []indexer.Duplicate
}

// Rescan fingerprints the dataset again and reconciles the store when the
// tree digest shows a change, then rebuilds the working list
func (p *Project) Rescan(ctx context.Context) (*RescanReport, error) {
	result, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &RescanReport{
		TreeDigest: result.TreeDigest,
		Scan:       result.Stats,
		Duplicates: result.Duplicates,
	}
	if result.TreeDigest != "" && result.TreeDigest == p.treeDigest {
		p.logger.Debug("dataset unchanged, reconciliation skipped", "digest", result.TreeDigest)
		report.Reconcile.Total = p.store.Len()
		return report, nil
	}

	report.Changed = true
	report.Reconcile = p.store.Reconcile(result.Files)
	p.treeDigest = result.TreeDigest
	if err := p.refreshView(); err != nil {
		return nil, err
	}

	p.logger.Info("dataset rescanned",
		"entries", report.Reconcile.Total, "added", report.Reconcile.Added,
		"moved", report.Reconcile.Moved, "corrupted", report.Reconcile.Corrupted,
		"restored", report.Reconcile.Restored)
	return report, nil
}

// ExportMarkup writes one row per label to path and returns the file written.
// A .json path produces a JSON array, anything else CSV; a directory
// resolves to <dir>/<name>.csv.
func (p *Project) ExportMarkup(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: export path is required", types.ErrInvalidArgument)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: export path %s: %w", types.ErrInvalidArgument, path, err)
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, fileName(p.name)+MarkupSuffix)
	} else if err := requireDir(filepath.Dir(target)); err != nil {
		return "", err
	}

	rows := export.Rows(p.store.Views())
	if err := export.WriteFile(target, rows); err != nil {
		return "", err
	}

	p.logger.Info("markup exported", "path", target, "rows", len(rows))
	return target, nil
}
