package indexer

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// DefaultSuffixes lists the audio formats recognised when no filter is configured
var DefaultSuffixes = []string{".mp3", ".wav", ".flac", ".ogg", ".midi", ".mid"}

// Scanner walks a dataset directory and fingerprints every matching file
type Scanner struct {
	workers int
	logger  *slog.Logger
}

// Config contains configuration for the scanner
type Config struct {
	Workers int          // Number of concurrent hashing workers (default: runtime.NumCPU())
	Logger  *slog.Logger // Destination for skip warnings (default: slog.Default())
}

// Statistics contains statistics about a scan
type Statistics struct {
	FilesScanned  int
	FilesSkipped  int
	Duplicates    int
	BytesHashed   int64
	Duration      time.Duration
	ErrorMessages []string
}

// Duplicate records a file whose content was already seen under another path
type Duplicate struct {
	Fingerprint  types.Fingerprint
	RelativePath string // The path that lost
	KeptPath     string // The first path in traversal order
}

// ScanResult is the outcome of a directory scan
type ScanResult struct {
	Root       string
	Files      []types.FileRecord // Traversal order, one record per fingerprint
	Duplicates []Duplicate
	TreeDigest string // Aggregate digest over paths and contents
	Stats      Statistics

	byFingerprint map[types.Fingerprint]int
}

// Len returns the number of distinct fingerprints found
func (r *ScanResult) Len() int {
	return len(r.Files)
}

// Lookup returns the relative path recorded for a fingerprint
func (r *ScanResult) Lookup(fp types.Fingerprint) (string, bool) {
	i, ok := r.byFingerprint[fp]
	if !ok {
		return "", false
	}
	return r.Files[i].RelativePath, true
}

// New creates a new Scanner instance
func New(config *Config) *Scanner {
	s := &Scanner{
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	if config != nil {
		if config.Workers > 0 {
			s.workers = config.Workers
		}
		if config.Logger != nil {
			s.logger = config.Logger
		}
	}
	s.logger = s.logger.With("component", "indexer")
	return s
}

// NormalizeSuffixes lower-cases the suffixes and makes sure each has a leading dot
func NormalizeSuffixes(suffixes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		set[s] = struct{}{}
	}
	return set
}

// fileHash is the per-file output of the hashing stage
type fileHash struct {
	relPath string
	sum     types.Fingerprint
	size    int64
	err     error
}

// Scan fingerprints every file under root whose extension is in suffixes.
// Unreadable files are skipped and reported in the statistics.
func (s *Scanner) Scan(ctx context.Context, root string, suffixes []string) (*ScanResult, error) {
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset root %s: %w", types.ErrInvalidArgument, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: dataset root %s is not a directory", types.ErrInvalidArgument, root)
	}

	filter := NormalizeSuffixes(suffixes)
	if len(filter) == 0 {
		return nil, fmt.Errorf("%w: suffix filter is empty", types.ErrInvalidArgument)
	}

	files, err := discoverFiles(ctx, root, filter)
	if err != nil {
		return nil, err
	}

	hashes, err := s.hashFiles(ctx, root, files)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Root:          root,
		Files:         make([]types.FileRecord, 0, len(hashes)),
		byFingerprint: make(map[types.Fingerprint]int, len(hashes)),
	}

	tree := md5.New()
	for _, h := range hashes {
		if h.err != nil {
			result.Stats.FilesSkipped++
			result.Stats.ErrorMessages = append(result.Stats.ErrorMessages, fmt.Sprintf("%s: %v", h.relPath, h.err))
			s.logger.Warn("skipping unreadable file", "path", h.relPath, "error", h.err)
			continue
		}

		foldTree(tree, h.relPath, h.sum)
		result.Stats.FilesScanned++
		result.Stats.BytesHashed += h.size

		if i, seen := result.byFingerprint[h.sum]; seen {
			dup := Duplicate{Fingerprint: h.sum, RelativePath: h.relPath, KeptPath: result.Files[i].RelativePath}
			result.Duplicates = append(result.Duplicates, dup)
			result.Stats.Duplicates++
			s.logger.Info("duplicate content collapsed into one entry",
				"fingerprint", h.sum.String(), "path", h.relPath, "kept", dup.KeptPath)
			continue
		}

		result.byFingerprint[h.sum] = len(result.Files)
		result.Files = append(result.Files, types.FileRecord{Fingerprint: h.sum, RelativePath: h.relPath})
	}

	result.TreeDigest = fmt.Sprintf("%x", tree.Sum(nil))
	result.Stats.Duration = time.Since(startTime)

	s.logger.Debug("scan finished",
		"root", root,
		"entries", len(result.Files),
		"skipped", result.Stats.FilesSkipped,
		"duplicates", result.Stats.Duplicates,
		"duration", result.Stats.Duration)

	return result, nil
}

// discoverFiles lists matching files in lexical walk order, relative to root
func discoverFiles(ctx context.Context, root string, filter map[string]struct{}) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subdirectories are skipped like unreadable files
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if _, ok := filter[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: walk %s: %w", types.ErrIO, root, err)
	}

	return files, nil
}

// hashFiles computes content digests concurrently, keeping the input order
func (s *Scanner) hashFiles(ctx context.Context, root string, files []string) ([]fileHash, error) {
	results := make([]fileHash, len(files))
	semaphore := make(chan struct{}, s.workers)

	g, gctx := errgroup.WithContext(ctx)

dispatch:
	for i, rel := range files {
		select {
		case <-gctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		g.Go(func() error {
			defer func() { <-semaphore }()

			sum, size, err := computeFileHash(filepath.Join(root, filepath.FromSlash(rel)))
			results[i] = fileHash{relPath: rel, sum: sum, size: size, err: err}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// computeFileHash computes the MD5 fingerprint of a file
func computeFileHash(filePath string) (types.Fingerprint, int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return types.Fingerprint{}, 0, err
	}
	defer func() { _ = file.Close() }()

	h := md5.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return types.Fingerprint{}, 0, err
	}

	var fp types.Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, n, nil
}

// foldTree feeds one file into the aggregate digest: its '|' joined path
// parts followed by its content fingerprint.
func foldTree(tree hash.Hash, rel string, sum types.Fingerprint) {
	_, _ = io.WriteString(tree, strings.Join(strings.Split(rel, "/"), "|"))
	_, _ = tree.Write(sum[:])
}
