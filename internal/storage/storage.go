package storage

import (
	"context"
	"time"

	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Storage defines the interface for persisting a markup project file
type Storage interface {
	// Project operations
	GetProject(ctx context.Context) (*Project, error)
	PutProject(ctx context.Context, project *Project) error

	// Settings operations
	GetSettings(ctx context.Context) (*Settings, error)
	PutSettings(ctx context.Context, settings *Settings) error

	// Entry operations
	ReplaceEntries(ctx context.Context, entries []Entry) error
	ListEntries(ctx context.Context) ([]Entry, error)

	// Status operations
	GetStatus(ctx context.Context) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project is the single metadata row of a project file
type Project struct {
	ID            string // UUID
	Name          string
	Description   string
	DatasetRoot   string
	Suffixes      []string
	FormatVersion string
	TreeDigest    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Settings holds the persisted iteration and markup settings
type Settings struct {
	Filter        string
	Order         string
	Index         string
	LastIdx       int
	MinDurationMs float64
}

// Entry is one dataset entry with its labels, Position is its appearance order
type Entry struct {
	Fingerprint  types.Fingerprint
	Position     int
	RelativePath string
	IsCorrupted  bool
	Labels       []Label
}

// Label is one persisted span in label-list order
type Label struct {
	StartMs     float64
	EndMs       float64
	Description string
}

// ProjectStatus contains counts read directly from a project file
type ProjectStatus struct {
	Project        *Project
	SchemaVersion  string
	EntriesCount   int
	LabeledCount   int
	CorruptedCount int
	LabelsCount    int
	FileSizeKB     float64
}

// ToLabelSpan converts a stored label to a types.LabelSpan
func (l Label) ToLabelSpan() types.LabelSpan {
	return types.LabelSpan{Start: l.StartMs, End: l.EndMs, Description: l.Description}
}

// FromLabelSpan converts a types.LabelSpan to a stored label
func FromLabelSpan(span types.LabelSpan) Label {
	return Label{StartMs: span.Start, EndMs: span.End, Description: span.Description}
}
