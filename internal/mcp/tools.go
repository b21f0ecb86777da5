package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/internal/expander"
	"github.com/dshills/audiomark-mcp/internal/iteration"
	"github.com/dshills/audiomark-mcp/internal/media"
	"github.com/dshills/audiomark-mcp/internal/project"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound             = -32001 // No entry with the given fingerprint, or a missing file
	ErrorCodeIndexingInProgress   = -32002 // Another dataset scan is already running
	ErrorCodeNoCurrentEntry       = -32003 // The cursor is not on an entry
	ErrorCodeExpanderUnavailable  = -32004 // No text expansion provider configured
	ErrorCodeExpansionFailed      = -32005 // The expansion provider returned an error
	ErrorCodeUnsupportedMediaType = -32006 // A file could not be decoded
)

const (
	scopeWorking     = "working"
	scopeAll         = "all"
	defaultListLimit = 50
	maxListLimit     = 500
)

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.project
	info := p.Info()
	settings := p.MarkupSettings()
	registry := p.Registry()

	response := map[string]interface{}{
		"project": map[string]interface{}{
			"id":           info.ID,
			"name":         info.Name,
			"description":  info.Description,
			"dataset_root": info.DatasetRoot,
			"path":         info.Path,
			"tree_digest":  info.TreeDigest,
			"created_at":   info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"entries_count":   info.Entries,
			"labeled_count":   info.Labeled,
			"corrupted_count": info.Corrupted,
			"labels_count":    info.Labels,
			"working_count":   info.Remaining,
		},
		"settings": settingsJSON(settings.Iteration, settings.MinDurationMs),
		"policies": map[string]interface{}{
			"filters": registry.Filters(),
			"orders":  registry.Orders(),
			"indexes": registry.Indexes(),
		},
		"scan_running": s.scanLock.Held(),
	}
	if s.expander != nil {
		response["expander"] = map[string]interface{}{
			"provider": s.expander.Provider(),
			"model":    s.expander.Model(),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleScanDataset handles the scan_dataset tool invocation
func (s *Server) handleScanDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.Rescan(ctx)
	if err != nil {
		return nil, toMCPError("scan failed", err)
	}

	duplicates := make([]map[string]interface{}, len(report.Duplicates))
	for i, d := range report.Duplicates {
		duplicates[i] = map[string]interface{}{
			"fingerprint": d.Fingerprint.String(),
			"kept_path":   d.KeptPath,
			"ignored":     d.RelativePath,
		}
	}

	response := map[string]interface{}{
		"changed":     report.Changed,
		"tree_digest": report.TreeDigest,
		"reconcile": map[string]interface{}{
			"total":     report.Reconcile.Total,
			"added":     report.Reconcile.Added,
			"moved":     report.Reconcile.Moved,
			"corrupted": report.Reconcile.Corrupted,
			"restored":  report.Reconcile.Restored,
		},
		"scan": map[string]interface{}{
			"files_scanned": report.Scan.FilesScanned,
			"files_skipped": report.Scan.FilesSkipped,
			"duration_ms":   report.Scan.Duration.Milliseconds(),
		},
		"duplicates": duplicates,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListEntries handles the list_entries tool invocation
func (s *Server) handleListEntries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	scope := getStringDefault(args, "scope", scopeWorking)
	if scope != scopeWorking && scope != scopeAll {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid scope", map[string]interface{}{
			"param":   "scope",
			"value":   scope,
			"allowed": []string{scopeWorking, scopeAll},
		})
	}
	offset := getIntDefault(args, "offset", 0)
	if offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "offset must not be negative", map[string]interface{}{
			"param": "offset",
			"value": offset,
		})
	}
	limit := getIntDefault(args, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 500", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	s.mu.Lock()
	var views []dataset.View
	if scope == scopeAll {
		views = s.project.Store().Views()
	} else {
		views = s.project.Iterator().List()
	}
	lastIdx := s.project.MarkupSettings().Iteration.LastIdx
	s.mu.Unlock()

	total := len(views)
	start := min(offset, total)
	end := min(start+limit, total)

	entries := make([]map[string]interface{}, 0, end-start)
	for _, v := range views[start:end] {
		entries = append(entries, map[string]interface{}{
			"fingerprint":   v.Fingerprint.String(),
			"relative_path": v.RelativePath,
			"is_corrupted":  v.IsCorrupted,
			"label_count":   v.LabelCount(),
		})
	}

	response := map[string]interface{}{
		"scope":   scope,
		"total":   total,
		"offset":  start,
		"entries": entries,
	}
	if scope == scopeWorking {
		response["last_idx"] = lastIdx
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleNextEntry handles the next_entry tool invocation
func (s *Server) handleNextEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.project.Next()
	if !ok {
		response := map[string]interface{}{
			"done":    true,
			"message": "The working list is empty. Change the filter with update_settings or rescan the dataset.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	return mcp.NewToolResultText(formatJSON(s.describeEntry(view))), nil
}

// handleCurrentEntry handles the current_entry tool invocation
func (s *Server) handleCurrentEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.project.Current()
	if !ok {
		return nil, newMCPError(ErrorCodeNoCurrentEntry, "no entry is selected", map[string]interface{}{
			"hint": "call next_entry or select_entry first",
		})
	}
	return mcp.NewToolResultText(formatJSON(s.describeEntry(view))), nil
}

// handleSelectEntry handles the select_entry tool invocation
func (s *Server) handleSelectEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fp, err := getFingerprint(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.project.Select(fp); err != nil {
		return nil, toMCPError("select failed", err)
	}
	view, _ := s.project.Current()
	return mcp.NewToolResultText(formatJSON(s.describeEntry(view))), nil
}

// handleAddLabel handles the add_label tool invocation
func (s *Server) handleAddLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fp, err := getFingerprint(args)
	if err != nil {
		return nil, err
	}
	span, err := getSpan(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	if _, ok := args["index"]; ok {
		if index, err = getIndex(args); err != nil {
			return nil, err
		}
	} else if view, ok := s.project.Store().Get(fp); ok {
		index = view.LabelCount()
	}
	if index < 0 {
		index = 0
	}

	if err := s.project.AddLabel(fp, index, span); err != nil {
		return nil, toMCPError("add label failed", err)
	}
	return s.labelsResult(fp, index)
}

// handleUpdateLabel handles the update_label tool invocation
func (s *Server) handleUpdateLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fp, err := getFingerprint(args)
	if err != nil {
		return nil, err
	}
	index, err := getIndex(args)
	if err != nil {
		return nil, err
	}
	span, err := getSpan(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.project.UpdateLabel(fp, index, span); err != nil {
		return nil, toMCPError("update label failed", err)
	}
	return s.labelsResult(fp, index)
}

// handleDeleteLabel handles the delete_label tool invocation
func (s *Server) handleDeleteLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fp, err := getFingerprint(args)
	if err != nil {
		return nil, err
	}
	index, err := getIndex(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.project.DeleteLabel(fp, index); err != nil {
		return nil, toMCPError("delete label failed", err)
	}
	return s.labelsResult(fp, -1)
}

// handleReportUnplayable handles the report_unplayable tool invocation
func (s *Server) handleReportUnplayable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	fp, err := getFingerprint(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	corrupted, err := s.project.RefreshEntry(fp)
	if err != nil {
		return nil, toMCPError("file check failed", err)
	}

	response := map[string]interface{}{
		"fingerprint":  fp.String(),
		"is_corrupted": corrupted,
	}
	if !corrupted {
		response["message"] = "The file still exists; it may need conversion or a different player."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateSettings handles the update_settings tool invocation
func (s *Server) handleUpdateSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.project.MarkupSettings()
	current := settings.Iteration
	filter := getStringDefault(args, "filter", current.Filter)
	order := getStringDefault(args, "order", current.Order)
	index := getStringDefault(args, "index", current.Index)

	var minDuration *float64
	if _, ok := args["min_duration_ms"]; ok {
		v, err := getNumber(args, "min_duration_ms")
		if err != nil {
			return nil, err
		}
		if err := project.CheckMinDuration(v); err != nil {
			return nil, toMCPError("invalid minimum duration", err)
		}
		minDuration = &v
	}

	if filter != current.Filter || order != current.Order || index != current.Index {
		if err := s.project.ApplyIteration(filter, order, index); err != nil {
			return nil, toMCPError("invalid iteration policy", err)
		}
	}
	if minDuration != nil {
		if err := s.project.SetMinDuration(*minDuration); err != nil {
			return nil, toMCPError("invalid minimum duration", err)
		}
	}

	response := map[string]interface{}{
		"settings":      settingsJSON(settings.Iteration, settings.MinDurationMs),
		"working_count": s.project.Iterator().Remaining(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSaveProject handles the save_project tool invocation
func (s *Server) handleSaveProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", "")

	s.mu.Lock()
	defer s.mu.Unlock()

	written, err := s.project.Save(ctx, path)
	if err != nil {
		return nil, toMCPError("save failed", err)
	}

	response := map[string]interface{}{
		"saved":   true,
		"path":    written,
		"entries": s.project.Store().Len(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExportMarkup handles the export_markup tool invocation
func (s *Server) handleExportMarkup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written, err := s.project.ExportMarkup(path)
	if err != nil {
		return nil, toMCPError("export failed", err)
	}

	response := map[string]interface{}{
		"exported": true,
		"path":     written,
		"labels":   s.project.Info().Labels,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExpandDescription handles the expand_description tool invocation.
// The project is not touched, so the call does not hold the server lock.
func (s *Server) handleExpandDescription(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}
	if s.expander == nil {
		return nil, newMCPError(ErrorCodeExpanderUnavailable, "text expansion is not configured", map[string]interface{}{
			"hint": "set expander.api_key or OPENAI_API_KEY",
		})
	}

	seq, err := s.expander.Expand(ctx, text)
	if err != nil {
		return nil, toMCPError("expansion failed", err)
	}
	expanded, err := expander.Collect(seq)
	if err != nil {
		return nil, toMCPError("expansion failed", err)
	}

	response := map[string]interface{}{
		"text":     expanded,
		"provider": s.expander.Provider(),
		"model":    s.expander.Model(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// describeEntry renders an entry with its labels and media details.
// A file that has disappeared is marked corrupted on the spot.
func (s *Server) describeEntry(view dataset.View) map[string]interface{} {
	response := entryJSON(view)

	path, err := s.project.Store().AbsolutePath(view.Fingerprint)
	if err != nil {
		return response
	}
	response["absolute_path"] = path

	info, err := s.probe(path)
	switch {
	case err == nil:
		response["media"] = mediaJSON(info)
	case errors.Is(err, types.ErrNotFound):
		corrupted, rerr := s.project.RefreshEntry(view.Fingerprint)
		if rerr != nil {
			s.logger.Warn("failed to refresh entry", "fingerprint", view.Fingerprint.String(), "error", rerr)
		}
		response["is_corrupted"] = corrupted
		response["media_error"] = err.Error()
	default:
		response["media_error"] = err.Error()
	}
	return response
}

func (s *Server) labelsResult(fp types.Fingerprint, index int) (*mcp.CallToolResult, error) {
	view, ok := s.project.Store().Get(fp)
	if !ok {
		return nil, newMCPError(ErrorCodeNotFound, "entry not found", map[string]interface{}{
			"fingerprint": fp.String(),
		})
	}
	response := entryJSON(view)
	if index >= 0 {
		response["index"] = index
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func entryJSON(view dataset.View) map[string]interface{} {
	labels := make([]map[string]interface{}, len(view.Labels))
	for i, l := range view.Labels {
		labels[i] = map[string]interface{}{
			"index":       i,
			"start_ms":    l.Start,
			"end_ms":      l.End,
			"description": l.Description,
		}
	}
	return map[string]interface{}{
		"fingerprint":   view.Fingerprint.String(),
		"relative_path": view.RelativePath,
		"is_corrupted":  view.IsCorrupted,
		"labels":        labels,
	}
}

func mediaJSON(info *media.Info) map[string]interface{} {
	out := map[string]interface{}{
		"format":           info.Format,
		"needs_conversion": info.NeedsConversion,
	}
	if info.Duration > 0 {
		out["duration_ms"] = info.DurationMs()
	}
	if info.SampleRate > 0 {
		out["sample_rate"] = info.SampleRate
		out["channels"] = info.Channels
	}
	if info.Title != "" {
		out["title"] = info.Title
	}
	if info.Artist != "" {
		out["artist"] = info.Artist
	}
	return out
}

func settingsJSON(it iteration.Settings, minDuration float64) map[string]interface{} {
	return map[string]interface{}{
		"filter":          it.Filter,
		"order":           it.Order,
		"index":           it.Index,
		"last_idx":        it.LastIdx,
		"min_duration_ms": minDuration,
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps error kinds from the core packages to MCP error codes
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrBusy):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrUnsupportedMedia):
		code = ErrorCodeUnsupportedMediaType
	case errors.Is(err, expander.ErrNoProviderEnabled):
		code = ErrorCodeExpanderUnavailable
	case errors.Is(err, expander.ErrProviderFailed):
		code = ErrorCodeExpansionFailed
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// arguments extracts the argument map; tools without parameters accept none
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func getFingerprint(args map[string]interface{}) (types.Fingerprint, error) {
	raw, ok := args["fingerprint"].(string)
	if !ok || raw == "" {
		return types.Fingerprint{}, newMCPError(ErrorCodeInvalidParams, "fingerprint parameter is required", map[string]interface{}{
			"param":  "fingerprint",
			"reason": "missing or empty",
		})
	}
	fp, err := types.ParseFingerprint(raw)
	if err != nil {
		return types.Fingerprint{}, newMCPError(ErrorCodeInvalidParams, "invalid fingerprint", map[string]interface{}{
			"param":  "fingerprint",
			"reason": err.Error(),
		})
	}
	return fp, nil
}

func getSpan(args map[string]interface{}) (types.LabelSpan, error) {
	start, err := getNumber(args, "start_ms")
	if err != nil {
		return types.LabelSpan{}, err
	}
	end, err := getNumber(args, "end_ms")
	if err != nil {
		return types.LabelSpan{}, err
	}
	return types.LabelSpan{
		Start:       start,
		End:         end,
		Description: getStringDefault(args, "description", ""),
	}, nil
}

func getIndex(args map[string]interface{}) (int, error) {
	v, err := getNumber(args, "index")
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxInt32 || v != math.Trunc(v) {
		return 0, newMCPError(ErrorCodeInvalidParams, "index must be a non-negative integer", map[string]interface{}{
			"param": "index",
			"value": v,
		})
	}
	return int(v), nil
}

// getNumber extracts a required numeric parameter
func getNumber(args map[string]interface{}, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	}
	return 0, newMCPError(ErrorCodeInvalidParams, key+" parameter must be a number", map[string]interface{}{
		"param":  key,
		"reason": "missing or not a number",
	})
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
