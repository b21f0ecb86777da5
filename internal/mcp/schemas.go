package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func fingerprintProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Content fingerprint of the entry (32 hex characters)",
		"pattern":     "^[0-9a-fA-F]{32}$",
	}
}

func emptySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Show project metadata, entry and label counts, iteration settings and the available policies",
		InputSchema: emptySchema(),
	}
}

// scanDatasetTool returns the tool definition for scan_dataset
func scanDatasetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_dataset",
		Description: "Fingerprint the dataset directory again and reconcile entries with moved, added and missing files",
		InputSchema: emptySchema(),
	}
}

// listEntriesTool returns the tool definition for list_entries
func listEntriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_entries",
		Description: "List entries with their paths, corruption flags and label counts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "working: the filtered and ordered working list; all: every entry in appearance order",
					"enum":        []string{scopeWorking, scopeAll},
					"default":     scopeWorking,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of entries to skip",
					"default":     0,
					"minimum":     0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries to return (1-500)",
					"default":     defaultListLimit,
					"minimum":     1,
					"maximum":     maxListLimit,
				},
			},
		},
	}
}

// nextEntryTool returns the tool definition for next_entry
func nextEntryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "next_entry",
		Description: "Advance to the next entry of the working list according to the index policy",
		InputSchema: emptySchema(),
	}
}

// currentEntryTool returns the tool definition for current_entry
func currentEntryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "current_entry",
		Description: "Show the entry under the cursor with its labels and media details",
		InputSchema: emptySchema(),
	}
}

// selectEntryTool returns the tool definition for select_entry
func selectEntryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "select_entry",
		Description: "Move the cursor to an entry of the working list",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"fingerprint": fingerprintProperty(),
			},
			Required: []string{"fingerprint"},
		},
	}
}

func spanProperties() map[string]interface{} {
	return map[string]interface{}{
		"fingerprint": fingerprintProperty(),
		"start_ms": map[string]interface{}{
			"type":        "number",
			"description": "Span start in milliseconds",
			"minimum":     0,
		},
		"end_ms": map[string]interface{}{
			"type":        "number",
			"description": "Span end in milliseconds, not before start_ms",
			"minimum":     0,
		},
		"description": map[string]interface{}{
			"type":        "string",
			"description": "Free-text description of the span",
		},
	}
}

// addLabelTool returns the tool definition for add_label
func addLabelTool() mcp.Tool {
	props := spanProperties()
	props["index"] = map[string]interface{}{
		"type":        "integer",
		"description": "Position to insert at (default: append)",
		"minimum":     0,
	}
	return mcp.Tool{
		Name:        "add_label",
		Description: "Add a labeled span to an entry",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"fingerprint", "start_ms", "end_ms"},
		},
	}
}

// updateLabelTool returns the tool definition for update_label
func updateLabelTool() mcp.Tool {
	props := spanProperties()
	props["index"] = map[string]interface{}{
		"type":        "integer",
		"description": "Position of the label to replace",
		"minimum":     0,
	}
	return mcp.Tool{
		Name:        "update_label",
		Description: "Replace a labeled span of an entry",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"fingerprint", "index", "start_ms", "end_ms"},
		},
	}
}

// deleteLabelTool returns the tool definition for delete_label
func deleteLabelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_label",
		Description: "Remove a labeled span from an entry",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"fingerprint": fingerprintProperty(),
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "Position of the label to remove",
					"minimum":     0,
				},
			},
			Required: []string{"fingerprint", "index"},
		},
	}
}

// reportUnplayableTool returns the tool definition for report_unplayable
func reportUnplayableTool() mcp.Tool {
	return mcp.Tool{
		Name:        "report_unplayable",
		Description: "Report that an entry's file could not be played; the file is checked and the entry marked corrupted if it is gone",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"fingerprint": fingerprintProperty(),
			},
			Required: []string{"fingerprint"},
		},
	}
}

// updateSettingsTool returns the tool definition for update_settings
func updateSettingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_settings",
		Description: "Change iteration policies or the minimum label duration; omitted fields keep their values",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"filter": map[string]interface{}{
					"type":        "string",
					"description": "Filter policy tag (see get_status for the available tags)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"description": "Order policy tag",
				},
				"index": map[string]interface{}{
					"type":        "string",
					"description": "Index policy tag",
				},
				"min_duration_ms": map[string]interface{}{
					"type":        "number",
					"description": "Shortest accepted label span in milliseconds; 0 disables the check",
					"minimum":     0,
				},
			},
		},
	}
}

// saveProjectTool returns the tool definition for save_project
func saveProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_project",
		Description: "Save the project to a .mmp file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Target .mmp file or directory (default: the file last saved to or loaded from)",
				},
			},
		},
	}
}

// exportMarkupTool returns the tool definition for export_markup
func exportMarkupTool() mcp.Tool {
	return mcp.Tool{
		Name:        "export_markup",
		Description: "Export one row per label as CSV, or as JSON when the path ends in .json",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Target file, or a directory to write <project>.csv into",
				},
			},
			Required: []string{"path"},
		},
	}
}

// expandDescriptionTool returns the tool definition for expand_description
func expandDescriptionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "expand_description",
		Description: "Expand a short label description into a richer musical description with the configured language model",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Description to expand",
				},
			},
			Required: []string{"text"},
		},
	}
}
