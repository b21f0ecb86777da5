// Package mcp implements the Model Context Protocol (MCP) server for audiomark.
//
// The server exposes one open project to an assistant over stdio. Tools fall
// into four groups:
//   - Dataset: get_status, scan_dataset, list_entries
//   - Navigation: next_entry, current_entry, select_entry
//   - Labeling: add_label, update_label, delete_label, report_unplayable
//   - Project: update_settings, save_project, export_markup, expand_description
//
// # Basic Usage
//
// The server is started by the serve command with a project file:
//
//	audiomark serve --project ~/labels/drums.mmp
//
// It listens on stdin for MCP messages and writes responses to stdout.
// Logs go to stderr.
//
// # Tool: next_entry
//
//	Request:
//	{
//	  "name": "next_entry",
//	  "arguments": {}
//	}
//
//	Response:
//	{
//	  "fingerprint": "9dd4e461268c8034f5c8564e155c67a6",
//	  "relative_path": "kicks/kick_01.wav",
//	  "absolute_path": "/data/drums/kicks/kick_01.wav",
//	  "is_corrupted": false,
//	  "labels": [],
//	  "media": {
//	    "format": "wav",
//	    "duration_ms": 1500,
//	    "sample_rate": 44100,
//	    "channels": 2,
//	    "needs_conversion": false
//	  }
//	}
//
// When the working list is exhausted the response is {"done": true}.
//
// # Tool: add_label
//
//	Request:
//	{
//	  "name": "add_label",
//	  "arguments": {
//	    "fingerprint": "9dd4e461268c8034f5c8564e155c67a6",
//	    "start_ms": 0,
//	    "end_ms": 1000,
//	    "description": "intro"
//	  }
//	}
//
// Without "index" the label is appended. The response is the entry with its
// labels.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "audiomark": {
//	      "command": "/usr/local/bin/audiomark",
//	      "args": ["serve", "--project", "/path/to/session.mmp"],
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Errors are returned as MCPError values carrying a JSON-RPC style code:
//   - -32602: Invalid params (missing arguments, bad spans, unknown policies)
//   - -32603: Internal error (project file or filesystem failures)
//   - -32001: Entry or file not found
//   - -32002: A dataset scan is already running
//   - -32003: No entry under the cursor
//   - -32004: Text expansion is not configured
//   - -32005: The expansion provider failed
//   - -32006: Unsupported media
//
// # Concurrency
//
// Tool calls that read or change the project are serialised by one mutex.
// Dataset scans from scan_dataset and from the file watcher additionally take
// an IndexLock; a second scan while one runs fails with -32002 instead of
// queueing.
package mcp
