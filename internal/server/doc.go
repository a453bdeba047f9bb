// Package server implements the MCP (Model Context Protocol) server that
// drives photo picker sessions.
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Sessions
//
// picker_open creates a session over the shared library and returns its
// ID; every other tool takes that ID. A session ends with picker_finish or
// picker_cancel, after which the ID is no longer valid. Sessions still
// open when stdin closes are cancelled.
//
// Library items are addressed by their index in the newest-first listing.
// Images added with picker_capture live in a separate "external"
// partition with its own indexes.
//
// # Available Tools
//
// Session lifecycle:
//   - picker_open: Open a session and load the first page
//   - picker_authorize: Request library access
//   - picker_finish: Return the selection in order and end the session
//   - picker_cancel: Discard the selection and end the session
//
// Browsing:
//   - picker_load_more: Report the viewed position; loads the next page near the end
//   - picker_preview: Decode a preview (required before selecting)
//
// Selection:
//   - picker_select, picker_deselect, picker_selection
//   - picker_configure: Change the selection limit
//   - picker_capture: Add an image from outside the library
//
// # Notifications
//
// The server sends notifications without a request ID:
//   - notifications/picker/finished: a session finished, with its items
//   - notifications/picker/cancelled: a session was cancelled
//   - notifications/picker/window_changed: items became available outside a
//     direct call, after access was granted or the library changed on disk
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A refused selection is not an error: picker_select reports it with
// accepted=false and a reason.
//
// # Usage
//
//	srv := server.New(server.Options{Index: idx, Decoder: imaging.NewFileDecoder()})
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
