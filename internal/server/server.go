package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/capture"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
	"github.com/ironsheep/image-picker-mcp/internal/picker"
)

// Server handles MCP protocol communication and owns the open picker
// sessions.
type Server struct {
	index    asset.Index
	decoder  picker.Decoder
	defaults picker.Options
	version  string

	// capturer turns a picker_capture path into a capture source.
	capturer func(path string) capture.Service

	mu       sync.Mutex
	sessions map[string]*picker.Session

	outMu sync.Mutex
	out   *json.Encoder

	unsubscribe func()
}

// Options configures a Server.
type Options struct {
	// Index is the library shared by every session.
	Index asset.Index

	// Decoder decodes previews and exported images.
	Decoder picker.Decoder

	// Session holds the defaults for picker_open; arguments override them.
	Session picker.Options

	// Version is reported in serverInfo.
	Version string
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Notification methods emitted by the server.
const (
	NotifyFinished      = "notifications/picker/finished"
	NotifyCancelled     = "notifications/picker/cancelled"
	NotifyWindowChanged = "notifications/picker/window_changed"
)

// changeNotifier is implemented by libraries that report external changes.
type changeNotifier interface {
	Subscribe(fn func()) func()
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		index:    opts.Index,
		decoder:  opts.Decoder,
		defaults: opts.Session,
		version:  opts.Version,
		capturer: func(path string) capture.Service { return capture.File{Path: path} },
		sessions: make(map[string]*picker.Session),
	}
	if n, ok := opts.Index.(changeNotifier); ok {
		s.unsubscribe = n.Subscribe(s.libraryChanged)
	}
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve reads newline-delimited requests from r and writes responses and
// notifications to w until r is exhausted. Open sessions are cancelled on
// return.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	s.outMu.Lock()
	s.out = json.NewEncoder(w)
	s.outMu.Unlock()
	defer s.Close()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn("failed to parse request", "error", err)
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			s.write(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close cancels every open session and stops listening for library
// changes.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	s.mu.Lock()
	open := make([]*picker.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		_ = sess.Cancel()
	}
}

// write serialises v onto the output stream. Responses and asynchronous
// notifications share the encoder.
func (s *Server) write(v interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.out == nil {
		return
	}
	if err := s.out.Encode(v); err != nil {
		logger.Error("failed to encode message", "error", err)
	}
}

func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "image-picker-mcp",
				"version": s.version,
			},
		},
	}
}

// handleToolsList returns the tool catalogue.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

// openSession registers a new picker session and wires its callbacks to
// notifications.
func (s *Server) openSession(opts picker.Options) (string, *picker.Session) {
	id := uuid.NewString()
	sess := picker.New(s.index, s.decoder, opts, picker.Callbacks{
		OnFinish: func(o picker.Outcome) {
			s.forget(id)
			s.notify(NotifyFinished, map[string]interface{}{
				"session_id": id,
				"items":      itemViews(o, false),
			})
		},
		OnCancel: func() {
			s.forget(id)
			s.notify(NotifyCancelled, map[string]interface{}{"session_id": id})
		},
		OnWindowChanged: func(r picker.Range) {
			s.notify(NotifyWindowChanged, windowChangedParams(id, r))
		},
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	logger.Debug("session opened", "session", id)
	return id, sess
}

func (s *Server) session(id string) (*picker.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownSession, id)
	}
	return sess, nil
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	logger.Debug("session closed", "session", id)
}

// libraryChanged refreshes every open session after the library reported
// an external change.
func (s *Server) libraryChanged() {
	s.mu.Lock()
	open := make(map[string]*picker.Session, len(s.sessions))
	for id, sess := range s.sessions {
		open[id] = sess
	}
	s.mu.Unlock()

	for id, sess := range open {
		r, err := sess.Refresh(context.Background())
		if errors.Is(err, picker.ErrSessionClosed) {
			continue
		}
		if err != nil {
			logger.Warn("refresh after library change failed", "session", id, "error", err)
			continue
		}
		s.notify(NotifyWindowChanged, windowChangedParams(id, r))
	}
}

func windowChangedParams(id string, r picker.Range) map[string]interface{} {
	return map[string]interface{}{
		"session_id": id,
		"start":      r.Start,
		"end":        r.End,
	}
}
