package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/logger"
	"github.com/ironsheep/image-picker-mcp/internal/picker"
)

var errUnknownSession = errors.New("unknown session")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "picker_open", "picker_select").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Session lifecycle
	case "picker_open":
		return s.handleOpen(ctx, args)
	case "picker_authorize":
		return s.handleAuthorize(ctx, args)
	case "picker_finish":
		return s.handleFinish(ctx, args)
	case "picker_cancel":
		return s.handleCancel(args)

	// Browsing
	case "picker_load_more":
		return s.handleLoadMore(ctx, args)
	case "picker_preview":
		return s.handlePreview(ctx, args)

	// Selection
	case "picker_select":
		return s.handleSelect(args)
	case "picker_deselect":
		return s.handleDeselect(args)
	case "picker_selection":
		return s.handleSelection(args)
	case "picker_configure":
		return s.handleConfigure(args)
	case "picker_capture":
		return s.handleCapture(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Views ===

type assetView struct {
	Position  int      `json:"position"`
	ID        string   `json:"id"`
	MediaType string   `json:"media_type"`
	Subtypes  []string `json:"subtypes,omitempty"`
	CreatedAt string   `json:"created_at"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Location  string   `json:"location"`
}

func newAssetView(pos int, a asset.Asset) assetView {
	return assetView{
		Position:  pos,
		ID:        a.ID,
		MediaType: a.MediaType.String(),
		Subtypes:  a.Subtypes.Names(),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		Width:     a.PixelWidth,
		Height:    a.PixelHeight,
		Location:  a.Location,
	}
}

type positionView struct {
	Position  int    `json:"position"`
	Partition string `json:"partition"`
}

func newPositionView(p picker.Position) positionView {
	return positionView{Position: p.Index, Partition: p.Partition.String()}
}

type windowView struct {
	SessionID     string      `json:"session_id"`
	State         string      `json:"state"`
	Authorization string      `json:"authorization"`
	Start         int         `json:"start"`
	End           int         `json:"end"`
	Window        int         `json:"window"`
	Exhausted     bool        `json:"exhausted"`
	Items         []assetView `json:"items"`
}

func newWindowView(id string, sess *picker.Session, r picker.Range) windowView {
	items := make([]assetView, 0, r.Len())
	for i, a := range sess.Assets(r) {
		items = append(items, newAssetView(r.Start+i, a))
	}
	return windowView{
		SessionID:     id,
		State:         sess.State().String(),
		Authorization: sess.Authorization().String(),
		Start:         r.Start,
		End:           r.End,
		Window:        sess.Window(),
		Exhausted:     sess.Exhausted(),
		Items:         items,
	}
}

type itemView struct {
	positionView
	Asset    *assetView            `json:"asset,omitempty"`
	HasImage bool                  `json:"has_image"`
	Image    *imaging.EncodedImage `json:"image,omitempty"`
}

// itemViews renders a finished selection. Images are encoded as JPEG only
// when withImages is set.
func itemViews(o picker.Outcome, withImages bool) []itemView {
	out := make([]itemView, 0, len(o.Items))
	for _, it := range o.Items {
		v := itemView{positionView: newPositionView(it.Position), HasImage: it.Image != nil}
		if it.Asset != nil {
			av := newAssetView(it.Position.Index, *it.Asset)
			v.Asset = &av
		}
		if withImages && it.Image != nil {
			enc, err := imaging.EncodeJPEG(it.Image, 90)
			if err != nil {
				logger.Warn("failed to encode selected image", "position", it.Position.String(), "error", err)
			} else {
				v.Image = enc
			}
		}
		out = append(out, v)
	}
	return out
}

// === Argument helpers ===

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

type positionArgs struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
	Partition string `json:"partition"`
}

func parsePartition(s string) (picker.Partition, error) {
	switch s {
	case "", "library":
		return picker.Library, nil
	case "external":
		return picker.External, nil
	default:
		return 0, fmt.Errorf("invalid partition: %s (use library or external)", s)
	}
}

func (a positionArgs) position() (picker.Position, error) {
	part, err := parsePartition(a.Partition)
	if err != nil {
		return picker.Position{}, err
	}
	return picker.Position{Index: a.Position, Partition: part}, nil
}

func (s *Server) sessionFor(args json.RawMessage) (string, *picker.Session, error) {
	var a sessionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.SessionID == "" {
		return "", nil, fmt.Errorf("session_id is required")
	}
	sess, err := s.session(a.SessionID)
	return a.SessionID, sess, err
}

func (s *Server) positionFor(args json.RawMessage) (*picker.Session, picker.Position, error) {
	_, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, picker.Position{}, err
	}
	var a positionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, picker.Position{}, fmt.Errorf("invalid arguments: %w", err)
	}
	pos, err := a.position()
	return sess, pos, err
}

// === Session Lifecycle Handlers ===

func (s *Server) handleOpen(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		PageSize      *int     `json:"page_size"`
		MaxSelections *int     `json:"max_selections"`
		WantImages    *bool    `json:"want_images"`
		MediaTypes    []string `json:"media_types"`
		Subtypes      []string `json:"subtypes"`
		PreviewSize   int      `json:"preview_size"`
		Prefetch      bool     `json:"prefetch"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	opts := s.defaults
	if a.PageSize != nil {
		opts.PageSize = *a.PageSize
	}
	if a.MaxSelections != nil {
		opts.MaxSelections = *a.MaxSelections
	}
	if a.WantImages != nil {
		opts.WantImages = *a.WantImages
	}
	if a.PreviewSize > 0 {
		opts.PreviewSize = image.Pt(a.PreviewSize, a.PreviewSize)
	}
	if a.MediaTypes != nil || a.Subtypes != nil {
		filter, err := parseFilter(a.MediaTypes, a.Subtypes)
		if err != nil {
			return nil, err
		}
		opts.Filter = filter
	}

	id, sess := s.openSession(opts)
	r, err := sess.EnsureLoaded(ctx, picker.LibraryPosition(0))
	if err == nil && a.Prefetch {
		err = sess.PrefetchPreviews(ctx, r)
	}
	if err != nil {
		// The caller never learns the ID, so nothing else could close it.
		_ = sess.Cancel()
		return nil, err
	}
	return newWindowView(id, sess, r), nil
}

func parseFilter(mediaTypes, subtypes []string) (asset.Filter, error) {
	var f asset.Filter
	for _, name := range mediaTypes {
		mt, ok := asset.ParseMediaType(name)
		if !ok {
			return asset.Filter{}, fmt.Errorf("invalid media type: %s", name)
		}
		f.MediaTypes = append(f.MediaTypes, mt)
	}
	mask, unknown := asset.ParseSubtypes(subtypes)
	if len(unknown) > 0 {
		return asset.Filter{}, fmt.Errorf("invalid subtypes: %v", unknown)
	}
	f.Subtypes = mask
	return f, nil
}

// handleAuthorize asks for library access if it was never requested and
// loads the first page once it is granted.
func (s *Server) handleAuthorize(ctx context.Context, args json.RawMessage) (interface{}, error) {
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}
	r, err := sess.EnsureLoaded(ctx, picker.LibraryPosition(0))
	if err != nil {
		return nil, err
	}
	return newWindowView(id, sess, r), nil
}

func (s *Server) handleFinish(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		IncludeImages bool `json:"include_images"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}

	outcome, err := sess.Finish(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id": id,
		"state":      sess.State().String(),
		"count":      len(outcome.Items),
		"items":      itemViews(outcome, a.IncludeImages),
	}, nil
}

func (s *Server) handleCancel(args json.RawMessage) (interface{}, error) {
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Cancel(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id": id,
		"state":      sess.State().String(),
	}, nil
}

// === Browsing Handlers ===

func (s *Server) handleLoadMore(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		Position int  `json:"position"`
		Prefetch bool `json:"prefetch"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}

	r, err := sess.EnsureLoaded(ctx, picker.LibraryPosition(a.Position))
	if err != nil {
		return nil, err
	}
	if a.Prefetch {
		if err := sess.PrefetchPreviews(ctx, r); err != nil {
			return nil, err
		}
	}
	return newWindowView(id, sess, r), nil
}

// handlePreview returns the preview for a position as base64 image data,
// or only its blurred placeholder.
func (s *Server) handlePreview(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		Format      string `json:"format"`
		Quality     int    `json:"quality"`
		Placeholder bool   `json:"placeholder"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	sess, pos, err := s.positionFor(args)
	if err != nil {
		return nil, err
	}

	img, err := sess.LoadPreview(ctx, pos)
	if err != nil {
		return nil, err
	}

	if a.Placeholder {
		ph, err := imaging.MakePlaceholder(img)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"position":    newPositionView(pos),
			"placeholder": ph,
		}, nil
	}

	var enc *imaging.EncodedImage
	switch a.Format {
	case "", "png":
		enc, err = imaging.EncodePNG(img)
	case "jpeg", "jpg":
		enc, err = imaging.EncodeJPEG(img, a.Quality)
	default:
		return nil, fmt.Errorf("invalid format: %s (use png or jpeg)", a.Format)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"position":      newPositionView(pos),
		"average_color": imaging.AverageColor(img).Hex(),
		"selected":      sess.IsSelected(pos),
		"preview":       enc,
	}, nil
}

// === Selection Handlers ===

// handleSelect reports a refused selection as a normal result so clients
// can show the message; only misuse is a tool error.
func (s *Server) handleSelect(args json.RawMessage) (interface{}, error) {
	sess, pos, err := s.positionFor(args)
	if err != nil {
		return nil, err
	}

	err = sess.RequestSelect(pos)
	var rejected *picker.RejectedError
	switch {
	case errors.As(err, &rejected):
		return map[string]interface{}{
			"position": newPositionView(pos),
			"accepted": false,
			"reason":   rejected.Reason.String(),
			"message":  rejected.Message,
		}, nil
	case err != nil:
		return nil, err
	}
	return map[string]interface{}{
		"position": newPositionView(pos),
		"accepted": true,
		"count":    len(sess.Selection()),
	}, nil
}

func (s *Server) handleDeselect(args json.RawMessage) (interface{}, error) {
	sess, pos, err := s.positionFor(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Deselect(pos); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"position": newPositionView(pos),
		"selected": false,
		"count":    len(sess.Selection()),
	}, nil
}

func (s *Server) handleSelection(args json.RawMessage) (interface{}, error) {
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}
	selected := sess.Selection()
	positions := make([]positionView, len(selected))
	for i, p := range selected {
		positions[i] = newPositionView(p)
	}
	return map[string]interface{}{
		"session_id":     id,
		"state":          sess.State().String(),
		"positions":      positions,
		"count":          len(positions),
		"max_selections": sess.MaxSelections(),
	}, nil
}

func (s *Server) handleConfigure(args json.RawMessage) (interface{}, error) {
	var a struct {
		MaxSelections *int `json:"max_selections"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.MaxSelections == nil {
		return nil, fmt.Errorf("max_selections is required")
	}
	id, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}
	if err := sess.Configure(*a.MaxSelections); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id":     id,
		"max_selections": sess.MaxSelections(),
	}, nil
}

// handleCapture imports an image file into the external partition.
func (s *Server) handleCapture(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	_, sess, err := s.sessionFor(args)
	if err != nil {
		return nil, err
	}

	img, err := s.capturer(a.Path).Capture(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := sess.AddCaptured(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return map[string]interface{}{
		"position": newPositionView(pos),
		"width":    b.Dx(),
		"height":   b.Dy(),
		"state":    sess.State().String(),
	}, nil
}
