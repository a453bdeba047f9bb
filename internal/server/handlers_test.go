package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/capture"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/library"
	"github.com/ironsheep/image-picker-mcp/internal/picker"
)

// unreadableIndex is an authorized library whose queries always fail.
type unreadableIndex struct {
	*library.MemoryIndex
}

func (unreadableIndex) Query(context.Context, asset.Filter, int) ([]asset.Asset, error) {
	return nil, errors.New("disk gone")
}

// callTool invokes a tool through tools/call and decodes the text content.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()

	resp := toolResponse(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("%s: unexpected content: %v", name, content)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("%s: result is not JSON: %v", name, err)
	}
	return out
}

// callToolError invokes a tool that is expected to fail.
func callToolError(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPError {
	t.Helper()

	resp := toolResponse(t, s, name, args)
	if resp.Error == nil {
		t.Fatalf("%s: expected an error, got %v", name, resp.Result)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("%s: error code: got %d, want -32000", name, resp.Error.Code)
	}
	return resp.Error
}

func toolResponse(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	paramsJSON, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: paramsJSON})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// openSession opens a session and returns its ID.
func openSession(t *testing.T, s *Server, args map[string]interface{}) string {
	t.Helper()
	if args == nil {
		args = map[string]interface{}{}
	}
	out := callTool(t, s, "picker_open", args)
	id, _ := out["session_id"].(string)
	if id == "" {
		t.Fatalf("picker_open returned no session_id: %v", out)
	}
	return id
}

func itemIDs(t *testing.T, items interface{}) []string {
	t.Helper()
	var ids []string
	for _, it := range items.([]interface{}) {
		m := it.(map[string]interface{})
		if a, ok := m["asset"].(map[string]interface{}); ok {
			ids = append(ids, a["id"].(string))
			continue
		}
		ids = append(ids, m["id"].(string))
	}
	return ids
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, 1, picker.Options{})
	resp := s.handleToolsCall(&MCPRequest{JSONRPC: "2.0", ID: 1, Params: json.RawMessage(`[`)})

	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := newTestServer(t, 1, picker.Options{})
	mcpErr := callToolError(t, s, "nonexistent_tool", map[string]interface{}{})

	if !strings.Contains(mcpErr.Data.(string), "unknown tool") {
		t.Errorf("error data: got %v", mcpErr.Data)
	}
}

func TestHandleToolsCall_UnknownSession(t *testing.T) {
	s := newTestServer(t, 1, picker.Options{})

	for _, name := range []string{"picker_authorize", "picker_selection", "picker_cancel", "picker_finish"} {
		t.Run(name, func(t *testing.T) {
			mcpErr := callToolError(t, s, name, map[string]interface{}{"session_id": "nope"})
			if !strings.Contains(mcpErr.Data.(string), "unknown session") {
				t.Errorf("error data: got %v", mcpErr.Data)
			}
		})
	}

	callToolError(t, s, "picker_selection", map[string]interface{}{})
}

func TestPickerOpen(t *testing.T) {
	s := newTestServer(t, 5, picker.Options{PageSize: 3})

	out := callTool(t, s, "picker_open", map[string]interface{}{"prefetch": true})

	if out["state"] != "active" {
		t.Errorf("state: got %v", out["state"])
	}
	if out["authorization"] != "authorized" {
		t.Errorf("authorization: got %v", out["authorization"])
	}
	if out["window"] != float64(3) || out["exhausted"] != false {
		t.Errorf("window: got %v exhausted %v", out["window"], out["exhausted"])
	}

	ids := itemIDs(t, out["items"])
	want := []string{"img-00.png", "img-01.png", "img-02.png"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("items: got %v, want %v", ids, want)
	}

	first := out["items"].([]interface{})[0].(map[string]interface{})
	if first["media_type"] != "image" || first["width"] != float64(40) || first["height"] != float64(30) {
		t.Errorf("first item: got %v", first)
	}

	// Prefetched previews make items selectable straight away.
	sel := callTool(t, s, "picker_select", map[string]interface{}{"session_id": out["session_id"], "position": 2})
	if sel["accepted"] != true {
		t.Errorf("select after prefetch: got %v", sel)
	}
}

func TestPickerOpen_InvalidFilter(t *testing.T) {
	s := newTestServer(t, 1, picker.Options{})

	callToolError(t, s, "picker_open", map[string]interface{}{"media_types": []string{"hologram"}})
	callToolError(t, s, "picker_open", map[string]interface{}{"subtypes": []string{"fisheye"}})
}

func TestPickerOpen_FilterExcludesEverything(t *testing.T) {
	s := newTestServer(t, 3, picker.Options{})

	out := callTool(t, s, "picker_open", map[string]interface{}{"media_types": []string{"video"}})

	if out["window"] != float64(0) || out["exhausted"] != true {
		t.Errorf("got window %v exhausted %v", out["window"], out["exhausted"])
	}
}

func TestPickerLoadMore(t *testing.T) {
	s := newTestServer(t, 5, picker.Options{PageSize: 2})
	id := openSession(t, s, nil)

	out := callTool(t, s, "picker_load_more", map[string]interface{}{"session_id": id, "position": 1})
	if out["start"] != float64(2) || out["end"] != float64(4) {
		t.Errorf("range: got [%v, %v)", out["start"], out["end"])
	}
	if ids := itemIDs(t, out["items"]); len(ids) != 2 || ids[0] != "img-02.png" {
		t.Errorf("items: got %v", ids)
	}

	out = callTool(t, s, "picker_load_more", map[string]interface{}{"session_id": id, "position": 3})
	if out["end"] != float64(5) || out["exhausted"] != true {
		t.Errorf("last page: got end %v exhausted %v", out["end"], out["exhausted"])
	}
}

func TestPickerPreview(t *testing.T) {
	s := newTestServer(t, 2, picker.Options{})
	id := openSession(t, s, nil)

	out := callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0})
	preview := out["preview"].(map[string]interface{})
	if preview["mime_type"] != "image/png" {
		t.Errorf("mime_type: got %v", preview["mime_type"])
	}
	if preview["width"] != float64(40) || preview["height"] != float64(30) {
		t.Errorf("preview size: got %vx%v", preview["width"], preview["height"])
	}
	if out["average_color"] != "#0000ff" {
		t.Errorf("average_color: got %v", out["average_color"])
	}

	out = callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 1, "format": "jpeg"})
	if out["preview"].(map[string]interface{})["mime_type"] != "image/jpeg" {
		t.Errorf("jpeg mime_type: got %v", out["preview"])
	}

	out = callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0, "placeholder": true})
	ph := out["placeholder"].(map[string]interface{})
	if ph["hex"] != "#0000ff" {
		t.Errorf("placeholder hex: got %v", ph["hex"])
	}

	callToolError(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0, "format": "gif"})
	callToolError(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0, "partition": "sideways"})
	callToolError(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 99})
}

func TestPickerSelect_Rejections(t *testing.T) {
	s := newTestServer(t, 4, picker.Options{})
	id := openSession(t, s, map[string]interface{}{"max_selections": 1})

	out := callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 0})
	if out["accepted"] != false || out["reason"] != "no_preview" {
		t.Errorf("select without preview: got %v", out)
	}

	callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0})
	callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 1})

	out = callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 0})
	if out["accepted"] != true || out["count"] != float64(1) {
		t.Errorf("select: got %v", out)
	}

	out = callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 1})
	if out["accepted"] != false || out["reason"] != "limit_exceeded" {
		t.Fatalf("select over limit: got %v", out)
	}
	if !strings.Contains(out["message"].(string), "more than 1 images") {
		t.Errorf("message: got %v", out["message"])
	}

	callToolError(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 42})
}

func TestPickerSelectDeselectFinish(t *testing.T) {
	s := newTestServer(t, 6, picker.Options{})
	buf := captureOutput(s)
	id := openSession(t, s, nil)

	for _, pos := range []int{5, 2, 3} {
		callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": pos})
		callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": pos})
	}
	out := callTool(t, s, "picker_deselect", map[string]interface{}{"session_id": id, "position": 3})
	if out["count"] != float64(2) {
		t.Errorf("count after deselect: got %v", out["count"])
	}

	sel := callTool(t, s, "picker_selection", map[string]interface{}{"session_id": id})
	positions := sel["positions"].([]interface{})
	if len(positions) != 2 || positions[0].(map[string]interface{})["position"] != float64(5) {
		t.Errorf("selection: got %v", positions)
	}
	if sel["max_selections"] != float64(0) {
		t.Errorf("max_selections: got %v", sel["max_selections"])
	}

	out = callTool(t, s, "picker_finish", map[string]interface{}{"session_id": id, "include_images": true})
	if out["state"] != "finished" || out["count"] != float64(2) {
		t.Errorf("finish: got state %v count %v", out["state"], out["count"])
	}
	if ids := itemIDs(t, out["items"]); strings.Join(ids, ",") != "img-05.png,img-02.png" {
		t.Errorf("finish order: got %v", ids)
	}
	// The session was opened without want_images, so there is nothing to encode.
	first := out["items"].([]interface{})[0].(map[string]interface{})
	if first["has_image"] != false {
		t.Errorf("has_image: got %v", first["has_image"])
	}

	got := notifications(t, buf)
	if len(got) != 1 || got[0].Method != NotifyFinished {
		t.Fatalf("notifications: got %+v", got)
	}

	// The session is gone once finished.
	callToolError(t, s, "picker_selection", map[string]interface{}{"session_id": id})
}

func TestPickerFinish_WantImages(t *testing.T) {
	s := newTestServer(t, 3, picker.Options{ExportSize: image.Pt(20, 20)})
	id := openSession(t, s, map[string]interface{}{"want_images": true})
	callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 1})
	callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 1})

	out := callTool(t, s, "picker_finish", map[string]interface{}{"session_id": id, "include_images": true})

	item := out["items"].([]interface{})[0].(map[string]interface{})
	if item["has_image"] != true {
		t.Fatalf("has_image: got %v", item["has_image"])
	}
	img := item["image"].(map[string]interface{})
	if img["mime_type"] != "image/jpeg" || img["width"] != float64(20) || img["height"] != float64(15) {
		t.Errorf("image: got %v %vx%v", img["mime_type"], img["width"], img["height"])
	}
}

func TestPickerFinish_DropsRemovedFiles(t *testing.T) {
	s := newTestServer(t, 3, picker.Options{})
	id := openSession(t, s, nil)
	for _, pos := range []int{0, 1} {
		callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": pos})
		callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": pos})
	}

	sess, _ := s.session(id)
	a, _ := sess.Asset(0)
	if err := os.Remove(a.Location); err != nil {
		t.Fatalf("remove: %v", err)
	}

	out := callTool(t, s, "picker_finish", map[string]interface{}{"session_id": id})
	if ids := itemIDs(t, out["items"]); len(ids) != 1 || ids[0] != "img-01.png" {
		t.Errorf("items: got %v", ids)
	}
}

func TestPickerFinish_EmptySelectionCancels(t *testing.T) {
	s := newTestServer(t, 2, picker.Options{})
	buf := captureOutput(s)
	id := openSession(t, s, nil)

	out := callTool(t, s, "picker_finish", map[string]interface{}{"session_id": id})

	if out["state"] != "cancelled" || out["count"] != float64(0) {
		t.Errorf("finish: got %v", out)
	}
	got := notifications(t, buf)
	if len(got) != 1 || got[0].Method != NotifyCancelled {
		t.Errorf("notifications: got %+v", got)
	}
}

func TestPickerCancel(t *testing.T) {
	s := newTestServer(t, 2, picker.Options{})
	buf := captureOutput(s)
	id := openSession(t, s, nil)
	callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0})
	callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 0})

	out := callTool(t, s, "picker_cancel", map[string]interface{}{"session_id": id})

	if out["state"] != "cancelled" {
		t.Errorf("state: got %v", out["state"])
	}
	got := notifications(t, buf)
	if len(got) != 1 || got[0].Method != NotifyCancelled {
		t.Errorf("notifications: got %+v", got)
	}
	callToolError(t, s, "picker_cancel", map[string]interface{}{"session_id": id})
}

func TestPickerConfigure(t *testing.T) {
	s := newTestServer(t, 3, picker.Options{})
	id := openSession(t, s, nil)

	out := callTool(t, s, "picker_configure", map[string]interface{}{"session_id": id, "max_selections": 2})
	if out["max_selections"] != float64(2) {
		t.Errorf("max_selections: got %v", out["max_selections"])
	}

	callToolError(t, s, "picker_configure", map[string]interface{}{"session_id": id})
}

func TestPickerCapture(t *testing.T) {
	s := newTestServer(t, 2, picker.Options{})
	id := openSession(t, s, map[string]interface{}{"max_selections": 1})

	shot := filepath.Join(t.TempDir(), "camera.png")
	f, err := os.Create(shot)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 12, 9))
	img.Set(0, 0, color.White)
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out := callTool(t, s, "picker_capture", map[string]interface{}{"session_id": id, "path": shot})
	pos := out["position"].(map[string]interface{})
	if pos["partition"] != "external" || pos["position"] != float64(0) {
		t.Errorf("position: got %v", pos)
	}
	if out["width"] != float64(12) || out["height"] != float64(9) {
		t.Errorf("size: got %vx%v", out["width"], out["height"])
	}

	sel := callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 0, "partition": "external"})
	if sel["accepted"] != true {
		t.Fatalf("select captured: got %v", sel)
	}

	// The captured image counts toward the limit.
	callTool(t, s, "picker_preview", map[string]interface{}{"session_id": id, "position": 0})
	sel = callTool(t, s, "picker_select", map[string]interface{}{"session_id": id, "position": 0})
	if sel["reason"] != "limit_exceeded" {
		t.Errorf("library select: got %v", sel)
	}

	fin := callTool(t, s, "picker_finish", map[string]interface{}{"session_id": id, "include_images": true})
	item := fin["items"].([]interface{})[0].(map[string]interface{})
	if item["partition"] != "external" || item["asset"] != nil || item["image"] == nil {
		t.Errorf("captured item: got %v", item)
	}

	callToolError(t, s, "picker_capture", map[string]interface{}{"session_id": openSession(t, s, nil), "path": "/nonexistent/shot.png"})
}

func TestPickerCapture_CustomService(t *testing.T) {
	s := newTestServer(t, 1, picker.Options{})
	s.capturer = func(string) capture.Service {
		return capture.Func(func(context.Context) (image.Image, error) {
			return nil, capture.ErrNoImage
		})
	}
	id := openSession(t, s, nil)

	mcpErr := callToolError(t, s, "picker_capture", map[string]interface{}{"session_id": id, "path": "x"})
	if !strings.Contains(mcpErr.Data.(string), capture.ErrNoImage.Error()) {
		t.Errorf("error data: got %v", mcpErr.Data)
	}
}

func TestParsePartition(t *testing.T) {
	tests := []struct {
		in      string
		want    picker.Partition
		wantErr bool
	}{
		{"", picker.Library, false},
		{"library", picker.Library, false},
		{"external", picker.External, false},
		{"Library", 0, true},
	}

	for _, tt := range tests {
		got, err := parsePartition(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePartition(%q) error = %v", tt.in, err)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parsePartition(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSession_UnknownIsWrapped(t *testing.T) {
	s := New(Options{})
	_, err := s.session("missing")
	if !errors.Is(err, errUnknownSession) {
		t.Errorf("got %v, want errUnknownSession", err)
	}
}

func TestPickerOpen_FailedLoadClosesSession(t *testing.T) {
	s := New(Options{
		Index:   unreadableIndex{library.NewMemoryIndex()},
		Decoder: imaging.NewFileDecoder(),
		Version: "test",
	})
	buf := captureOutput(s)

	_, err := s.executeTool(context.Background(), "picker_open", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("picker_open: got %v, want the query error", err)
	}

	s.mu.Lock()
	open := len(s.sessions)
	s.mu.Unlock()
	if open != 0 {
		t.Errorf("sessions left registered: got %d, want 0", open)
	}

	notes := notifications(t, buf)
	if len(notes) != 1 || notes[0].Method != NotifyCancelled {
		t.Errorf("notifications: got %v, want one %s", notes, NotifyCancelled)
	}
}
