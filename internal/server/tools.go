package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var sessionIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Session ID returned by picker_open",
}

var positionProperties = map[string]interface{}{
	"session_id": sessionIDProperty,
	"position": map[string]interface{}{
		"type":        "integer",
		"description": "0-based index within the partition",
	},
	"partition": map[string]interface{}{
		"type":        "string",
		"enum":        []string{"library", "external"},
		"description": "library for library items, external for captured images. Default library",
		"default":     "library",
	},
}

// withProperties copies base and adds extra properties.
func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func sessionOnlySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": sessionIDProperty,
		},
		"required": []string{"session_id"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Session lifecycle
		{
			Name:        "picker_open",
			Description: "Open a picker session over the photo library and load the first page, newest first. Returns the session ID and the loaded items. If library access has not been decided yet it is requested; items then arrive in a window_changed notification.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"max_selections": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of items that can be selected. 0 means unlimited",
					},
					"want_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Decode selected library items at full quality on finish",
					},
					"media_types": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string", "enum": []string{"image", "video", "audio", "unknown"}},
						"description": "Media types to show. Default is the server configuration",
					},
					"subtypes": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string", "enum": []string{"panorama", "screenshot", "animated"}},
						"description": "Only show items with exactly these subtypes",
					},
					"page_size": map[string]interface{}{
						"type":        "integer",
						"description": "Items fetched per page. Default 100",
					},
					"preview_size": map[string]interface{}{
						"type":        "integer",
						"description": "Longest edge of previews in pixels. Default 256",
					},
					"prefetch": map[string]interface{}{
						"type":        "boolean",
						"description": "Decode previews for the first page before returning",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "picker_authorize",
			Description: "Request library access for a session if it was never requested, and load the first page once access is granted.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "picker_finish",
			Description: "Finish the session and return the selected items in selection order. Items removed from the library since they were selected are omitted. Finishing with nothing selected cancels the session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"include_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Include decoded images as base64 JPEG",
						"default":     false,
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "picker_cancel",
			Description: "Cancel the session and discard its selection.",
			InputSchema: sessionOnlySchema(),
		},

		// Browsing
		{
			Name:        "picker_load_more",
			Description: "Report the position being viewed. When it is within a page of the end of the loaded items, the next page is loaded and returned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"position": map[string]interface{}{
						"type":        "integer",
						"description": "Library index currently being viewed",
					},
					"prefetch": map[string]interface{}{
						"type":        "boolean",
						"description": "Decode previews for newly loaded items before returning",
						"default":     false,
					},
				},
				"required": []string{"session_id", "position"},
			},
		},
		{
			Name:        "picker_preview",
			Description: "Get the preview image for a position as base64 PNG or JPEG, with its average color. An item must have a preview before it can be selected.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(positionProperties, map[string]interface{}{
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"png", "jpeg"},
						"description": "Output format. Default png",
						"default":     "png",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "JPEG quality 1-100. Default 90",
					},
					"placeholder": map[string]interface{}{
						"type":        "boolean",
						"description": "Return only a tiny blurred placeholder and its color",
						"default":     false,
					},
				}),
				"required": []string{"session_id", "position"},
			},
		},

		// Selection
		{
			Name:        "picker_select",
			Description: "Select a position. Refusals are reported with accepted=false and a reason: no_preview (load its preview first) or limit_exceeded (with a message to show).",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": positionProperties,
				"required":   []string{"session_id", "position"},
			},
		},
		{
			Name:        "picker_deselect",
			Description: "Deselect a position. Deselecting an unselected position does nothing.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": positionProperties,
				"required":   []string{"session_id", "position"},
			},
		},
		{
			Name:        "picker_selection",
			Description: "List the selected positions in selection order.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "picker_configure",
			Description: "Change the maximum number of selections. Existing selections are kept.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"max_selections": map[string]interface{}{
						"type":        "integer",
						"description": "New limit. 0 means unlimited",
					},
				},
				"required": []string{"session_id", "max_selections"},
			},
		},
		{
			Name:        "picker_capture",
			Description: "Add an image file from outside the library, such as a camera capture, to the session. It gets an external position and can be selected like a library item.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty,
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"session_id", "path"},
			},
		},
	}
}
